package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/linem-davton/graphdraw/pkg/config"
	"github.com/linem-davton/graphdraw/pkg/store"
)

type Config struct {
	File config.File

	Key        string
	SchemaPath string
	// LogFile receives logs while the terminal is owned by the editor.
	// Empty discards them.
	LogFile string
	Seed    bool
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	configPath := config.ConfigPath(args)
	file, err := config.Load(configPath, cwd)
	if err != nil {
		return Config{}, err
	}

	flagSet := flag.NewFlagSet("graphdraw-tui", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.String("config", configPath, "path to YAML config file")
	flagKey := flagSet.String("key", config.EnvOrDefault("KEY", store.DefaultKey), "storage key of the edited model")
	flagStore := flagSet.String("store", file.Store.Backend, "model store: memory|sqlite|redis")
	flagDB := flagSet.String("db", file.Store.Path, "path to SQLite database")
	flagFiles := flagSet.String("files", file.Files.Dir, "directory for exports and imports")
	flagMode := flagSet.String("mode", file.Server.Mode, "scheduler server: remote|local (empty uses the remembered choice)")
	flagSchema := flagSet.String("schema", config.Env("SCHEMA"), "JSON Schema for imports (default: bundled)")
	flagLog := flagSet.String("log", config.Env("TUI_LOG"), "write logs to this file")
	flagFresh := flagSet.Bool("fresh", false, "start empty instead of loading the stored model")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
		}
		return Config{}, err
	}

	file.Store.Backend = strings.ToLower(strings.TrimSpace(*flagStore))
	file.Store.Path = config.ResolvePath(*flagDB, cwd)
	file.Files.Dir = config.ResolvePath(*flagFiles, cwd)
	file.Server.Mode = strings.TrimSpace(*flagMode)

	cfg := Config{
		File:       file,
		Key:        strings.TrimSpace(*flagKey),
		SchemaPath: config.ResolvePath(*flagSchema, cwd),
		LogFile:    config.ResolvePath(*flagLog, cwd),
		Seed:       !*flagFresh,
	}
	if cfg.Key == "" {
		return Config{}, errors.New("key cannot be empty")
	}
	if err := cfg.File.Store.Validate(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.File.Server.ParsedMode(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
