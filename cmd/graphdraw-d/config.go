package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/linem-davton/graphdraw/pkg/config"
)

const (
	defaultAddr       = "127.0.0.1:8090"
	defaultSessionTTL = 30 * time.Minute
	defaultSessions   = 128
	defaultDebounce   = 500 * time.Millisecond
)

type Config struct {
	File config.File

	Addr           string
	AllowedOrigins []string
	SessionSize    int
	SessionTTL     time.Duration
	SchemaPath     string
	WatchPath      string
	Debounce       time.Duration
	TLSCertFile    string
	TLSKeyFile     string
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

	addr := addrFromEnv(defaultAddr)
	sessionTTL := defaultSessionTTL
	if v := config.Env("SESSION_TTL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GRAPHDRAW_SESSION_TTL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("GRAPHDRAW_SESSION_TTL must be positive")
		}
		sessionTTL = parsed
	}
	sessions := defaultSessions
	if v := config.Env("SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GRAPHDRAW_SESSIONS: %w", err)
		}
		sessions = n
	}

	flagSet := flag.NewFlagSet("graphdraw-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.String("config", configPath, "path to YAML config file")
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagOrigins := flagSet.String("origins", config.EnvOrDefault("ALLOWED_ORIGINS", "*"), "comma-separated CORS origins")
	flagSessions := flagSet.Int("sessions", sessions, "maximum live editing sessions")
	flagTTL := flagSet.String("session-ttl", sessionTTL.String(), "idle session lifetime")
	flagStore := flagSet.String("store", file.Store.Backend, "model store: memory|sqlite|redis")
	flagDB := flagSet.String("db", file.Store.Path, "path to SQLite database")
	flagRedis := flagSet.String("redis", file.Store.RedisAddr, "Redis address")
	flagMode := flagSet.String("mode", file.Server.Mode, "scheduler server: remote|local (empty uses the remembered choice)")
	flagRemote := flagSet.String("remote", file.Server.Remote, "remote scheduler URL")
	flagLocal := flagSet.String("local", file.Server.Local, "local scheduler URL")
	flagSchema := flagSet.String("schema", config.Env("SCHEMA"), "JSON Schema for imports (default: bundled)")
	flagWatch := flagSet.String("watch", config.Env("WATCH"), "model file to re-import into the default session on change")
	flagDebounce := flagSet.String("debounce", defaultDebounce.String(), "delay before a watched file is re-imported")
	flagCert := flagSet.String("tls-cert", config.Env("TLS_CERT"), "TLS certificate file")
	flagKey := flagSet.String("tls-key", config.Env("TLS_KEY"), "TLS key file")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	ttl, err := time.ParseDuration(*flagTTL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid session ttl: %w", err)
	}
	if ttl <= 0 {
		return Config{}, errors.New("session ttl must be positive")
	}
	debounce, err := time.ParseDuration(*flagDebounce)
	if err != nil {
		return Config{}, fmt.Errorf("invalid debounce: %w", err)
	}
	if debounce < 0 {
		return Config{}, errors.New("debounce cannot be negative")
	}
	if *flagSessions <= 0 {
		return Config{}, errors.New("sessions must be positive")
	}

	file.Store.Backend = strings.ToLower(strings.TrimSpace(*flagStore))
	file.Store.Path = config.ResolvePath(*flagDB, cwd)
	file.Store.RedisAddr = strings.TrimSpace(*flagRedis)
	file.Server.Mode = strings.TrimSpace(*flagMode)
	file.Server.Remote = strings.TrimSpace(*flagRemote)
	file.Server.Local = strings.TrimSpace(*flagLocal)

	cfg := Config{
		File:           file,
		Addr:           strings.TrimSpace(*flagAddr),
		AllowedOrigins: splitList(*flagOrigins),
		SessionSize:    *flagSessions,
		SessionTTL:     ttl,
		SchemaPath:     config.ResolvePath(*flagSchema, cwd),
		WatchPath:      config.ResolvePath(*flagWatch, cwd),
		Debounce:       debounce,
		TLSCertFile:    strings.TrimSpace(*flagCert),
		TLSKeyFile:     strings.TrimSpace(*flagKey),
	}

	if cfg.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if err := cfg.File.Store.Validate(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.File.Server.ParsedMode(); err != nil {
		return Config{}, err
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return Config{}, errors.New("tls-cert and tls-key must be set together")
	}

	return cfg, nil
}

func addrFromEnv(fallback string) string {
	if value := config.Env("ADDR"); value != "" {
		return value
	}
	if port := config.Env("PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
