// Package config holds the file and environment layers shared by the
// graphdraw binaries. Each binary parses its own flags on top.
//
// Precedence, lowest first: defaults, YAML file, GRAPHDRAW_* environment,
// flags.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/linem-davton/graphdraw/pkg/blob"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/scheduler"
	"github.com/linem-davton/graphdraw/pkg/store"
	"github.com/linem-davton/graphdraw/pkg/store/redis"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GRAPHDRAW_"

// File is the YAML configuration document.
type File struct {
	Server ServerSection `yaml:"server"`
	Store  StoreConfig   `yaml:"store"`
	Files  FilesConfig   `yaml:"files"`
	Log    LogSection    `yaml:"log"`
}

// ServerSection is the scheduler server configuration of the browser editor.
type ServerSection struct {
	scheduler.Endpoints `yaml:",inline"`
	// Mode is "remote" or "local". Empty defers to the stored preference.
	Mode string `yaml:"mode"`
}

// StoreConfig selects the keyed model store.
type StoreConfig struct {
	Backend       string `yaml:"backend"` // memory, sqlite or redis
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// FilesConfig selects where exports and imports of updated_data.json go.
type FilesConfig struct {
	Backend string        `yaml:"backend"` // local or s3
	Dir     string        `yaml:"dir"`
	S3      blob.S3Config `yaml:"s3"`
}

type LogSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Logging converts the section for logging.New.
func (l LogSection) Logging() logging.Config {
	return logging.Config{Level: l.Level, Format: l.Format}
}

// Defaults returns the built-in configuration rooted at cwd.
func Defaults(cwd string) File {
	return File{
		Server: ServerSection{Endpoints: scheduler.DefaultEndpoints()},
		Store: StoreConfig{
			Backend:   "sqlite",
			Path:      filepath.Join(cwd, "graphdraw.db"),
			RedisAddr: "127.0.0.1:6379",
		},
		Files: FilesConfig{Backend: "local", Dir: cwd},
		Log:   LogSection{Level: "info", Format: "text"},
	}
}

// Load layers the YAML file at path (optional) and the environment over the
// defaults. Relative paths resolve against cwd.
func Load(path, cwd string) (File, error) {
	f := Defaults(cwd)
	if strings.TrimSpace(path) != "" {
		if err := f.merge(ResolvePath(path, cwd)); err != nil {
			return File{}, err
		}
	}
	if err := f.applyEnv(); err != nil {
		return File{}, err
	}
	f.Store.Path = ResolvePath(f.Store.Path, cwd)
	f.Files.Dir = ResolvePath(f.Files.Dir, cwd)
	return f, nil
}

// merge decodes the document at path on top of f. Keys absent from the
// document keep their current values.
func (f *File) merge(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer fh.Close()

	dec := yaml.NewDecoder(fh)
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (f *File) applyEnv() error {
	setString(&f.Server.Remote, "SCHEDULER_REMOTE")
	setString(&f.Server.Local, "SCHEDULER_LOCAL")
	setString(&f.Server.SchedulePath, "SCHEDULE_PATH")
	setString(&f.Server.ValidatePath, "VALIDATE_PATH")
	setString(&f.Server.Mode, "SCHEDULER_MODE")

	setString(&f.Store.Backend, "STORE")
	setString(&f.Store.Path, "DB_PATH")
	setString(&f.Store.RedisAddr, "REDIS_ADDR")
	setString(&f.Store.RedisPassword, "REDIS_PASSWORD")
	if err := setInt(&f.Store.RedisDB, "REDIS_DB"); err != nil {
		return err
	}

	setString(&f.Files.Backend, "FILES")
	setString(&f.Files.Dir, "FILES_DIR")
	setString(&f.Files.S3.Endpoint, "S3_ENDPOINT")
	setString(&f.Files.S3.Region, "S3_REGION")
	setString(&f.Files.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&f.Files.S3.SecretKey, "S3_SECRET_KEY")
	setString(&f.Files.S3.Bucket, "S3_BUCKET")
	setString(&f.Files.S3.Prefix, "S3_PREFIX")
	if err := setBool(&f.Files.S3.UseSSL, "S3_USE_SSL"); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		f.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		f.Log.Format = v
	}
	return nil
}

// Env reads GRAPHDRAW_<name>.
func Env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// EnvOrDefault reads GRAPHDRAW_<name> or returns fallback when unset.
func EnvOrDefault(name, fallback string) string {
	if v := Env(name); v != "" {
		return v
	}
	return fallback
}

func setString(dst *string, name string) {
	if v := Env(name); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v := Env(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, name string) error {
	v := Env(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*dst = b
	return nil
}

// LoadDotEnv loads each existing file into the process environment.
// Variables already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ConfigPath finds the -config flag in args, falling back to
// GRAPHDRAW_CONFIG. It runs before flag parsing so the file can supply flag
// defaults.
func ConfigPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return Env("CONFIG")
}

// ParsedMode parses the configured scheduler mode. An empty mode stays
// empty.
func (s ServerSection) ParsedMode() (scheduler.Mode, error) {
	if strings.TrimSpace(s.Mode) == "" {
		return "", nil
	}
	return scheduler.ParseMode(s.Mode)
}

// Validate checks the store selection.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Path) == "" {
			return errors.New("sqlite store requires a path")
		}
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("redis store requires an address")
		}
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Backend)
	}
	return nil
}

// Open connects the configured backend.
func (c StoreConfig) Open(ctx context.Context) (store.Backend, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Backend {
	case "sqlite":
		s, err := store.NewSQLite(c.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := redis.Dial(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return store.NewMemory(), nil
}

// Open builds the configured file store.
func (c FilesConfig) Open() (blob.Store, error) {
	switch c.Backend {
	case "", "local":
		return blob.NewLocal(c.Dir), nil
	case "s3":
		s, err := blob.NewS3(c.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported files backend: %s", c.Backend)
}

// ResolveMode picks the scheduler mode: the configured one when set (and it
// is remembered), otherwise the remembered one, otherwise remote.
func ResolveMode(ctx context.Context, s ServerSection, prefs *store.Preferences) (scheduler.Mode, error) {
	mode, err := s.ParsedMode()
	if err != nil {
		return "", err
	}
	if prefs == nil {
		if mode == "" {
			mode = scheduler.ModeRemote
		}
		return mode, nil
	}
	if mode != "" {
		return mode, prefs.SaveServerMode(ctx, string(mode))
	}
	stored, err := prefs.ServerMode(ctx, string(scheduler.ModeRemote))
	if err != nil {
		return "", err
	}
	return scheduler.ParseMode(stored)
}

// ResolvePath makes a relative path absolute against cwd.
func ResolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
