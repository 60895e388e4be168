// Package config loads tokendesk settings from defaults, an optional YAML
// file, TOKENDESK_* environment variables and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/tokendesk/internal/util"
)

// FileName is the config file looked up inside the data directory.
const FileName = "config.yaml"

// Store backends.
const (
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

var (
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Config is the resolved tokendesk configuration.
type Config struct {
	APIURL      string        `yaml:"api_url"`
	Profile     string        `yaml:"profile"`
	DataDir     string        `yaml:"-"`
	Timeout     time.Duration `yaml:"timeout"`
	ConsoleAddr string        `yaml:"console_addr"`
	Store       StoreConfig   `yaml:"store"`
	Log         LogConfig     `yaml:"log"`
}

// StoreConfig selects where the session is persisted.
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	// Key is an optional 64 character hex string. When set, values are
	// sealed with AES-256-GCM before they reach the backend.
	Key string `yaml:"key"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in defaults rooted at dataDir.
func Default(dataDir string) Config {
	return Config{
		APIURL:      "http://localhost:8000",
		Profile:     "default",
		DataDir:     dataDir,
		Timeout:     30 * time.Second,
		ConsoleAddr: "127.0.0.1:8420",
		Store: StoreConfig{
			Backend:     BackendBolt,
			RedisPrefix: "tokendesk",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultDataDir returns $TOKENDESK_DATA_DIR or the per-user config
// directory.
func DefaultDataDir() string {
	if dir := GetEnv("TOKENDESK_DATA_DIR", ""); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".tokendesk")
	}
	return filepath.Join(base, "tokendesk")
}

// Load resolves defaults, dataDir/config.yaml and the environment. A missing
// config file is not an error.
func Load(dataDir string) (Config, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	cfg := Default(dataDir)

	path := filepath.Join(dataDir, FileName)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.DataDir = dataDir
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIURL = GetEnv("TOKENDESK_API_URL", c.APIURL)
	c.Profile = GetEnv("TOKENDESK_PROFILE", c.Profile)
	c.ConsoleAddr = GetEnv("TOKENDESK_CONSOLE_ADDR", c.ConsoleAddr)
	c.Store.Backend = GetEnv("TOKENDESK_STORE", c.Store.Backend)
	c.Store.Path = GetEnv("TOKENDESK_STORE_PATH", c.Store.Path)
	c.Store.RedisAddr = GetEnv("TOKENDESK_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = GetEnv("TOKENDESK_REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisPrefix = GetEnv("TOKENDESK_REDIS_PREFIX", c.Store.RedisPrefix)
	c.Store.PostgresDSN = GetEnv("TOKENDESK_POSTGRES_DSN", c.Store.PostgresDSN)
	c.Store.Key = GetEnv("TOKENDESK_STORE_KEY", c.Store.Key)
	c.Log.Level = GetEnv("TOKENDESK_LOG_LEVEL", c.Log.Level)
	c.Log.Format = GetEnv("TOKENDESK_LOG_FORMAT", c.Log.Format)

	if v := GetEnv("TOKENDESK_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TOKENDESK_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := GetEnv("TOKENDESK_REDIS_DB", ""); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TOKENDESK_REDIS_DB: %w", err)
		}
		c.Store.RedisDB = db
	}
	return nil
}

// Validate reports the first problem that would stop tokendesk starting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("%w: api url is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Profile) == "" {
		return fmt.Errorf("%w: profile is required", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}

	switch c.Store.Backend {
	case BackendBolt:
		if c.DataDir == "" && c.Store.Path == "" {
			return fmt.Errorf("%w: bolt store needs a data dir or store path", ErrInvalidConfig)
		}
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("%w: redis store needs redis_addr", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres store needs postgres_dsn", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}

	if _, err := c.StoreKey(); err != nil {
		return err
	}
	return nil
}

// StoreKey decodes the optional sealing key. It returns nil when no key is
// configured.
func (c Config) StoreKey() ([]byte, error) {
	if strings.TrimSpace(c.Store.Key) == "" {
		return nil, nil
	}
	key, err := util.HexDecode(c.Store.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: store key is not hex: %v", ErrInvalidConfig, err)
	}
	if len(key) != util.AESKeySize {
		return nil, fmt.Errorf("%w: store key must be %d bytes, got %d", ErrInvalidConfig, util.AESKeySize, len(key))
	}
	return key, nil
}

// BoltPath is the database file used by the bolt backend.
func (c Config) BoltPath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.DataDir, "session.db")
}

// GetEnv returns the value of envVar or defaultValue when it is unset.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
