// Package config loads goalclock settings from defaults, a YAML config
// file, a .env file and GOALCLOCK_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	appName   = "goalclock"
	envPrefix = "GOALCLOCK"
)

// Config represents the complete goalclock configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Drafts    DraftsConfig    `mapstructure:"drafts"`
	Retention RetentionConfig `mapstructure:"retention"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// DraftsConfig controls draft promotion reminders.
type DraftsConfig struct {
	// LeadTime flags a draft once its tentative date is this close.
	LeadTime time.Duration `mapstructure:"lead_time" validate:"gte=0"`
}

// RetentionConfig controls purging of finished goal trees.
type RetentionConfig struct {
	// DeadAfter is how long terminal goals are kept. Zero keeps them forever.
	DeadAfter time.Duration `mapstructure:"dead_after" validate:"gte=0"`
}

// LogConfig controls the slog handler installed by the CLI.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// SlogLevel maps the configured level name to a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:  DatabaseConfig{Path: filepath.Join(DefaultDataDir(), appName+".db")},
		Drafts:    DraftsConfig{LeadTime: 24 * time.Hour},
		Retention: RetentionConfig{DeadAfter: 0},
		Log:       LogConfig{Level: "info"},
	}
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	defaults := Default()
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("drafts.lead_time", defaults.Drafts.LeadTime)
	v.SetDefault("retention.dead_after", defaults.Retention.DeadAfter)
	v.SetDefault("log.level", defaults.Log.Level)
}

// LoadOptions selects the files Load reads.
type LoadOptions struct {
	// ConfigFile is an explicit config path. It must exist when set.
	// Empty searches ConfigDir() for config.yaml.
	ConfigFile string

	// EnvFile is a dotenv file loaded into the process environment
	// before reading. Missing files are ignored. Empty means ".env".
	EnvFile string
}

// Load reads the configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.AddConfigPath(ConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %s %s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
