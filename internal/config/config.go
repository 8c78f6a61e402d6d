package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/forPelevin/cuestream/internal/domain/subtitles"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AutoSplit      bool `env:"CUESTREAM_AUTO_SPLIT" envDefault:"false"`
	MaxWords       int  `env:"CUESTREAM_MAX_WORDS" envDefault:"8"`
	ParseInterval  int  `env:"CUESTREAM_PARSE_INTERVAL" envDefault:"3"`
	MinParseLength int  `env:"CUESTREAM_MIN_PARSE_LENGTH" envDefault:"100"`

	OutDir  string   `env:"CUESTREAM_OUT_DIR" envDefault:"out"`
	Formats []string `env:"CUESTREAM_FORMATS" envDefault:"srt" envSeparator:","`

	MetricsAddr string        `env:"CUESTREAM_METRICS_ADDR"`
	FollowIdle  time.Duration `env:"CUESTREAM_FOLLOW_IDLE" envDefault:"10s"`
	ChunkSize   int           `env:"CUESTREAM_CHUNK_SIZE" envDefault:"64"`
}

// Overrides holds CLI flag values that take priority over env vars. Nil
// pointers and empty strings mean the flag was not given.
type Overrides struct {
	// EnvFile is loaded when it exists. RequireEnvFile makes a missing file
	// an error, for paths the user named explicitly.
	EnvFile        string
	RequireEnvFile bool

	LogLevel    string
	OutDir      string
	Formats     []string
	MetricsAddr string

	AutoSplit  *bool
	MaxWords   *int
	ChunkSize  *int
	FollowIdle *time.Duration
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if overrides.RequireEnvFile {
		return nil, fmt.Errorf("env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.OutDir != "" {
		cfg.OutDir = overrides.OutDir
	}
	if len(overrides.Formats) > 0 {
		cfg.Formats = overrides.Formats
	}
	if overrides.MetricsAddr != "" {
		cfg.MetricsAddr = overrides.MetricsAddr
	}
	if overrides.AutoSplit != nil {
		cfg.AutoSplit = *overrides.AutoSplit
	}
	if overrides.MaxWords != nil {
		cfg.MaxWords = *overrides.MaxWords
	}
	if overrides.ChunkSize != nil {
		cfg.ChunkSize = *overrides.ChunkSize
	}
	if overrides.FollowIdle != nil {
		cfg.FollowIdle = *overrides.FollowIdle
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AutoSplit && c.MaxWords <= 0 {
		return errors.New("max words must be > 0 when auto-split is on")
	}
	if c.ParseInterval <= 0 {
		return errors.New("parse interval must be > 0")
	}
	if c.MinParseLength <= 0 {
		return errors.New("min parse length must be > 0")
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be > 0")
	}
	if c.FollowIdle <= 0 {
		return errors.New("follow idle must be > 0")
	}
	if c.OutDir == "" {
		return errors.New("out dir is empty")
	}
	if _, err := c.SubtitleFormats(); err != nil {
		return err
	}
	return nil
}

// SubtitleFormats returns the configured output formats, deduplicated.
func (c *Config) SubtitleFormats() ([]subtitles.Format, error) {
	if len(c.Formats) == 0 {
		return nil, errors.New("no output format configured")
	}
	seen := make(map[subtitles.Format]bool, len(c.Formats))
	out := make([]subtitles.Format, 0, len(c.Formats))
	for _, s := range c.Formats {
		f, err := subtitles.ParseFormat(s)
		if err != nil {
			return nil, fmt.Errorf("formats: %w", err)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}
