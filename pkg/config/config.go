// Package config loads wordgloss settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/japaniel/wordgloss/pkg/content"
	"github.com/japaniel/wordgloss/pkg/lookup"
	"github.com/japaniel/wordgloss/pkg/vocab"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "wordgloss.yaml"

type Config struct {
	// Glossary is a file path or http(s) URL of the JSON glossary.
	Glossary string `yaml:"glossary"`
	// GlossaryDB is the sqlite vocabulary database. When set and Glossary is
	// empty, the glossary is loaded from it.
	GlossaryDB string `yaml:"glossary_db"`
	// GlossaryCache keeps a downloaded copy of a remote glossary, which is
	// then read instead of fetching again.
	GlossaryCache string `yaml:"glossary_cache"`

	TextsDir    string `yaml:"texts_dir"`
	TextsGlob   string `yaml:"texts_glob"`
	VocabPath   string `yaml:"vocab_path"`
	ListPath    string `yaml:"list_path"`
	ReadyPath   string `yaml:"ready_path"`
	AudioDir    string `yaml:"audio_dir"`
	AudioPrefix string `yaml:"audio_prefix"`

	FallbackMessage string `yaml:"fallback_message"`
	DefaultEmoji    string `yaml:"default_emoji"`
	UnknownEmoji    string `yaml:"unknown_emoji"`

	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Workers      int           `yaml:"workers"`
	LogMode      string        `yaml:"log_mode"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		TextsDir:        "texts",
		TextsGlob:       vocab.DefaultPattern,
		VocabPath:       "vocab/vocab_master.json",
		ListPath:        "vocab/list.txt",
		ReadyPath:       "vocab/list_ready.txt",
		AudioPrefix:     vocab.DefaultAudioPrefix,
		FallbackMessage: lookup.DefaultFallbackMessage,
		DefaultEmoji:    lookup.DefaultEmoji,
		UnknownEmoji:    lookup.UnknownEmoji,
		MaxBodyBytes:    content.DefaultMaxBytes,
		FetchTimeout:    30 * time.Second,
		Workers:         2,
		LogMode:         "development",
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = content.DefaultMaxBytes
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must not be negative, got %s", c.FetchTimeout)
	}
	if c.TextsGlob == "" {
		c.TextsGlob = vocab.DefaultPattern
	}
	if c.LogMode == "" {
		c.LogMode = "development"
	}
	return nil
}
