// Package config loads webawl settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caffeineduck/webawl/interp"
	"gopkg.in/yaml.v3"
)

// Config holds everything the CLI needs to start an interpreter and its
// terminal. Command-line flags override values loaded from a file.
type Config struct {
	Module       string        `yaml:"module"`
	Worker       bool          `yaml:"worker"`
	StartTimeout time.Duration `yaml:"start_timeout"`
	LogLevel     string        `yaml:"log_level"`

	Terminal Terminal `yaml:"terminal"`
	Runtime  Runtime  `yaml:"runtime"`
}

// Terminal configures the REPL front end.
type Terminal struct {
	Name        string `yaml:"name"`
	Prompt      string `yaml:"prompt"`
	Greetings   string `yaml:"greetings"`
	HistoryFile string `yaml:"history_file"`
}

// Runtime configures module compilation and memory.
type Runtime struct {
	DiskCache   bool   `yaml:"disk_cache"`
	CacheDir    string `yaml:"cache_dir"`
	MemoryLimit string `yaml:"memory_limit"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Module:       "awl.wasm",
		StartTimeout: 30 * time.Second,
		LogLevel:     "warn",
		Terminal: Terminal{
			Name:   "awl",
			Prompt: "awl> ",
		},
		Runtime: Runtime{
			DiskCache:   true,
			MemoryLimit: "256mb",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.Module == "" {
		return errors.New("module path required")
	}
	if c.StartTimeout < 0 {
		return errors.New("start_timeout must not be negative")
	}
	if _, err := MemoryLimitPages(c.Runtime.MemoryLimit); err != nil {
		return err
	}
	return nil
}

// MemoryLimitPages converts a memory limit such as "64mb" into 64KB wasm
// pages. An empty string means no limit.
func MemoryLimitPages(s string) (uint32, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "16mb":
		return interp.MemoryLimit16MB, nil
	case "64mb":
		return interp.MemoryLimit64MB, nil
	case "256mb":
		return interp.MemoryLimit256MB, nil
	case "1gb":
		return interp.MemoryLimit1GB, nil
	default:
		return 0, fmt.Errorf("invalid memory limit %q (expected 16mb, 64mb, 256mb, or 1gb)", s)
	}
}
