// Package config resolves expreg settings from defaults, an optional
// .expreg.yaml file, and EXPREG_* environment variables, in increasing
// order of precedence. Flags are bound on top by the CLI layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the resolved settings for one expreg invocation.
type Config struct {
	ResultsRoot  string        `mapstructure:"results_root"`
	RegistryPath string        `mapstructure:"registry_path"`
	JournalPath  string        `mapstructure:"journal_path"`
	Objective    string        `mapstructure:"objective"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	TargetsPath  string        `mapstructure:"targets_path"`
	AnalyzeCmd   string        `mapstructure:"analyze_cmd"`
	MaxPerMinute int           `mapstructure:"max_per_minute"`
	MaxInFlight  int           `mapstructure:"max_in_flight"`
}

// Load reads configuration. A missing config file is not an error; a
// malformed one is.
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	stateDir := filepath.Join(home, ".expreg")

	v.SetDefault("results_root", "results")
	v.SetDefault("registry_path", filepath.Join(stateDir, "registry.json"))
	v.SetDefault("journal_path", filepath.Join(stateDir, "transitions.db"))
	v.SetDefault("objective", "auto")
	v.SetDefault("poll_interval", 30*time.Second)
	v.SetDefault("targets_path", "")
	v.SetDefault("analyze_cmd", "")
	v.SetDefault("max_per_minute", 0)
	v.SetDefault("max_in_flight", 1)

	v.SetEnvPrefix("EXPREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(".expreg")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(stateDir)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
