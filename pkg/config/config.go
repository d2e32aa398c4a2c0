package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Facts    FactsConfig    `mapstructure:"facts"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	Timestamps bool   `mapstructure:"timestamps"`
}

// ExecutorConfig holds execution-related configuration
type ExecutorConfig struct {
	// Forks is the maximum number of hosts evaluated in parallel.
	Forks int `mapstructure:"forks"`
	// GatherFacts controls whether facts are gathered before each play
	// unless the play overrides it.
	GatherFacts bool `mapstructure:"gather_facts"`
}

// FactsConfig holds fact gathering and caching configuration
type FactsConfig struct {
	// CachePath is the path of the persistent fact cache database.
	// Empty disables persistent caching.
	CachePath string `mapstructure:"cache_path"`
	// CacheTTL is how long a cached fact snapshot stays valid.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Load loads configuration from files and environment variables
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	for _, path := range configPaths {
		if path == "" {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("RIGGING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Executor.Forks < 1 {
		return nil, fmt.Errorf("executor.forks must be at least 1, got %d", config.Executor.Forks)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "plain")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.timestamps", true)

	// Executor defaults
	v.SetDefault("executor.forks", 5)
	v.SetDefault("executor.gather_facts", true)

	// Facts defaults
	v.SetDefault("facts.cache_path", "")
	v.SetDefault("facts.cache_ttl", 24*time.Hour)
}
