package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Source        string        `mapstructure:"source"`
	Package       string        `mapstructure:"package"`
	Root          string        `mapstructure:"root"`
	RelativeRoot  bool          `mapstructure:"relative_root"`
	CacheCapacity int           `mapstructure:"cache_capacity"`
	Mode          string        `mapstructure:"mode"`
	LegacyScan    bool          `mapstructure:"legacy_scan"`
	ScanWindow    int64         `mapstructure:"scan_window"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
	Database      string        `mapstructure:"database"`
	Jobs          int           `mapstructure:"jobs"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
}

// Load reads configuration from cfgFile, or from spak.yaml in the home or
// working directory when cfgFile is empty. SPAK_ environment variables
// override file values.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("source", SourcePackage)
	v.SetDefault("package", "")
	v.SetDefault("root", "")
	v.SetDefault("relative_root", false)
	v.SetDefault("cache_capacity", 64)
	v.SetDefault("mode", "strict")
	v.SetDefault("legacy_scan", false)
	v.SetDefault("scan_window", 1<<20)
	v.SetDefault("watch_interval", "2s")
	v.SetDefault("database", "spak.db")
	v.SetDefault("jobs", 4)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix("SPAK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Config file handling
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName("spak")
		v.SetConfigType("yaml")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
