package config

import (
	"fmt"
	"strings"

	"github.com/jchantrell/spak/internal/asset"
)

// Source kinds
const (
	SourcePackage    = "package"
	SourceFilesystem = "filesystem"
	SourceHotReload  = "hotreload"
)

var validSources = map[string]bool{
	SourcePackage:    true,
	SourceFilesystem: true,
	SourceHotReload:  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks settings shared by every command.
// Log level and format are lowercased in place.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)

	if !validSources[c.Source] {
		return fmt.Errorf("unsupported source '%s': expected package, filesystem or hotreload", c.Source)
	}

	if _, err := asset.ParseMode(c.Mode); err != nil {
		return err
	}

	if c.CacheCapacity <= 0 {
		return fmt.Errorf("cache_capacity must be positive, got %d", c.CacheCapacity)
	}

	if c.ScanWindow <= 0 {
		return fmt.Errorf("scan_window must be positive, got %d", c.ScanWindow)
	}
	if c.Jobs <= 0 {
		return fmt.Errorf("jobs must be positive, got %d", c.Jobs)
	}
	if c.WatchInterval < 0 {
		return fmt.Errorf("watch_interval cannot be negative")
	}

	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level '%s': must be debug, info, warn, or error", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format '%s': must be text or json", c.LogFormat)
	}

	return nil
}

// ValidateSource checks that the configured source can be opened.
func (c *Config) ValidateSource() error {
	switch c.Source {
	case SourcePackage:
		if c.Package == "" {
			return fmt.Errorf("package path is required for the package source")
		}
	case SourceFilesystem, SourceHotReload:
		if c.Root == "" {
			return fmt.Errorf("root directory is required for the %s source", c.Source)
		}
	}
	return nil
}

// Policy returns the error policy for the configured mode.
func (c *Config) Policy() asset.Policy {
	mode, _ := asset.ParseMode(c.Mode)
	return asset.Policy{Mode: mode}
}
