/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package upload

import (
	"fmt"

	"github.com/acronis/go-blogapi/config"
)

const cfgDefaultKeyPrefix = "uploads"

const (
	cfgKeyDir          = "dir"
	cfgKeyMaxSize      = "maxSize"
	cfgKeyAllowedTypes = "allowedTypes"
)

// Defaults.
const (
	DefaultDir     = "uploads"
	DefaultMaxSize = 5 * 1024 * 1024
)

// DefaultAllowedTypes are MIME types accepted by default.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "application/pdf"}

// Config represents a set of configuration parameters for file uploads.
type Config struct {
	Dir          string            `mapstructure:"dir" yaml:"dir" json:"dir"`
	MaxSize      config.BytesCount `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	AllowedTypes []string          `mapstructure:"allowedTypes" yaml:"allowedTypes" json:"allowedTypes"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values for uploads in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyDir, DefaultDir)
	dp.SetDefault(cfgKeyMaxSize, "5M")
	dp.SetDefault(cfgKeyAllowedTypes, DefaultAllowedTypes)
}

// Set sets uploads configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Dir, err = dp.GetString(cfgKeyDir); err != nil {
		return err
	}
	if c.Dir == "" {
		return dp.WrapKeyErr(cfgKeyDir, fmt.Errorf("cannot be empty"))
	}
	if c.MaxSize, err = dp.GetBytesCount(cfgKeyMaxSize); err != nil {
		return err
	}
	if c.MaxSize == 0 {
		return dp.WrapKeyErr(cfgKeyMaxSize, fmt.Errorf("should be > 0"))
	}
	if c.AllowedTypes, err = dp.GetStringSlice(cfgKeyAllowedTypes); err != nil {
		return err
	}
	if len(c.AllowedTypes) == 0 {
		return dp.WrapKeyErr(cfgKeyAllowedTypes, fmt.Errorf("cannot be empty"))
	}
	return nil
}
