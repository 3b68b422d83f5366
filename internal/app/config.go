/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"github.com/acronis/go-blogapi/config"
	"github.com/acronis/go-blogapi/httpserver"
	"github.com/acronis/go-blogapi/internal/auth"
	"github.com/acronis/go-blogapi/internal/upload"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/profserver"
)

// EnvVarsPrefix is a prefix of environment variables that override configuration values
// (e.g. BLOGAPI_RATELIMIT_RATE=10/m).
const EnvVarsPrefix = "BLOGAPI"

// Config is the configuration of the whole application.
type Config struct {
	Server    *httpserver.Config `mapstructure:"server" yaml:"server" json:"server"`
	Log       *log.Config        `mapstructure:"log" yaml:"log" json:"log"`
	RateLimit *RateLimitConfig   `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
	Auth      *auth.Config       `mapstructure:"auth" yaml:"auth" json:"auth"`
	Uploads    *upload.Config     `mapstructure:"uploads" yaml:"uploads" json:"uploads"`
	ProfServer *profserver.Config `mapstructure:"profServer" yaml:"profServer" json:"profServer"`
}

// NewConfig creates a new instance of the Config with all its sections.
func NewConfig() *Config {
	return &Config{
		Server:    httpserver.NewConfig(),
		Log:       log.NewConfig(),
		RateLimit: NewRateLimitConfig(),
		Auth:      auth.NewConfig(),
		Uploads:    upload.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
}

// Sections returns all configuration sections in the order they are loaded.
func (c *Config) Sections() []config.Config {
	return []config.Config{c.Server, c.Log, c.RateLimit, c.Auth, c.Uploads, c.ProfServer}
}

// LoadConfig loads the application configuration. Values from the file at path (if not empty)
// are overridden by the environment variables with EnvVarsPrefix.
func LoadConfig(path string, dataType config.DataType) (*Config, error) {
	cfg := NewConfig()
	loader := config.NewDefaultLoader(EnvVarsPrefix)
	sections := cfg.Sections()
	if path == "" {
		if err := loader.Load(sections[0], sections[1:]...); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := loader.LoadFromFile(path, dataType, sections[0], sections[1:]...); err != nil {
		return nil, err
	}
	return cfg, nil
}
