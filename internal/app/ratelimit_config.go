/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-blogapi/config"
	"github.com/acronis/go-blogapi/httpserver/middleware"
	"github.com/acronis/go-blogapi/internal/ratelimit"
)

const cfgRateLimitKeyPrefix = "rateLimit"

const (
	cfgKeyRateLimitEnabled            = "enabled"
	cfgKeyRateLimitAlg                = "alg"
	cfgKeyRateLimitRate               = "rate"
	cfgKeyRateLimitMaxBurst           = "maxBurst"
	cfgKeyRateLimitMaxKeys            = "maxKeys"
	cfgKeyRateLimitDryRun             = "dryRun"
	cfgKeyRateLimitFailOpen           = "failOpen"
	cfgKeyRateLimitSweepInterval      = "sweepInterval"
	cfgKeyRateLimitResponseStatusCode = "responseStatusCode"
	cfgKeyRateLimitKeySource          = "key.source"
	cfgKeyRateLimitKeyHeader          = "key.header"
	cfgKeyRateLimitKeyExcluded        = "key.excluded"
	cfgKeyRateLimitRedisAddr          = "redis.addr"
	cfgKeyRateLimitRedisPassword      = "redis.password"
	cfgKeyRateLimitRedisDB            = "redis.db"
	cfgKeyRateLimitRedisKeyPrefix     = "redis.keyPrefix"
)

// Rate-limiting algorithms.
const (
	RateLimitAlgFixedWindow      = "fixed_window"
	RateLimitAlgSlidingWindow    = "sliding_window"
	RateLimitAlgLeakyBucket      = "leaky_bucket"
	RateLimitAlgTokenBucket      = "token_bucket"
	RateLimitAlgRedisFixedWindow = "redis_fixed_window"
)

var rateLimitAlgs = []string{
	RateLimitAlgFixedWindow,
	RateLimitAlgSlidingWindow,
	RateLimitAlgLeakyBucket,
	RateLimitAlgTokenBucket,
	RateLimitAlgRedisFixedWindow,
}

var rateLimitKeySources = []string{
	string(middleware.RateLimitKeySourceRemoteAddr),
	string(middleware.RateLimitKeySourceForwardedFor),
	string(middleware.RateLimitKeySourceRealIP),
	string(middleware.RateLimitKeySourceHeader),
}

// Default values for the rate limiting configuration.
const (
	DefaultRateLimitRate          = "5/m"
	DefaultRateLimitMaxKeys       = middleware.DefaultRateLimitMaxKeys
	DefaultRateLimitSweepInterval = time.Minute
)

// RateLimitKeyConfig describes how the client key is extracted from a request.
type RateLimitKeyConfig struct {
	Source   middleware.RateLimitKeySource `mapstructure:"source" yaml:"source" json:"source"`
	Header   string                        `mapstructure:"header" yaml:"header" json:"header"`
	Excluded []string                      `mapstructure:"excluded" yaml:"excluded" json:"excluded"`
}

// RateLimitRedisConfig is a connection to Redis used by the redis_fixed_window algorithm.
type RateLimitRedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr" json:"addr"`
	Password  string `mapstructure:"password" yaml:"-" json:"-"`
	DB        int    `mapstructure:"db" yaml:"db" json:"db"`
	KeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
}

// RateLimitConfig represents a set of configuration parameters for limiting the rate of API requests.
//
//	rateLimit:
//	  alg: fixed_window
//	  rate: 5/m
//	  key:
//	    source: forwardedFor
//	    excluded: ["10.0.*"]
type RateLimitConfig struct {
	Enabled            bool                 `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Alg                string               `mapstructure:"alg" yaml:"alg" json:"alg"`
	Rate               ratelimit.Rate       `mapstructure:"rate" yaml:"rate" json:"rate"`
	MaxBurst           int                  `mapstructure:"maxBurst" yaml:"maxBurst" json:"maxBurst"`
	MaxKeys            int                  `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`
	DryRun             bool                 `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
	FailOpen           bool                 `mapstructure:"failOpen" yaml:"failOpen" json:"failOpen"`
	SweepInterval      config.TimeDuration  `mapstructure:"sweepInterval" yaml:"sweepInterval" json:"sweepInterval"`
	ResponseStatusCode int                  `mapstructure:"responseStatusCode" yaml:"responseStatusCode" json:"responseStatusCode"`
	Key                RateLimitKeyConfig   `mapstructure:"key" yaml:"key" json:"key"`
	Redis              RateLimitRedisConfig `mapstructure:"redis" yaml:"redis" json:"redis"`
}

var _ config.Config = (*RateLimitConfig)(nil)
var _ config.KeyPrefixProvider = (*RateLimitConfig)(nil)

// NewRateLimitConfig creates a new instance of the RateLimitConfig.
func NewRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *RateLimitConfig) KeyPrefix() string {
	return cfgRateLimitKeyPrefix
}

// SetProviderDefaults sets default configuration values for rate limiting in config.DataProvider.
func (c *RateLimitConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRateLimitEnabled, true)
	dp.SetDefault(cfgKeyRateLimitAlg, RateLimitAlgFixedWindow)
	dp.SetDefault(cfgKeyRateLimitRate, DefaultRateLimitRate)
	dp.SetDefault(cfgKeyRateLimitMaxKeys, DefaultRateLimitMaxKeys)
	dp.SetDefault(cfgKeyRateLimitSweepInterval, DefaultRateLimitSweepInterval)
	dp.SetDefault(cfgKeyRateLimitResponseStatusCode, http.StatusTooManyRequests)
	dp.SetDefault(cfgKeyRateLimitKeySource, string(middleware.RateLimitKeySourceRemoteAddr))
	dp.SetDefault(cfgKeyRateLimitRedisKeyPrefix, ratelimit.DefaultRedisKeyPrefix)
}

// Set sets rate limiting configuration values from config.DataProvider.
func (c *RateLimitConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyRateLimitEnabled); err != nil {
		return err
	}
	if c.Alg, err = dp.GetStringFromSet(cfgKeyRateLimitAlg, rateLimitAlgs, false); err != nil {
		return err
	}
	if err = c.setRate(dp); err != nil {
		return err
	}
	if err = c.setLimits(dp); err != nil {
		return err
	}
	if err = c.setKey(dp); err != nil {
		return err
	}
	return c.setRedis(dp)
}

func (c *RateLimitConfig) setRate(dp config.DataProvider) error {
	rateStr, err := dp.GetString(cfgKeyRateLimitRate)
	if err != nil {
		return err
	}
	if c.Rate, err = ratelimit.ParseRate(rateStr); err != nil {
		return dp.WrapKeyErr(cfgKeyRateLimitRate, err)
	}
	if err = c.Rate.Validate(); err != nil {
		return dp.WrapKeyErr(cfgKeyRateLimitRate, err)
	}
	return nil
}

func (c *RateLimitConfig) setLimits(dp config.DataProvider) error {
	var err error
	if c.MaxBurst, err = dp.GetInt(cfgKeyRateLimitMaxBurst); err != nil {
		return err
	}
	if c.MaxBurst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitMaxBurst, fmt.Errorf("should be >= 0"))
	}
	if c.MaxKeys, err = dp.GetInt(cfgKeyRateLimitMaxKeys); err != nil {
		return err
	}
	if c.MaxKeys < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitMaxKeys, fmt.Errorf("should be >= 0"))
	}
	if c.DryRun, err = dp.GetBool(cfgKeyRateLimitDryRun); err != nil {
		return err
	}
	if c.FailOpen, err = dp.GetBool(cfgKeyRateLimitFailOpen); err != nil {
		return err
	}
	var sweepInterval time.Duration
	if sweepInterval, err = dp.GetDuration(cfgKeyRateLimitSweepInterval); err != nil {
		return err
	}
	if sweepInterval < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitSweepInterval, fmt.Errorf("should be >= 0"))
	}
	c.SweepInterval = config.TimeDuration(sweepInterval)
	if c.ResponseStatusCode, err = dp.GetInt(cfgKeyRateLimitResponseStatusCode); err != nil {
		return err
	}
	if c.ResponseStatusCode < 400 || c.ResponseStatusCode > 599 {
		return dp.WrapKeyErr(cfgKeyRateLimitResponseStatusCode, fmt.Errorf("should be a 4xx or 5xx HTTP status code"))
	}
	return nil
}

func (c *RateLimitConfig) setKey(dp config.DataProvider) error {
	source, err := dp.GetStringFromSet(cfgKeyRateLimitKeySource, rateLimitKeySources, false)
	if err != nil {
		return err
	}
	c.Key.Source = middleware.RateLimitKeySource(source)
	if c.Key.Header, err = dp.GetString(cfgKeyRateLimitKeyHeader); err != nil {
		return err
	}
	if c.Key.Source == middleware.RateLimitKeySourceHeader && c.Key.Header == "" {
		return dp.WrapKeyErr(cfgKeyRateLimitKeyHeader, fmt.Errorf("should be set for %q key source", c.Key.Source))
	}
	if c.Key.Excluded, err = dp.GetStringSlice(cfgKeyRateLimitKeyExcluded); err != nil {
		return err
	}
	return nil
}

func (c *RateLimitConfig) setRedis(dp config.DataProvider) error {
	var err error
	if c.Redis.Addr, err = dp.GetString(cfgKeyRateLimitRedisAddr); err != nil {
		return err
	}
	if c.Alg == RateLimitAlgRedisFixedWindow && c.Redis.Addr == "" {
		return dp.WrapKeyErr(cfgKeyRateLimitRedisAddr, fmt.Errorf("should be set for %q algorithm", c.Alg))
	}
	if c.Redis.Password, err = dp.GetString(cfgKeyRateLimitRedisPassword); err != nil {
		return err
	}
	if c.Redis.DB, err = dp.GetInt(cfgKeyRateLimitRedisDB); err != nil {
		return err
	}
	if c.Redis.KeyPrefix, err = dp.GetString(cfgKeyRateLimitRedisKeyPrefix); err != nil {
		return err
	}
	return nil
}
