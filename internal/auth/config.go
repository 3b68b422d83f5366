/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package auth

import (
	"fmt"
	"strings"

	"github.com/acronis/go-blogapi/config"
)

const cfgDefaultKeyPrefix = "auth"

const (
	cfgKeyUsers  = "users"
	cfgKeyTokens = "tokens"
)

// UserConfig binds an access token to a user id.
type UserConfig struct {
	ID    string `mapstructure:"id" yaml:"id" json:"id"`
	Token string `mapstructure:"token" yaml:"token" json:"token"`
}

// Config represents a set of configuration parameters for authentication.
//
// Users may be listed in a file:
//
//	auth:
//	  users:
//	    - id: alice
//	      token: s3cr3t
//
// or passed as "id:token" pairs (e.g. BLOGAPI_AUTH_TOKENS="alice:s3cr3t,bob:t0k3n").
type Config struct {
	Users []UserConfig `mapstructure:"users" yaml:"users" json:"users"`
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

// SetProviderDefaults does nothing, there are no users by default.
func (c *Config) SetProviderDefaults(_ config.DataProvider) {}

// Set sets authentication configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	c.Users = nil
	if err := dp.UnmarshalKey(cfgKeyUsers, &c.Users); err != nil {
		return err
	}
	pairs, err := dp.GetStringSlice(cfgKeyTokens)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		id, token, ok := strings.Cut(pair, ":")
		if !ok {
			return dp.WrapKeyErr(cfgKeyTokens, fmt.Errorf("%q should be in id:token format", pair))
		}
		c.Users = append(c.Users, UserConfig{ID: strings.TrimSpace(id), Token: strings.TrimSpace(token)})
	}

	seen := make(map[string]struct{}, len(c.Users))
	for i, u := range c.Users {
		if u.ID == "" || u.Token == "" {
			return dp.WrapKeyErr(fmt.Sprintf("%s.%d", cfgKeyUsers, i), fmt.Errorf("both id and token should be set"))
		}
		if _, dup := seen[u.Token]; dup {
			return dp.WrapKeyErr(fmt.Sprintf("%s.%d", cfgKeyUsers, i), fmt.Errorf("token is used by several users"))
		}
		seen[u.Token] = struct{}{}
	}
	return nil
}

// Tokens returns the token -> user id map.
func (c *Config) Tokens() map[string]string {
	res := make(map[string]string, len(c.Users))
	for _, u := range c.Users {
		res[u.Token] = u.ID
	}
	return res
}
