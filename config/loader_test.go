/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testServerConfig struct {
	Address string
	Timeout time.Duration
}

func (c *testServerConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("address", ":8080")
	dp.SetDefault("timeout", "5s")
}

func (c *testServerConfig) Set(dp DataProvider) error {
	var err error
	if c.Address, err = dp.GetString("address"); err != nil {
		return err
	}
	c.Timeout, err = dp.GetDuration("timeout")
	return err
}

func (c *testServerConfig) KeyPrefix() string {
	return "server"
}

type testUploadsConfig struct {
	MaxSize BytesCount
	Types   []string
}

func (c *testUploadsConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("uploads.maxSize", "5M")
}

func (c *testUploadsConfig) Set(dp DataProvider) error {
	var err error
	if c.MaxSize, err = dp.GetBytesCount("uploads.maxSize"); err != nil {
		return err
	}
	c.Types, err = dp.GetStringSlice("uploads.types")
	return err
}

type testAppConfig struct {
	Server  *testServerConfig
	Uploads *testUploadsConfig
	skipped *testServerConfig
}

func (c *testAppConfig) SetProviderDefaults(dp DataProvider) {
	CallSetProviderDefaultsForFields(c, dp)
}

func (c *testAppConfig) Set(dp DataProvider) error {
	return CallSetForFields(c, dp)
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("defaults are used when values are missing", func(t *testing.T) {
		cfg := &testAppConfig{Server: &testServerConfig{}, Uploads: &testUploadsConfig{}}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, cfg)
		require.NoError(t, err)
		require.Equal(t, ":8080", cfg.Server.Address)
		require.Equal(t, 5*time.Second, cfg.Server.Timeout)
		require.Equal(t, BytesCount(5*1024*1024), cfg.Uploads.MaxSize)
		require.Nil(t, cfg.skipped)
	})

	t.Run("values from yaml", func(t *testing.T) {
		cfgData := `
server:
  address: 127.0.0.1:9090
  timeout: 1m
uploads:
  maxSize: 1024
  types: [image/png, application/pdf]
`
		cfg := &testAppConfig{Server: &testServerConfig{}, Uploads: &testUploadsConfig{}}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "127.0.0.1:9090", cfg.Server.Address)
		require.Equal(t, time.Minute, cfg.Server.Timeout)
		require.Equal(t, BytesCount(1024), cfg.Uploads.MaxSize)
		require.Equal(t, []string{"image/png", "application/pdf"}, cfg.Uploads.Types)
	})

	t.Run("invalid bytes count", func(t *testing.T) {
		cfg := &testAppConfig{Uploads: &testUploadsConfig{}}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"uploads":{"maxSize":"lots"}}`), DataTypeJSON, cfg)
		require.ErrorContains(t, err, "uploads.maxSize")
	})
}

func TestLoader_LoadFromFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "blogapi.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  address: 127.0.0.1:9191\n"), 0o600))

	cfg := &testAppConfig{Server: &testServerConfig{}}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(cfgPath, DataTypeYAML, cfg))
	require.Equal(t, "127.0.0.1:9191", cfg.Server.Address)

	missingPath := filepath.Join(t.TempDir(), "missing.yml")
	err := NewLoader(NewViperAdapter()).LoadFromFile(missingPath, DataTypeYAML, &testAppConfig{Server: &testServerConfig{}})
	require.ErrorContains(t, err, "read config file "+missingPath)
}

func TestLoader_EnvVars(t *testing.T) {
	t.Setenv("BLOGAPI_SERVER_ADDRESS", ":7777")
	t.Setenv("BLOGAPI_UPLOADS_TYPES", "image/png, image/gif")

	cfg := &testAppConfig{Server: &testServerConfig{}, Uploads: &testUploadsConfig{}}
	err := NewDefaultLoader("blogapi").LoadFromReader(bytes.NewBufferString(`{"server":{"address":":80"}}`), DataTypeJSON, cfg)
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.Server.Address)
	require.Equal(t, []string{"image/png", "image/gif"}, cfg.Uploads.Types)
}

func TestViperAdapter_GetStringFromSet(t *testing.T) {
	va := NewViperAdapter()
	va.Set("alg", "Fixed_Window")

	val, err := va.GetStringFromSet("alg", []string{"fixed_window", "sliding_window"}, true)
	require.NoError(t, err)
	require.Equal(t, "Fixed_Window", val)

	_, err = va.GetStringFromSet("alg", []string{"fixed_window"}, false)
	require.EqualError(t, err, `alg: unknown value "Fixed_Window", should be one of [fixed_window]`)
}

func TestKeyPrefixedDataProvider(t *testing.T) {
	va := NewViperAdapter()
	va.Set("rateLimit.limit", 5)
	va.Set("auth.tokens", map[string]interface{}{"t1": "user-1"})

	rlDp := NewKeyPrefixedDataProvider(va, "rateLimit")
	limit, err := rlDp.GetInt("limit")
	require.NoError(t, err)
	require.Equal(t, 5, limit)
	require.EqualError(t, rlDp.WrapKeyErr("limit", errTest), "rateLimit.limit: test error")

	tokens, err := NewKeyPrefixedDataProvider(va, "auth").GetStringMapString("tokens")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"t1": "user-1"}, tokens)
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("test error")
