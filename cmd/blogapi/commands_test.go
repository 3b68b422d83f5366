/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-blogapi/internal/buildinfo"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckConfig(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
auth:
  users:
    - id: alice
      token: s3cr3t
rateLimit:
  rate: 10/s
  key:
    source: forwardedFor
`), 0o600))

	t.Run("valid", func(t *testing.T) {
		out, err := runCommand(t, "check-config", "--config", cfgPath)
		require.NoError(t, err)
		require.Contains(t, out, "configuration is valid (1 users)")
		require.Contains(t, out, "rate: 10/s")
		require.Contains(t, out, "source: forwardedFor")
		require.NotContains(t, out, "s3cr3t")
	})

	t.Run("env file overrides", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.staging"), []byte("BLOGAPI_RATELIMIT_RATE=3/m\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv("BLOGAPI_RATELIMIT_RATE") })

		out, err := runCommand(t, "check-config", "--config", cfgPath, "--env", "staging")
		require.NoError(t, err)
		require.Contains(t, out, "rate: 3/m")
	})

	t.Run("invalid", func(t *testing.T) {
		badPath := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(badPath, []byte("rateLimit: {alg: magic}\n"), 0o600))
		_, err := runCommand(t, "check-config", "--config", badPath, "--env", "test")
		require.ErrorContains(t, err, "rateLimit.alg: unknown value")
	})
}

func TestVersion(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "blogapi "+buildinfo.Get().Version), out)
}
