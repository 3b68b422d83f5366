/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-blogapi/config"
	"github.com/acronis/go-blogapi/httpserver/middleware"
	"github.com/acronis/go-blogapi/log/logtest"
	"github.com/acronis/go-blogapi/restapi"
	"github.com/acronis/go-blogapi/testutil"
)

const testErrDomain = "BlogAPI"

func TestAuthenticator_Authenticate(t *testing.T) {
	a := NewAuthenticator(map[string]string{"s3cr3t": "alice"})

	tests := []struct {
		name       string
		header     string
		wantUserID string
		wantErr    error
	}{
		{name: "valid token", header: "Bearer s3cr3t", wantUserID: "alice"},
		{name: "lowercase scheme", header: "bearer s3cr3t", wantUserID: "alice"},
		{name: "no header", header: "", wantErr: ErrNoToken},
		{name: "basic scheme", header: "Basic YWxpY2U6cGFzcw==", wantErr: ErrNoToken},
		{name: "empty token", header: "Bearer   ", wantErr: ErrNoToken},
		{name: "unknown token", header: "Bearer nope", wantErr: ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			userID, err := a.Authenticate(req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantUserID, userID)
		})
	}
}

func TestAuthenticator_Required(t *testing.T) {
	a := NewAuthenticator(map[string]string{"s3cr3t": "alice"})
	var gotUserID string
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserIDFromContext(r.Context())
		rw.WriteHeader(http.StatusNoContent)
	})
	h := a.Required(testErrDomain)(next)

	t.Run("authorized", func(t *testing.T) {
		gotUserID = ""
		loggingParams := &middleware.LoggingParams{}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", nil)
		req.Header.Set("Authorization", "Bearer s3cr3t")
		req = req.WithContext(middleware.NewContextWithLoggingParams(req.Context(), loggingParams))
		resp := httptest.NewRecorder()

		h.ServeHTTP(resp, req)

		require.Equal(t, http.StatusNoContent, resp.Code)
		require.Equal(t, "alice", gotUserID)
	})

	t.Run("unauthorized", func(t *testing.T) {
		gotUserID = ""
		logRecorder := logtest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", nil)
		req = req.WithContext(middleware.NewContextWithLogger(req.Context(), logRecorder))
		resp := httptest.NewRecorder()

		h.ServeHTTP(resp, req)

		testutil.RequireErrorInRecorder(t, resp, http.StatusUnauthorized, testErrDomain, restapi.ErrCodeUnauthorized)
		require.Equal(t, `Bearer realm="blogapi"`, resp.Header().Get("WWW-Authenticate"))
		require.Empty(t, gotUserID)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		resp := httptest.NewRecorder()

		h.ServeHTTP(resp, req)

		require.Equal(t, http.StatusUnauthorized, resp.Code)
		require.Contains(t, resp.Body.String(), ErrMessageInvalidToken)
	})
}

func TestConfig(t *testing.T) {
	t.Run("users from yaml and tokens", func(t *testing.T) {
		cfgData := `
auth:
  users:
    - id: alice
      token: s3cr3t
  tokens: "bob:t0k3n, carol:xyz"
`
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, map[string]string{"s3cr3t": "alice", "t0k3n": "bob", "xyz": "carol"}, cfg.Tokens())
	})

	t.Run("invalid pair", func(t *testing.T) {
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"auth":{"tokens":"alice"}}`), config.DataTypeJSON, NewConfig())
		require.EqualError(t, err, `auth.tokens: "alice" should be in id:token format`)
	})

	t.Run("duplicated token", func(t *testing.T) {
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"auth":{"tokens":"alice:x,bob:x"}}`), config.DataTypeJSON, NewConfig())
		require.EqualError(t, err, `auth.users.1: token is used by several users`)
	})
}
