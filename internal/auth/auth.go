/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package auth verifies bearer tokens of incoming requests.
// Tokens are provisioned through configuration, each one maps to a user id.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/acronis/go-blogapi/httpserver/middleware"
	"github.com/acronis/go-blogapi/log"
	"github.com/acronis/go-blogapi/restapi"
)

// Errors returned by Authenticator.
var (
	ErrNoToken      = errors.New("no bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

const (
	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
)

// Error messages.
const (
	ErrMessageNoToken      = "Access token is required."
	ErrMessageInvalidToken = "Access token is invalid."
)

type ctxKey int

const ctxKeyUserID ctxKey = iota

// NewContextWithUserID creates a new context with the authenticated user id.
func NewContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// GetUserIDFromContext extracts the authenticated user id from the context.
// It returns an empty string for anonymous requests.
func GetUserIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(ctxKeyUserID).(string)
	return value
}

// Authenticator resolves bearer tokens to user ids.
type Authenticator struct {
	tokens map[string]string
}

// NewAuthenticator creates a new Authenticator with a token -> user id map.
func NewAuthenticator(tokens map[string]string) *Authenticator {
	copied := make(map[string]string, len(tokens))
	for token, userID := range tokens {
		copied[token] = userID
	}
	return &Authenticator{tokens: copied}
}

// Authenticate returns the user id of the request's bearer token.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get(headerAuthorization)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrNoToken
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrNoToken
	}
	for known, userID := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return userID, nil
		}
	}
	return "", ErrInvalidToken
}

// Required is a middleware that rejects requests without a valid bearer token with 401.
// The user id of authenticated requests is put into the context and into the request's log line.
func (a *Authenticator) Required(errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			userID, err := a.Authenticate(r)
			if err != nil {
				msg := ErrMessageInvalidToken
				if errors.Is(err, ErrNoToken) {
					msg = ErrMessageNoToken
				}
				rw.Header().Set("WWW-Authenticate", `Bearer realm="blogapi"`)
				apiErr := restapi.NewError(errDomain, restapi.ErrCodeUnauthorized, msg)
				restapi.RespondError(rw, http.StatusUnauthorized, apiErr, middleware.GetLoggerFromContext(r.Context()))
				return
			}
			if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
				lp.ExtendFields(log.String("user_id", userID))
			}
			next.ServeHTTP(rw, r.WithContext(NewContextWithUserID(r.Context(), userID)))
		})
	}
}
