/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/vasayxtx/go-glob"
)

// RateLimitUnknownKey is used when no client address can be determined.
const RateLimitUnknownKey = "unknown"

// RateLimitKeySource defines where the rate limiting key is taken from.
type RateLimitKeySource string

// Supported key sources.
const (
	// RateLimitKeySourceRemoteAddr uses the host of the TCP peer address. Safe when clients connect directly.
	RateLimitKeySourceRemoteAddr RateLimitKeySource = "remoteAddr"

	// RateLimitKeySourceForwardedFor uses the first X-Forwarded-For entry.
	// Use only behind a trusted proxy that overwrites the header, otherwise clients can spoof it.
	RateLimitKeySourceForwardedFor RateLimitKeySource = "forwardedFor"

	// RateLimitKeySourceRealIP uses the X-Real-IP header. The same trust requirement applies.
	RateLimitKeySourceRealIP RateLimitKeySource = "realIP"

	// RateLimitKeySourceHeader uses the value of an arbitrary header (e.g. an API key).
	RateLimitKeySourceHeader RateLimitKeySource = "header"
)

// RateLimitKeyByRemoteAddr returns the host part of r.RemoteAddr.
func RateLimitKeyByRemoteAddr(r *http.Request) (key string, bypass bool, err error) {
	return remoteAddrHost(r), false, nil
}

// RateLimitKeyByForwardedFor returns the first X-Forwarded-For entry, falling back to the remote address.
func RateLimitKeyByForwardedFor(r *http.Request) (key string, bypass bool, err error) {
	if forwardedFor := firstForwardedFor(r); forwardedFor != "" {
		return forwardedFor, false, nil
	}
	return remoteAddrHost(r), false, nil
}

// RateLimitKeyByRealIP returns the X-Real-IP header value, falling back to the remote address.
func RateLimitKeyByRealIP(r *http.Request) (key string, bypass bool, err error) {
	if realIP := strings.TrimSpace(r.Header.Get(headerRealIP)); realIP != "" {
		return realIP, false, nil
	}
	return remoteAddrHost(r), false, nil
}

// RateLimitKeyByHeader returns a function that takes the key from the given header.
// Requests without the header are limited by the remote address.
func RateLimitKeyByHeader(headerName string) RateLimitGetKeyFunc {
	return func(r *http.Request) (key string, bypass bool, err error) {
		if val := strings.TrimSpace(r.Header.Get(headerName)); val != "" {
			return val, false, nil
		}
		return remoteAddrHost(r), false, nil
	}
}

// NewRateLimitGetKeyFunc makes a key function for the given source.
// Requests whose key matches one of excludedKeys (glob patterns, e.g. "10.0.*") bypass the limiting.
func NewRateLimitGetKeyFunc(source RateLimitKeySource, headerName string, excludedKeys []string) (RateLimitGetKeyFunc, error) {
	var getKey RateLimitGetKeyFunc
	switch source {
	case RateLimitKeySourceRemoteAddr, "":
		getKey = RateLimitKeyByRemoteAddr
	case RateLimitKeySourceForwardedFor:
		getKey = RateLimitKeyByForwardedFor
	case RateLimitKeySourceRealIP:
		getKey = RateLimitKeyByRealIP
	case RateLimitKeySourceHeader:
		if headerName == "" {
			return nil, fmt.Errorf("header name is required for %q key source", source)
		}
		getKey = RateLimitKeyByHeader(headerName)
	default:
		return nil, fmt.Errorf("unknown rate limit key source %q", source)
	}
	if len(excludedKeys) == 0 {
		return getKey, nil
	}

	matchers := make([]func(string) bool, 0, len(excludedKeys))
	for _, pattern := range excludedKeys {
		matchers = append(matchers, glob.Compile(pattern))
	}
	return func(r *http.Request) (string, bool, error) {
		key, bypass, err := getKey(r)
		if err != nil || bypass {
			return key, bypass, err
		}
		for _, match := range matchers {
			if match(key) {
				return key, true, nil
			}
		}
		return key, false, nil
	}, nil
}

func remoteAddrHost(r *http.Request) string {
	remoteAddr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return RateLimitUnknownKey
}
