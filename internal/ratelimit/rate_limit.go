/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Validate checks that both the count and the duration are positive.
func (r Rate) Validate() error {
	if r.Count <= 0 {
		return fmt.Errorf("rate count should be > 0, got %d", r.Count)
	}
	if r.Duration <= 0 {
		return fmt.Errorf("rate duration should be > 0, got %s", r.Duration)
	}
	return nil
}

// String returns the rate in the "N/unit" form (e.g. "5/m", "100/15m").
func (r Rate) String() string {
	if r.Count == 0 && r.Duration == 0 {
		return ""
	}
	var d string
	switch r.Duration {
	case time.Second:
		d = "s"
	case time.Minute:
		d = "m"
	case time.Hour:
		d = "h"
	default:
		d = r.Duration.String()
	}
	return fmt.Sprintf("%d/%s", r.Count, d)
}

// ParseRate parses rates like "5/m", "10/s", "1000/h" or "100/15m".
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	incorrectFormatErr := fmt.Errorf(
		"incorrect format for rate %q, should be N/(s|m|h|<duration>), for example 10/s, 5/m, 100/15m", s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return Rate{}, incorrectFormatErr
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Rate{}, incorrectFormatErr
	}
	var dur time.Duration
	switch unit := strings.TrimSpace(parts[1]); strings.ToLower(unit) {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		if dur, err = time.ParseDuration(unit); err != nil {
			return Rate{}, incorrectFormatErr
		}
	}
	return Rate{Count: count, Duration: dur}, nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (r *Rate) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = Rate{}
		return nil
	}
	parsed, err := ParseRate(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// MarshalJSON implements the json.Marshaler interface.
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (r *Rate) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	return r.UnmarshalText([]byte(text))
}

// Limiter interface defines the rate limiting contract.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// Decision is the outcome of a single admission check together with the key's quota state.
type Decision struct {
	Allowed bool

	// Count is the number of requests observed for the key in the current window, including this one.
	Count int

	// Limit is the maximum number of allowed requests per window.
	Limit int

	// Remaining is how many more requests will be allowed in the current window. It is never negative.
	Remaining int

	// ResetAt is the instant the current window ends.
	ResetAt time.Time

	// RetryAfter is the time left until ResetAt for rejected requests, and zero for allowed ones.
	RetryAfter time.Duration
}

// QuotaLimiter is a Limiter that can also report the quota state behind each decision.
type QuotaLimiter interface {
	Limiter
	AllowWithQuota(ctx context.Context, key string) (Decision, error)
}

func makeDecision(count, limit int, resetAt, now time.Time) Decision {
	d := Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: limit - count,
		ResetAt:   resetAt,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}
