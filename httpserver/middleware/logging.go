/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-blogapi/log"
)

const (
	// LoggingSecretQueryPlaceholder represents a placeholder that will be used for secret query parameters.
	LoggingSecretQueryPlaceholder = "_HIDDEN_"

	// DefaultSlowRequestThreshold is the request duration starting from which the completion line is logged at warn level.
	DefaultSlowRequestThreshold = time.Second

	userAgentLogFieldKey = "user_agent"

	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// LoggingOpts represents an options for Logging middleware.
type LoggingOpts struct {
	// RequestStart enables an additional "request started" line.
	RequestStart bool

	// RequestHeaders maps request header names to log field keys.
	RequestHeaders map[string]string

	// ExcludedEndpoints are URL path glob patterns (e.g. "/healthz", "/uploads/*")
	// whose successful requests are not logged.
	ExcludedEndpoints []string

	// SecretQueryParams are query parameters whose values are replaced with LoggingSecretQueryPlaceholder.
	SecretQueryParams []string

	// AddRequestInfoToLogger puts method, uri and other request fields into the logger passed down in the context.
	AddRequestInfoToLogger bool

	// SlowRequestThreshold controls when the completion line is logged at warn level with the "time_slots" group.
	// DefaultSlowRequestThreshold is used if zero.
	SlowRequestThreshold time.Duration
}

type loggingHandler struct {
	next             http.Handler
	logger           log.FieldLogger
	opts             LoggingOpts
	excludedMatchers []func(string) bool
}

// Logging is a middleware that logs info about HTTP request and response.
// Also, it puts logger (with external and internal request's ids in fields) into request's context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a more configurable version of Logging middleware.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	if opts.SlowRequestThreshold == 0 {
		opts.SlowRequestThreshold = DefaultSlowRequestThreshold
	}
	excludedMatchers := make([]func(string) bool, 0, len(opts.ExcludedEndpoints))
	for _, pattern := range opts.ExcludedEndpoints {
		excludedMatchers = append(excludedMatchers, glob.Compile(pattern))
	}
	return func(next http.Handler) http.Handler {
		return &loggingHandler{next: next, logger: logger, opts: opts, excludedMatchers: excludedMatchers}
	}
}

func (h *loggingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	startTime := GetRequestStartTimeFromContext(ctx)
	if startTime.IsZero() {
		startTime = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, startTime)
	}

	loggerForNext := h.logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)

	logFields := make([]log.Field, 0, 8)
	logFields = append(
		logFields,
		log.String("method", r.Method),
		log.String("uri", h.makeURIToLog(r)),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String(userAgentLogFieldKey, r.UserAgent()),
	)
	if addrIP, addrPort, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		logFields = append(logFields, log.String("remote_addr_ip", addrIP))
		if port, pErr := strconv.ParseUint(addrPort, 10, 16); pErr == nil {
			logFields = append(logFields, log.Uint16("remote_addr_port", uint16(port)))
		}
	}
	if originAddr := getOriginAddr(r); originAddr != "" {
		logFields = append(logFields, log.String("origin_addr", originAddr))
	}
	for reqHeaderName, logKey := range h.opts.RequestHeaders {
		logFields = append(logFields, log.String(logKey, r.Header.Get(reqHeaderName)))
	}

	logger := loggerForNext.With(logFields...)
	if h.opts.AddRequestInfoToLogger {
		loggerForNext = logger
	}

	noLog := h.isExcluded(r.URL.Path)
	if h.opts.RequestStart && !noLog {
		logger.Info("request started")
	}

	lp := &LoggingParams{}
	r = r.WithContext(NewContextWithLoggingParams(NewContextWithLogger(ctx, loggerForNext), lp))
	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	h.next.ServeHTTP(wrw, r)

	status := statusOf(wrw)
	if noLog && status < http.StatusBadRequest {
		return
	}

	duration := time.Since(startTime)
	fields := append([]log.Field{
		log.Int64("duration_ms", duration.Milliseconds()),
		log.Int("status", status),
		log.Int("bytes_sent", wrw.BytesWritten()),
	}, lp.fields...)
	msg := fmt.Sprintf("response completed in %.3fs", duration.Seconds())
	if duration < h.opts.SlowRequestThreshold {
		logger.Info(msg, fields...)
		return
	}
	if len(lp.timeSlots) != 0 {
		fields = append(fields, log.Field{Key: "time_slots", Type: logf.FieldTypeObject, Any: lp.timeSlots})
	}
	logger.Warn(msg, fields...)
}

func (h *loggingHandler) isExcluded(urlPath string) bool {
	for _, match := range h.excludedMatchers {
		if match(urlPath) {
			return true
		}
	}
	return false
}

func (h *loggingHandler) makeURIToLog(r *http.Request) string {
	if len(h.opts.SecretQueryParams) == 0 || r.URL.RawQuery == "" {
		return r.RequestURI
	}
	queryValues := r.URL.Query()
	for _, k := range h.opts.SecretQueryParams {
		vals := queryValues[k]
		for i := range vals {
			if vals[i] != "" {
				vals[i] = LoggingSecretQueryPlaceholder
			}
		}
	}
	return r.URL.Path + "?" + queryValues.Encode()
}

func getOriginAddr(r *http.Request) string {
	if forwardedFor := firstForwardedFor(r); forwardedFor != "" {
		return forwardedFor
	}
	return strings.TrimSpace(r.Header.Get(headerRealIP))
}

// firstForwardedFor returns the left-most (client) entry of the X-Forwarded-For header.
func firstForwardedFor(r *http.Request) string {
	forwardedFor := r.Header.Get(headerForwardedFor)
	if idx := strings.IndexByte(forwardedFor, ','); idx != -1 {
		forwardedFor = forwardedFor[:idx]
	}
	return strings.TrimSpace(forwardedFor)
}
