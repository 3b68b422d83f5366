/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/ssgreg/logf"
)

// StringMasker hides secrets in log messages and field values.
type StringMasker interface {
	Mask(s string) string
	MaskFieldValue(key, s string) string
}

// MaskingLogger masks secrets in messages and fields before passing them to the wrapped logger.
// It keeps bearer tokens out of the logs when the Authorization header is logged by the HTTP middleware.
type MaskingLogger struct {
	log    FieldLogger
	masker StringMasker
}

// NewMaskingLogger wraps l so that every message and field goes through masker.
func NewMaskingLogger(l FieldLogger, masker StringMasker) FieldLogger {
	return MaskingLogger{l, masker}
}

// With returns a new logger with the given additional fields.
func (l MaskingLogger) With(fs ...Field) FieldLogger {
	return MaskingLogger{l.log.With(l.maskFields(fs)...), l.masker}
}

// Debug logs message at "debug" level.
func (l MaskingLogger) Debug(text string, fs ...Field) {
	l.log.Debug(l.masker.Mask(text), l.maskFields(fs)...)
}

// Info logs message at "info" level.
func (l MaskingLogger) Info(text string, fs ...Field) {
	l.log.Info(l.masker.Mask(text), l.maskFields(fs)...)
}

// Warn logs message at "warn" level.
func (l MaskingLogger) Warn(text string, fs ...Field) {
	l.log.Warn(l.masker.Mask(text), l.maskFields(fs)...)
}

// Error logs message at "error" level.
func (l MaskingLogger) Error(text string, fs ...Field) {
	l.log.Error(l.masker.Mask(text), l.maskFields(fs)...)
}

// Debugf logs a formatted message at "debug" level.
func (l MaskingLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at "info" level.
func (l MaskingLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at "warn" level.
func (l MaskingLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at "error" level.
func (l MaskingLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// AtLevel calls fn if the level is enabled, masking whatever fn logs.
func (l MaskingLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.log.AtLevel(level, func(logFunc LogFunc) {
		fn(func(msg string, fs ...Field) {
			logFunc(l.masker.Mask(msg), l.maskFields(fs)...)
		})
	})
}

// WithLevel returns a new logger with additional level check.
func (l MaskingLogger) WithLevel(level Level) FieldLogger {
	return MaskingLogger{l.log.WithLevel(level), l.masker}
}

var stringSliceType = reflect.TypeOf([]string{})

// maskFields returns fields unchanged if nothing was masked, otherwise a masked copy.
// Fields of arbitrary types (logf.Any) are not inspected.
func (l MaskingLogger) maskFields(fields []Field) []Field {
	var masked []Field
	for i := range fields {
		f, changed := l.maskField(fields[i])
		if !changed {
			continue
		}
		if masked == nil {
			masked = make([]Field, len(fields))
			copy(masked, fields)
		}
		masked[i] = f
	}
	if masked == nil {
		return fields
	}
	return masked
}

func (l MaskingLogger) maskField(field Field) (Field, bool) {
	switch field.Type {
	case logf.FieldTypeBytesToString:
		s := string(field.Bytes)
		if m := l.masker.MaskFieldValue(field.Key, s); m != s {
			return String(field.Key, m), true
		}
	case logf.FieldTypeBytes, logf.FieldTypeRawBytes:
		if field.Bytes == nil {
			break
		}
		s := string(field.Bytes)
		if m := l.masker.MaskFieldValue(field.Key, s); m != s {
			return logf.ConstBytes(field.Key, []byte(m)), true
		}
	case logf.FieldTypeError:
		err, ok := field.Any.(error)
		if !ok || err == nil {
			break
		}
		s := err.Error()
		if m := l.masker.Mask(s); m != s {
			return NamedError(field.Key, newMaskedError(err, l.masker, m)), true
		}
	case logf.FieldTypeArray:
		if field.Any == nil {
			break
		}
		v := reflect.ValueOf(field.Any)
		if !v.CanConvert(stringSliceType) {
			break
		}
		ss := v.Convert(stringSliceType).Interface().([]string)
		masked := make([]string, len(ss))
		var changed bool
		for i, s := range ss {
			masked[i] = l.masker.MaskFieldValue(field.Key, s)
			changed = changed || masked[i] != s
		}
		if changed {
			return Strings(field.Key, masked), true
		}
	}
	return field, false
}

func newMaskedError(err error, masker StringMasker, masked string) error {
	if _, ok := err.(fmt.Formatter); ok {
		return maskedError{s: masked, verbose: masker.Mask(fmt.Sprintf("%+v", err))}
	}
	return errors.New(masked)
}

// maskedError masks the verbose (%+v) form too.
type maskedError struct {
	s       string
	verbose string
}

func (e maskedError) Error() string {
	return e.s
}

func (e maskedError) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, e.verbose)
}
