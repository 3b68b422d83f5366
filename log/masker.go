/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"regexp"
	"strings"
)

const maskedValue = "***"

// Mask replaces every match of RegExp with Mask.
type Mask struct {
	RegExp *regexp.Regexp
	Mask   string
}

// NewMask compiles the mask. It panics if the regular expression is invalid.
func NewMask(cfg MaskConfig) Mask {
	return Mask{regexp.MustCompile(cfg.RegExp), cfg.Mask}
}

// FieldMasker hides the value of a single named secret in all configured formats.
type FieldMasker struct {
	// Field is the lowercased secret name. Masks run only for strings containing it.
	Field string
	Masks []Mask

	// logFieldSuffix is set for the log_field format. Any log field whose key ends with it is fully masked.
	logFieldSuffix string
}

// NewFieldMasker builds masks for the rule's formats followed by its custom masks.
func NewFieldMasker(cfg MaskingRuleConfig) FieldMasker {
	fm := FieldMasker{Field: strings.ToLower(cfg.Field), Masks: make([]Mask, 0, len(cfg.Masks)+len(cfg.Formats))}
	name := regexp.QuoteMeta(cfg.Field)
	for _, format := range cfg.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)` + name + `: .+?\r\n`, cfg.Field + ": " + maskedValue + "\r\n"}))
		case FieldMaskFormatJSON:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)"` + name + `"\s*:\s*".*?[^\\]"`, `"` + cfg.Field + `": "` + maskedValue + `"`}))
		case FieldMaskFormatURLEncoded:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)` + name + `\s*=\s*[^&\s]+`, cfg.Field + "=" + maskedValue}))
		case FieldMaskFormatLogField:
			fm.logFieldSuffix = logFieldKey(cfg.Field)
		}
	}
	for _, maskCfg := range cfg.Masks {
		fm.Masks = append(fm.Masks, NewMask(maskCfg))
	}
	return fm
}

// Masker hides secrets in log messages and field values.
type Masker struct {
	FieldMasks []FieldMasker
}

// NewMasker creates a Masker. Rules are applied in the given order.
func NewMasker(rules []MaskingRuleConfig) *Masker {
	m := &Masker{FieldMasks: make([]FieldMasker, 0, len(rules))}
	for _, rule := range rules {
		m.FieldMasks = append(m.FieldMasks, NewFieldMasker(rule))
	}
	return m
}

// Mask returns s with every known secret replaced.
func (m *Masker) Mask(s string) string {
	lower := strings.ToLower(s)
	for _, fm := range m.FieldMasks {
		if !strings.Contains(lower, fm.Field) {
			continue
		}
		for _, mask := range fm.Masks {
			s = mask.RegExp.ReplaceAllString(s, mask.Mask)
		}
		lower = strings.ToLower(s)
	}
	return s
}

// MaskFieldValue masks the value of the log field with the given key.
// The whole non-empty value is hidden when the key names a secret (e.g. "req_header_authorization").
func (m *Masker) MaskFieldValue(key, s string) string {
	if s != "" {
		lowerKey := strings.ToLower(key)
		for _, fm := range m.FieldMasks {
			if fm.logFieldSuffix != "" && strings.HasSuffix(lowerKey, fm.logFieldSuffix) {
				return maskedValue
			}
		}
	}
	return m.Mask(s)
}

func logFieldKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "-", "_"))
}

// DefaultMasks hide credentials the service may see in requests.
var DefaultMasks = []MaskingRuleConfig{
	{
		Field:   "Authorization",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader, FieldMaskFormatLogField},
	},
	{
		Field:   "password",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded, FieldMaskFormatLogField},
	},
	{
		Field:   "access_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
}
