/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Mask is used to mask a secret in strings.
type Mask struct {
	RegExp *regexp.Regexp
	Mask   string
}

// NewMask builds a Mask from its configuration.
func NewMask(cfg MaskConfig) Mask {
	return Mask{regexp.MustCompile(cfg.RegExp), cfg.Mask}
}

// FieldMasker is used to mask a field in different formats.
type FieldMasker struct {
	Field string // Field is a name of a field used in RegExp, must be lowercase
	Masks []Mask
}

// NewFieldMasker builds a FieldMasker from a masking rule,
// expanding the rule's formats into concrete masks.
func NewFieldMasker(cfg MaskingRuleConfig) FieldMasker {
	fMask := FieldMasker{Field: strings.ToLower(cfg.Field), Masks: make([]Mask, 0, len(cfg.Masks))}

	for _, repCfg := range cfg.Masks {
		fMask.Masks = append(fMask.Masks, NewMask(repCfg))
	}
	for _, format := range cfg.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			fMask.Masks = append(fMask.Masks, NewMask(MaskConfig{`(?i)` + cfg.Field + `: .+?\r\n`, cfg.Field + ": ***\r\n"}))
		case FieldMaskFormatJSON:
			fMask.Masks = append(fMask.Masks, NewMask(MaskConfig{`(?i)"` + cfg.Field + `"\s*:\s*".*?[^\\]"`, `"` + cfg.Field + `": "***"`}))
		case FieldMaskFormatURLEncoded:
			fMask.Masks = append(fMask.Masks, NewMask(MaskConfig{`(?i)` + cfg.Field + `\s*=\s*[^&\s]+`, cfg.Field + "=***"}))
		}
	}
	return fMask
}

// Masker is used to mask various secrets in strings.
// A multi-pattern substring matcher selects which field masks can possibly
// apply to a given string, so the regexps run only for matched fields.
type Masker struct {
	FieldMasks []FieldMasker

	prefilter *ahocorasick.Matcher
}

// NewMasker builds a Masker from the given masking rules.
func NewMasker(rules []MaskingRuleConfig) *Masker {
	m := &Masker{FieldMasks: make([]FieldMasker, 0, len(rules))}
	fields := make([]string, 0, len(rules))
	for _, rule := range rules {
		fm := NewFieldMasker(rule)
		m.FieldMasks = append(m.FieldMasks, fm)
		fields = append(fields, fm.Field)
	}
	if len(fields) != 0 {
		m.prefilter = ahocorasick.NewStringMatcher(fields)
	}
	return m
}

// Mask replaces all secrets found in s according to the masker's rules.
func (m *Masker) Mask(s string) string {
	if m.prefilter == nil {
		return s
	}
	hits := m.prefilter.Match([]byte(strings.ToLower(s)))
	if len(hits) == 0 {
		return s
	}
	sort.Ints(hits)
	for _, idx := range hits {
		for _, rep := range m.FieldMasks[idx].Masks {
			s = rep.RegExp.ReplaceAllString(s, rep.Mask)
		}
	}
	return s
}

// DefaultMasks is the default set of masking rules.
// It covers the credentials this service is likely to see in URLs,
// headers and JSON payloads, the upstream API token first of all.
var DefaultMasks = []MaskingRuleConfig{
	{
		Field:   "Authorization",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader},
	},
	{
		Field:   "password",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "client_secret",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "access_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "refresh_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "api_key",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
}
