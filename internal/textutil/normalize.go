package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Placeholder is shown for values that are absent.
const Placeholder = "—"

var upperCaser = cases.Upper(language.BrazilianPortuguese)

// NormalizeName uppercases and trims a party name.
func NormalizeName(name string) string {
	return strings.TrimSpace(upperCaser.String(name))
}

// NameTokens splits a normalized name on whitespace and keeps the distinct
// tokens longer than two characters.
func NameTokens(name string) map[string]struct{} {
	fields := strings.Fields(name)
	tokens := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if utf8.RuneCountInString(field) <= 2 {
			continue
		}
		tokens[field] = struct{}{}
	}
	return tokens
}

// DigitsOnly drops every non-digit character.
func DigitsOnly(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// InvoiceKey strips surrounding space and leading zeros from an invoice
// number. "00123" and "123" share the key "123"; "000" has no key.
func InvoiceKey(number string) string {
	return strings.TrimLeft(strings.TrimSpace(number), "0")
}

// OrPlaceholder returns value, or Placeholder when value is blank.
func OrPlaceholder(value string) string {
	if strings.TrimFunc(value, unicode.IsSpace) == "" {
		return Placeholder
	}
	return value
}
