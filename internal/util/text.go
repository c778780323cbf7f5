package util

import (
	"strings"
	"unicode"
)

// SanitizePostgresText makes extracted text storable in a Postgres text
// column. NUL bytes and invalid UTF-8 are removed. Other control
// characters, such as the form feeds PDF extraction leaves between pages,
// become spaces; tabs and line breaks are kept.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0:
			return -1
		case r == '\n' || r == '\r' || r == '\t':
			return r
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, strings.ToValidUTF8(value, ""))
}
