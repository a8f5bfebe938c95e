package export

import (
	"strings"

	"github.com/gosimple/slug"
)

// UnnamedItem is the sentinel used for records with absent or empty naming
// attribute.
const UnnamedItem = "UnnamedItem"

// Characters invalid in common filesystem path segments.
const forbidden = `\/*?:"<>|`

// SafeName replaces every filesystem-invalid character in a record name
// with '_'. Replacement is 1:1 per character, runs are not collapsed, so
// the result is stable and the function is idempotent.
func SafeName(in string) string {
	return strings.Map(func(sym rune) rune {
		if strings.ContainsRune(forbidden, sym) {
			return '_'
		}
		return sym
	}, in)
}

// fileName derives the output file base name for a record: sentinel for
// missing names, optional transliteration, then sanitization.
func fileName(raw string, transliterate bool) string {
	if strings.TrimSpace(raw) == "" {
		raw = UnnamedItem
	}
	if transliterate {
		if s := slug.Make(raw); s != "" {
			raw = s
		}
	}
	return SafeName(raw)
}
