package util

import "strings"

// ParseFlag interprets the loose truthy spellings found in hand-maintained universe sheets.
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on", "active":
		return true
	default:
		return false
	}
}

// CanonicalName maps a column or identifier to lower_snake form:
//
//	"Adj Close"  -> "adj_close"
//	"BRK-B"      -> "brk_b"
//	"0700.HK"    -> "0700_hk"
//	" Volume "   -> "volume"
//	"Close*"     -> "close"
//
// Spaces, '-', '.', '/' and '_' are separators; any other character outside
// [a-z0-9] is dropped. Runs of separators collapse to one underscore and
// leading/trailing underscores are trimmed.
func CanonicalName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '/' || r == '_' || r == '\t':
			pendingSep = true
		}
	}
	return b.String()
}
