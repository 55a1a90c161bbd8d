package calc

import (
	"regexp"
	"strings"
)

// Percentage phrases are rewritten as ordered textual substitutions. Order
// matters: "off"/"of" forms consume the percent sign before the additive
// forms get a chance to re-match their output. X may be a decimal literal or
// a bare identifier.
var (
	rePercentOff   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s+off\s+(\d+(?:\.\d+)?|\w+)`)
	rePercentOf    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s+of\s+(\d+(?:\.\d+)?|\w+)`)
	rePercentPlus  = regexp.MustCompile(`(\d+(?:\.\d+)?|\w+)\s*\+\s*(\d+(?:\.\d+)?)\s*%`)
	rePercentMinus = regexp.MustCompile(`(\d+(?:\.\d+)?|\w+)\s*-\s*(\d+(?:\.\d+)?)\s*%`)

	reName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// StripComment cuts the line at the first unescaped '#' and trims the
// remainder. A line that is blank after stripping is an empty line.
func StripComment(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && (i == 0 || s[i-1] != '\\') {
			return strings.TrimSpace(s[:i])
		}
	}
	return strings.TrimSpace(s)
}

// NormalizeOperators maps the Unicode multiplication and division glyphs to
// their ASCII forms.
func NormalizeOperators(s string) string {
	s = strings.ReplaceAll(s, "×", "*")
	s = strings.ReplaceAll(s, "÷", "/")
	return s
}

// RewritePercentages turns natural-language percentage phrases into plain
// arithmetic:
//
//	"P% off X" → (X - X * P / 100)
//	"P% of X"  → (X * P / 100)
//	"X + P%"   → (X * (1 + P / 100))
//	"X - P%"   → (X * (1 - P / 100))
func RewritePercentages(s string) string {
	s = rePercentOff.ReplaceAllString(s, `(${2} - ${2} * ${1} / 100)`)
	s = rePercentOf.ReplaceAllString(s, `(${2} * ${1} / 100)`)
	s = rePercentPlus.ReplaceAllString(s, `(${1} * (1 + ${2} / 100))`)
	s = rePercentMinus.ReplaceAllString(s, `(${1} * (1 - ${2} / 100))`)
	return s
}

// SplitAssignment splits "name = expression" into its target and right-hand
// side. Only a string with exactly one '=' is an assignment; zero or more
// than one means the whole string is evaluated as-is.
func SplitAssignment(s string) (target, rhs string, ok bool) {
	parts := strings.Split(s, "=")
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
	}
	return "", strings.TrimSpace(s), false
}

// ValidName reports whether s is a legal variable name: a letter or
// underscore followed by letters, digits, or underscores. An assignment to
// an invalid name fails the whole line rather than silently evaluating.
func ValidName(s string) bool {
	return reName.MatchString(s)
}
