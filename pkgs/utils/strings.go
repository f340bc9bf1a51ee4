package utils

import (
	"regexp"
	"strings"
)

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reInvisible  = regexp.MustCompile(`[\x00-\x1F\x7F-\x9F\x{3000} ]`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiLF    = regexp.MustCompile(`\n+`)
)

func NormalizeString(s string) string {
	s = ReplaceNonBreakingSpaces(s)
	s = RemoveSpace(s)
	s = RemoveInvisibleChars(s)
	return s
}

func RemoveInvisibleChars(s string) string {
	return reInvisible.ReplaceAllString(s, "")
}

func ReplaceNonBreakingSpaces(s string) string {
	return strings.ReplaceAll(s, "\u00A0", " ")
}

func RemoveNonBreakingSpaces(s string) string {
	return strings.ReplaceAll(s, "\u00A0", "")
}

// RemoveSpace replaces every run of whitespace with a single space.
func RemoveSpace(s string) string {
	return reWhitespace.ReplaceAllString(s, " ")
}

// CollapseSpaces replaces runs of two or more ASCII spaces with one.
func CollapseSpaces(s string) string {
	return reMultiSpace.ReplaceAllString(s, " ")
}

func CollapseNewlines(s string) string {
	return reMultiLF.ReplaceAllString(s, "\n")
}

// Preview cuts s to at most n runes for log lines.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

// NonEmptyLines splits s on newlines and returns the trimmed, non-empty lines.
func NonEmptyLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func Mask(pwd string) string {
	if len(pwd) <= 10 {
		return strings.Repeat("●", len(pwd))
	}
	return pwd[:5] + strings.Repeat("●", min(len(pwd)-10, 10)) + pwd[len(pwd)-5:]
}
