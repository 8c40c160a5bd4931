// Package sanitize cleans untrusted text before it reaches logs, prompts or
// stored reports.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxFieldLength     = 256
	DefaultMaxNarrativeLength = 8192
)

// Line removes escape sequences and control characters and folds the text
// onto a single line. The result is truncated to maxLen bytes on a rune
// boundary, with "..." marking the cut.
func Line(s string, maxLen int) string {
	return truncate(clean(s, false), maxLen)
}

// PromptField is Line with double quotes replaced by single quotes, so a
// value interpolated inside a quoted prompt field cannot close it.
func PromptField(s string, maxLen int) string {
	return truncate(strings.ReplaceAll(clean(s, false), `"`, `'`), maxLen)
}

// Narrative cleans generated text. Newlines survive, escape sequences and
// other control characters do not, and surrounding whitespace is trimmed.
func Narrative(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxNarrativeLength
	}
	return truncate(strings.TrimSpace(clean(s, true)), maxLen)
}

func clean(s string, keepNewlines bool) string {
	if s == "" {
		return s
	}
	if !needsCleaning(s, keepNewlines) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]

		if c == 0x1B {
			i = skipEscape(s, i)
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		i += size

		switch {
		case r == utf8.RuneError && size == 1:
			// Invalid UTF-8 byte.
		case r == '\n' && keepNewlines:
			b.WriteByte('\n')
		case r == '\r' && keepNewlines:
			// CRLF collapses to LF; spinner redraws vanish.
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func needsCleaning(s string, keepNewlines bool) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\n' && keepNewlines {
			continue
		}
		if c < 0x20 || c == 0x7F || c >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// skipEscape returns the index just past the escape sequence starting at i.
func skipEscape(s string, i int) int {
	i++
	if i < len(s) && s[i] == '[' {
		i++
		for i < len(s) && !isCSITerminator(s[i]) {
			i++
		}
		if i < len(s) {
			i++
		}
		return i
	}
	if i < len(s) {
		i++
	}
	return i
}

func isCSITerminator(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '@' || c == '`'
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return runeCut(s, maxLen)
	}
	return runeCut(s, maxLen-3) + "..."
}

func runeCut(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
