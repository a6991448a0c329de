package services

import (
	"strings"
	"unicode"
)

// NormalizePrompt trims the prompt, drops control characters and collapses
// runs of whitespace into single spaces.
func NormalizePrompt(prompt string) string {
	var b strings.Builder
	b.Grow(len(prompt))

	space := false
	for _, r := range prompt {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
