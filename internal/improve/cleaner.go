// Package improve turns raw recognition output into presentable sentences.
package improve

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Cleaner applies substitutions and then sentence cleanup.
type Cleaner struct {
	subs *Substitutions
}

// NewCleaner builds a Cleaner. A nil subs disables substitutions.
func NewCleaner(subs *Substitutions) *Cleaner {
	return &Cleaner{subs: subs}
}

// Improve implements ports.Improver.
func (c *Cleaner) Improve(text string) (string, error) {
	if c != nil {
		text = c.subs.Apply(text)
	}
	return Clean(text), nil
}

// Clean trims the text, collapses runs of whitespace, upper-cases a leading
// lower-case letter and ends the sentence with a period unless it already
// ends in '.', '?' or '!'.
func Clean(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	first, size := utf8.DecodeRuneInString(text)
	if !unicode.IsUpper(first) {
		text = string(unicode.ToUpper(first)) + text[size:]
	}

	switch text[len(text)-1] {
	case '.', '?', '!':
	default:
		text += "."
	}
	return text
}
