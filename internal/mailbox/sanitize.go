package mailbox

import (
	"errors"
	"strings"
	"unicode"
)

// ErrNoSearchableTerm indicates that sanitization left nothing usable to
// search for.
var ErrNoSearchableTerm = errors.New("no searchable term")

// SanitizeTerm converts a free-form phrase (vendor name, transaction
// description) into a token safe to use in an IMAP SEARCH literal.
// Servers match non-ASCII literals unreliably, so combining marks and
// anything outside 7-bit ASCII are dropped rather than transliterated:
// "Ðuro Šimić" becomes "uro imi". When the whole phrase filters down to
// nothing, the first individual word whose ASCII form is longer than two
// characters is used instead; failing that, ErrNoSearchableTerm.
func SanitizeTerm(phrase string) (string, error) {
	safe := strings.TrimSpace(stripNonASCII(phrase))

	if safe == "" && phrase != "" {
		for _, word := range strings.Fields(phrase) {
			w := strings.TrimSpace(stripNonASCII(word))
			if len(w) > 2 {
				return w, nil
			}
		}
	}

	if safe == "" {
		return "", ErrNoSearchableTerm
	}
	return safe, nil
}

// stripNonASCII removes combining marks and every rune outside the 7-bit
// ASCII range.
func stripNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 128 || unicode.In(r, unicode.Mn, unicode.Mc, unicode.Me) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
