// Package ingest turns raw recognizer output into the normalized token
// stream the aligner consumes.
//
// Normalization makes sung words and lyric words comparable: everything is
// lowercased, punctuation is stripped, and a fixed table of common sung
// contractions is expanded ("gonna" → "going to"). The same normalization is
// applied to both sides — lyric timeline tokens and transcript words — so an
// exact match is a plain string equality.
//
// Normalization is idempotent: re-normalizing normalized text is a no-op.
package ingest

import "strings"

// contractions maps single sung words to their expanded forms. Values never
// appear as keys, which is what makes normalization idempotent.
var contractions = map[string]string{
	"gonna": "going to",
	"wanna": "want to",
	"gotta": "got to",
	"cause": "because",
	"cos":   "because",
	"em":    "them",
	"im":    "i am",
	"youre": "you are",
	"cant":  "cannot",
	"dont":  "do not",
	"wont":  "will not",
}

// NormalizeWord returns the comparison form of a single word: lowercased,
// punctuation stripped, contraction expanded. The result may contain a space
// when the expansion produces multiple words. Returns "" when nothing
// pronounceable remains.
func NormalizeWord(word string) string {
	fields := strings.Fields(stripPunct(strings.ToLower(word)))
	for i, f := range fields {
		if exp, ok := contractions[f]; ok {
			fields[i] = exp
		}
	}
	return strings.Join(fields, " ")
}

// Normalize splits text into words and normalizes each, flattening any
// contraction expansions. Empty results are dropped.
func Normalize(text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		n := NormalizeWord(w)
		if n == "" {
			continue
		}
		out = append(out, strings.Fields(n)...)
	}
	return out
}

// stripPunct removes everything that is not a letter, digit, space, or
// underscore — the same character class the scoring engine has always used.
func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '_':
			b.WriteRune(r)
		case r > 127 && isLetterLike(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isLetterLike reports whether a non-ASCII rune should survive punctuation
// stripping. Accented letters do; typographic quotes and dashes do not.
func isLetterLike(r rune) bool {
	switch {
	case r >= 0x2000 && r <= 0x206F: // general punctuation block
		return false
	case r == '¡' || r == '¿': // inverted ! and ?
		return false
	}
	return true
}
