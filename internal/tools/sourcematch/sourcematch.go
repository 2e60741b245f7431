// Package sourcematch suggests the closest known document source when a
// requested source name matches nothing in the store.
//
// Matching runs in two passes. Double Metaphone codes narrow the known
// sources down to the ones that sound like the request, and the best of
// those by Jaro-Winkler similarity wins once it clears a lenient threshold.
// When nothing sounds alike, a spelling-only Jaro-Winkler pass over all
// sources can still produce a suggestion, but it has to clear a stricter
// bar since pronunciation no longer backs it up.
//
// Source names are usually filenames, so tokenization splits on every
// non-alphanumeric rune: "Employee_Handbook.pdf" and "employee handbook"
// yield the same tokens (the extension token rarely hurts ranking).
package sourcematch

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold overrides the Jaro-Winkler score a phonetic
// candidate has to reach. The default is 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold overrides the score the spelling-only fallback has to
// reach. The default is 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher ranks known sources against a requested name. A Matcher is
// immutable once built, so a single instance can serve every request.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds a Matcher, applying any options over the defaults.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the known source most similar to name. When no source
// qualifies, Match hands the name back as given with matched false and zero
// confidence.
func (m *Matcher) Match(name string, known []string) (suggestion string, confidence float64, matched bool) {
	if len(known) == 0 || strings.TrimSpace(name) == "" {
		return name, 0, false
	}

	nameLower := strings.ToLower(strings.TrimSpace(name))
	nameTokens := tokenize(nameLower)
	nameCodes := metaphoneSet(nameTokens)

	var (
		phonBest   string
		phonScore  float64
		spellBest  string
		spellScore float64
	)

	for _, src := range known {
		srcLower := strings.ToLower(strings.TrimSpace(src))
		if srcLower == "" {
			continue
		}
		srcTokens := tokenize(srcLower)
		score := similarity(nameTokens, srcTokens, nameLower, srcLower)

		if sharesCode(nameCodes, metaphoneSet(srcTokens)) {
			if score >= m.phoneticThreshold && score > phonScore {
				phonBest, phonScore = src, score
			}
		} else if score >= m.fuzzyThreshold && score > spellScore {
			spellBest, spellScore = src, score
		}
	}

	// A phonetic hit always outranks a spelling-only one.
	switch {
	case phonBest != "":
		return phonBest, phonScore, true
	case spellBest != "":
		return spellBest, spellScore, true
	}
	return name, 0, false
}

// tokenize splits a lowercased source name on every non-alphanumeric rune,
// so underscores, dashes, dots, and spaces all separate tokens.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// metaphoneSet collects the primary and alternate Double Metaphone codes of
// every token into one set. Tokens too short to encode contribute nothing.
func metaphoneSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, 2*len(tokens))
	for _, tok := range tokens {
		primary, alternate := matchr.DoubleMetaphone(tok)
		for _, code := range []string{primary, alternate} {
			if code != "" {
				set[code] = struct{}{}
			}
		}
	}
	return set
}

// sharesCode reports whether the two code sets intersect.
func sharesCode(xs, ys map[string]struct{}) bool {
	if len(ys) < len(xs) {
		xs, ys = ys, xs
	}
	for c := range xs {
		if _, ok := ys[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the highest Jaro-Winkler score between the requested name
// and one known source, comparing the full strings, the token
// concatenations, and every token pair.
func similarity(nameTokens, srcTokens []string, nameFull, srcFull string) float64 {
	score := matchr.JaroWinkler(nameFull, srcFull, false)

	if len(nameTokens) > 1 || len(srcTokens) > 1 {
		joinedName := strings.Join(nameTokens, "")
		joinedSrc := strings.Join(srcTokens, "")
		if s := matchr.JaroWinkler(joinedName, joinedSrc, false); s > score {
			score = s
		}
	}

	for _, nt := range nameTokens {
		for _, st := range srcTokens {
			if s := matchr.JaroWinkler(nt, st, false); s > score {
				score = s
			}
		}
	}

	return score
}
