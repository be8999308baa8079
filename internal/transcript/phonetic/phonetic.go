// Package phonetic matches misrecognised phrases against a vocabulary of
// known terms using Double Metaphone phonetic encoding combined with
// Jaro-Winkler string similarity.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the input and of each vocabulary term. A term whose codes
//     overlap with the input's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the term with the
//     highest Jaro-Winkler similarity (case-insensitive) wins, provided the
//     score reaches the phonetic threshold. When no phonetic candidate
//     qualifies, a pure Jaro-Winkler pass against all terms uses the higher
//     fuzzy threshold.
//
// Multi-word terms (e.g., "Tower of Whispers") are compared as whole strings.
// A single-word term may also match one word of a split phrase ("elder
// nacks"), so the best pairwise word score counts for those.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is a phonetic vocabulary matcher. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
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

// term is a vocabulary entry with its phonetic codes precomputed.
type term struct {
	text   string
	lower  string
	tokens []string
	codes  map[string]struct{}
}

// Vocabulary is a prepared set of terms. Preparing once avoids recomputing
// phonetic codes for every phrase. A Vocabulary is immutable.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// NewVocabulary prepares terms for matching. Blank terms are skipped.
func NewVocabulary(terms []string) *Vocabulary {
	v := &Vocabulary{terms: make([]term, 0, len(terms))}
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			text:   strings.TrimSpace(t),
			lower:  lower,
			tokens: tokens,
			codes:  codesForTokens(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of terms.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// MaxWords returns the word count of the longest term, or 0 when empty.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Terms returns the terms as given, minus blanks.
func (v *Vocabulary) Terms() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.terms))
	for i, t := range v.terms {
		out[i] = t.text
	}
	return out
}

// Match finds the term of v most similar to phrase. phrase may be a single
// word or a space-separated n-gram.
//
// When matched is false, corrected equals phrase and confidence is 0.
func (m *Matcher) Match(phrase string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v.Len() == 0 || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	lower := strings.ToLower(strings.TrimSpace(phrase))
	tokens := strings.Fields(lower)
	inputCodes := codesForTokens(tokens)

	type candidate struct {
		text     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, t := range v.terms {
		phoneticMatch := codesOverlap(inputCodes, t.codes)
		score := bestJWScore(tokens, t.tokens, lower, t.lower)

		if phoneticMatch {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{text: t.text, score: score, phonetic: true}
			}
		} else if !best.phonetic {
			if score >= m.fuzzyThreshold && score > best.score {
				best = candidate{text: t.text, score: score}
			}
		}
	}

	if best.text != "" {
		return best.text, best.score, true
	}
	return phrase, 0, false
}

// MatchTerms is a convenience wrapper preparing terms on every call.
func (m *Matcher) MatchTerms(phrase string, terms []string) (string, float64, bool) {
	return m.Match(phrase, NewVocabulary(terms))
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share a code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore returns the highest Jaro-Winkler similarity of the full
// strings, the space-stripped strings and, for single-word terms, the best
// word of the input.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false)
		score = max(score, joined)
	}

	if len(termTokens) == 1 {
		for _, it := range inputTokens {
			score = max(score, matchr.JaroWinkler(it, termTokens[0], false))
		}
	}
	return score
}
