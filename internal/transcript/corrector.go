package transcript

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/livesegment/internal/observe"
	"github.com/MrWong99/livesegment/internal/segment"
	"github.com/MrWong99/livesegment/internal/transcript/phonetic"
)

// CorrectorOption is a functional option for configuring a [Corrector].
type CorrectorOption func(*Corrector)

// WithMatcher replaces the default [phonetic.Matcher].
func WithMatcher(m *phonetic.Matcher) CorrectorOption {
	return func(c *Corrector) {
		c.matcher = m
	}
}

// WithPartials also corrects partial hypotheses. By default only finals are
// corrected.
func WithPartials() CorrectorOption {
	return func(c *Corrector) {
		c.partials = true
	}
}

// Corrector rewrites misrecognised vocabulary terms in hypotheses before
// passing events on to the next handler.
//
// The vocabulary can be replaced at any time with [Corrector.SetVocabulary],
// e.g., on config reload. Corrector is safe for concurrent use.
type Corrector struct {
	next     segment.EventHandler
	matcher  *phonetic.Matcher
	partials bool

	vocab atomic.Pointer[phonetic.Vocabulary]
}

var _ segment.EventHandler = (*Corrector)(nil)

// NewCorrector returns a Corrector forwarding to next with the given initial
// vocabulary.
func NewCorrector(next segment.EventHandler, vocabulary []string, opts ...CorrectorOption) *Corrector {
	c := &Corrector{
		next:    next,
		matcher: phonetic.New(),
	}
	for _, o := range opts {
		o(c)
	}
	c.SetVocabulary(vocabulary)
	return c
}

// SetVocabulary replaces the vocabulary. Events already being handled keep
// the previous one.
func (c *Corrector) SetVocabulary(terms []string) {
	c.vocab.Store(phonetic.NewVocabulary(terms))
}

// Vocabulary returns the current terms.
func (c *Corrector) Vocabulary() []string {
	return c.vocab.Load().Terms()
}

// HandleEvent corrects the text of final (and optionally partial) events and
// forwards the event.
func (c *Corrector) HandleEvent(ctx context.Context, ev segment.Event) error {
	if ev.Type == segment.EventFinal || (c.partials && ev.Type == segment.EventPartial) {
		text, corrections := c.Correct(ev.Text)
		if len(corrections) > 0 {
			observe.Logger(ctx).Debug("transcript: corrected hypothesis",
				"utterance", ev.Utterance,
				"original", ev.Text,
				"corrected", text,
				"corrections", len(corrections),
			)
			ev.Text = text
		}
	}
	return c.next.HandleEvent(ctx, ev)
}

// Correct applies the vocabulary to text and returns the corrected text with
// every substitution made, in text order.
//
// Every n-gram window up to the longest term's word count is matched. Matches
// are then accepted best score first, skipping any that overlap an accepted
// one; on a tie the shorter window wins so that surrounding words are not
// swallowed. A window that already equals its term is kept but not reported.
func (c *Corrector) Correct(text string) (string, []Correction) {
	vocab := c.vocab.Load()
	maxWords := vocab.MaxWords()
	tokens := strings.Fields(text)
	if maxWords == 0 || len(tokens) == 0 {
		return text, nil
	}

	type candidate struct {
		start, size int
		Correction
	}
	var candidates []candidate
	for i := range tokens {
		for n := 1; n <= min(maxWords, len(tokens)-i); n++ {
			window := strings.Join(tokens[i:i+n], " ")
			if term, conf, ok := c.matcher.Match(window, vocab); ok {
				candidates = append(candidates, candidate{
					start:      i,
					size:       n,
					Correction: Correction{Original: window, Corrected: term, Confidence: conf},
				})
			}
		}
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		if byScore := cmp.Compare(b.Confidence, a.Confidence); byScore != 0 {
			return byScore
		}
		return cmp.Compare(a.size, b.size)
	})

	accepted := make([]*candidate, len(tokens))
	taken := make([]bool, len(tokens))
	for k := range candidates {
		cand := &candidates[k]
		if slices.Contains(taken[cand.start:cand.start+cand.size], true) {
			continue
		}
		for j := cand.start; j < cand.start+cand.size; j++ {
			taken[j] = true
		}
		accepted[cand.start] = cand
	}

	var (
		output      []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		cand := accepted[i]
		if cand == nil {
			output = append(output, tokens[i])
			i++
			continue
		}
		output = append(output, cand.Corrected)
		if cand.Corrected != cand.Original {
			corrections = append(corrections, cand.Correction)
		}
		i += cand.size
	}

	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(output, " "), corrections
}
