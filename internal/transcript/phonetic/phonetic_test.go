package phonetic_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/livesegment/internal/transcript/phonetic"
)

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	vocab := phonetic.NewVocabulary([]string{"Eldrinax", "Grimjaw", "Tower of Whispers"})
	m := phonetic.New()

	tests := []struct {
		name        string
		phrase      string
		wantMatched bool
		want        string
		minConf     float64
	}{
		{"two words sound like one term", "elder nacks", true, "Eldrinax", 0.7},
		{"multi-word term", "tower of wispers", true, "Tower of Whispers", 0.7},
		{"case-insensitive", "ELDRINAX", true, "Eldrinax", 0.9},
		{"exact", "grimjaw", true, "Grimjaw", 0.9},
		{"unrelated word", "hello", false, "hello", 0},
		{"empty phrase", "", false, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, conf, matched := m.Match(tt.phrase, vocab)
			if matched != tt.wantMatched {
				t.Fatalf("Match(%q) matched = %v, want %v", tt.phrase, matched, tt.wantMatched)
			}
			if got != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.phrase, got, tt.want)
			}
			if matched && conf < tt.minConf {
				t.Errorf("Match(%q) confidence = %f, want >= %f", tt.phrase, conf, tt.minConf)
			}
			if !matched && conf != 0 {
				t.Errorf("Match(%q) confidence = %f, want 0 when unmatched", tt.phrase, conf)
			}
		})
	}
}

func TestMatcher_ThresholdFiltering(t *testing.T) {
	t.Parallel()

	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.99),
		phonetic.WithFuzzyThreshold(0.99),
	)
	if _, _, matched := m.MatchTerms("elder nacks", []string{"Eldrinax"}); matched {
		t.Fatal("threshold 0.99 should reject near-matches")
	}
}

func TestMatcher_EmptyVocabulary(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	for _, v := range []*phonetic.Vocabulary{nil, phonetic.NewVocabulary(nil), phonetic.NewVocabulary([]string{"  ", ""})} {
		got, conf, matched := m.Match("eldrinax", v)
		if matched || got != "eldrinax" || conf != 0 {
			t.Errorf("Match on empty vocabulary = %q, %f, %v", got, conf, matched)
		}
	}
}

func TestVocabulary(t *testing.T) {
	t.Parallel()

	v := phonetic.NewVocabulary([]string{" Grimjaw ", "", "Tower of Whispers"})
	if v.Len() != 2 {
		t.Errorf("Len = %d, want 2", v.Len())
	}
	if v.MaxWords() != 3 {
		t.Errorf("MaxWords = %d, want 3", v.MaxWords())
	}
	if got := v.Terms(); !slices.Equal(got, []string{"Grimjaw", "Tower of Whispers"}) {
		t.Errorf("Terms = %v", got)
	}

	var empty *phonetic.Vocabulary
	if empty.Len() != 0 || empty.MaxWords() != 0 || empty.Terms() != nil {
		t.Error("nil vocabulary should be empty")
	}
}
