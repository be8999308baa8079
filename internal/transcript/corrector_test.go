package transcript_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/MrWong99/livesegment/internal/segment"
	"github.com/MrWong99/livesegment/internal/transcript"
)

func TestCorrector_Correct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		vocab     []string
		text      string
		want      string
		wantCount int
	}{
		{
			name:      "single word recased",
			vocab:     []string{"Grimjaw"},
			text:      "we saw grimjaw today",
			want:      "we saw Grimjaw today",
			wantCount: 1,
		},
		{
			name:      "multi-word term",
			vocab:     []string{"Tower of Whispers"},
			text:      "tower of wispers",
			want:      "Tower of Whispers",
			wantCount: 1,
		},
		{
			name:      "already correct",
			vocab:     []string{"Grimjaw"},
			text:      "Grimjaw",
			want:      "Grimjaw",
			wantCount: 0,
		},
		{
			name:      "nothing similar",
			vocab:     []string{"Grimjaw"},
			text:      "hello there",
			want:      "hello there",
			wantCount: 0,
		},
		{
			name:      "empty vocabulary",
			vocab:     nil,
			text:      "grimjaw",
			want:      "grimjaw",
			wantCount: 0,
		},
		{
			name:      "empty text",
			vocab:     []string{"Grimjaw"},
			text:      "",
			want:      "",
			wantCount: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := transcript.NewCorrector(&collector{}, tt.vocab)
			got, corrections := c.Correct(tt.text)
			if got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.text, got, tt.want)
			}
			if len(corrections) != tt.wantCount {
				t.Errorf("corrections = %+v, want %d", corrections, tt.wantCount)
			}
			for _, corr := range corrections {
				if corr.Confidence <= 0 || corr.Confidence > 1 {
					t.Errorf("confidence %f out of range", corr.Confidence)
				}
			}
		})
	}
}

func TestCorrector_OnlyFinalsByDefault(t *testing.T) {
	t.Parallel()

	next := &collector{}
	c := transcript.NewCorrector(next, []string{"Grimjaw"})
	ctx := context.Background()
	_ = c.HandleEvent(ctx, segment.Event{Type: segment.EventPartial, Text: "grimjaw"})
	_ = c.HandleEvent(ctx, segment.Event{Type: segment.EventFinal, Text: "grimjaw"})
	_ = c.HandleEvent(ctx, segment.Event{Type: segment.EventSpeechEnd, Time: 1.5})

	if len(next.events) != 3 {
		t.Fatalf("forwarded %d events, want 3", len(next.events))
	}
	if got := next.events[0].Text; got != "grimjaw" {
		t.Errorf("partial = %q, want uncorrected", got)
	}
	if got := next.events[1].Text; got != "Grimjaw" {
		t.Errorf("final = %q, want Grimjaw", got)
	}
	if next.events[2].Time != 1.5 {
		t.Errorf("speech end altered: %+v", next.events[2])
	}
}

func TestCorrector_WithPartials(t *testing.T) {
	t.Parallel()

	next := &collector{}
	c := transcript.NewCorrector(next, []string{"Grimjaw"}, transcript.WithPartials())
	_ = c.HandleEvent(context.Background(), segment.Event{Type: segment.EventPartial, Text: "grimjaw"})
	if got := next.events[0].Text; got != "Grimjaw" {
		t.Errorf("partial = %q, want Grimjaw", got)
	}
}

func TestCorrector_SetVocabulary(t *testing.T) {
	t.Parallel()

	next := &collector{}
	c := transcript.NewCorrector(next, nil)
	if got, _ := c.Correct("grimjaw"); got != "grimjaw" {
		t.Fatalf("Correct with no vocabulary = %q", got)
	}

	c.SetVocabulary([]string{"Grimjaw", " "})
	if got := c.Vocabulary(); !slices.Equal(got, []string{"Grimjaw"}) {
		t.Errorf("Vocabulary = %v", got)
	}
	if got, _ := c.Correct("grimjaw"); got != "Grimjaw" {
		t.Errorf("Correct after reload = %q, want Grimjaw", got)
	}
}

func TestCorrector_ConcurrentReload(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	next := segment.EventHandlerFunc(func(context.Context, segment.Event) error {
		mu.Lock()
		defer mu.Unlock()
		return nil
	})
	c := transcript.NewCorrector(next, []string{"Grimjaw"})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for range 50 {
				if i%2 == 0 {
					c.SetVocabulary([]string{"Grimjaw", "Eldrinax"})
					continue
				}
				_ = c.HandleEvent(context.Background(), segment.Event{Type: segment.EventFinal, Text: "grimjaw"})
			}
		})
	}
	wg.Wait()
}
