package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/livesegment/pkg/provider/stt"
)

// TestPrimaryLanguage verifies BCP-47 tags are reduced to the base language.
func TestPrimaryLanguage(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"en":    "en",
		"de-DE": "de",
		"PT-br": "pt",
	}
	for in, want := range cases {
		if got := primaryLanguage(in); got != want {
			t.Errorf("primaryLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestNew_EmptyAPIKey verifies that an API key is required.
func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Error("expected error for empty API key")
	}
}

// TestNew_DefaultModel verifies the fallback model.
func TestNew_DefaultModel(t *testing.T) {
	p, err := New("key", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
}

// TestDecoder_Transcribes verifies one upload per utterance against a fake
// transcription endpoint.
func TestDecoder_Transcribes(t *testing.T) {
	var (
		mu     sync.Mutex
		fields []map[string]string
		wavLen []int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f := map[string]string{}
		for k, v := range r.MultipartForm.Value {
			f[k] = v[0]
		}
		n := 0
		if file, _, err := r.FormFile("file"); err == nil {
			data, _ := io.ReadAll(file)
			n = len(data)
			_ = file.Close()
		}
		mu.Lock()
		fields = append(fields, f)
		wavLen = append(wavLen, n)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " the quick fox "})
	}))
	defer srv.Close()

	p, err := New("test-key", "", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, err := p.NewDecoder(context.Background(), stt.DecoderConfig{
		SampleRate: 16000,
		Language:   "en-US",
		Keywords:   []stt.KeywordBoost{{Keyword: "Eldrinax"}},
	})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.StartUtterance(ctx); err != nil {
		t.Fatalf("StartUtterance: %v", err)
	}
	if err := d.Process(ctx, make([]int16, 1600), true); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := d.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}
	if text, ok := d.Hypothesis(); !ok || text != "the quick fox" {
		t.Errorf("Hypothesis = %q, %v; want %q", text, ok, "the quick fox")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fields) != 1 {
		t.Fatalf("got %d requests, want 1", len(fields))
	}
	for k, want := range map[string]string{"model": "whisper-1", "language": "en", "prompt": "Eldrinax"} {
		if got := fields[0][k]; got != want {
			t.Errorf("field %s = %q, want %q", k, got, want)
		}
	}
	if wavLen[0] != 44+3200 {
		t.Errorf("uploaded %d bytes, want %d", wavLen[0], 44+3200)
	}
}
