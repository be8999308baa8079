package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/livesegment/pkg/provider/stt"
	"github.com/MrWong99/livesegment/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures the parts of a multipart /inference upload.
type inferenceRequest struct {
	fields map[string]string
	wav    []byte
}

// mockServer answers POST /inference with the next text from texts (the last
// one repeats) and records every request.
type mockServer struct {
	*httptest.Server
	mu       sync.Mutex
	texts    []string
	status   int
	requests []inferenceRequest
}

func newMockServer(t *testing.T, texts ...string) *mockServer {
	t.Helper()
	m := &mockServer{texts: texts, status: http.StatusOK}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req := inferenceRequest{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			req.fields[k] = v[0]
		}
		if f, _, err := r.FormFile("file"); err == nil {
			req.wav, _ = io.ReadAll(f)
			_ = f.Close()
		}

		m.mu.Lock()
		m.requests = append(m.requests, req)
		n := len(m.requests)
		status := m.status
		m.mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		text := ""
		if len(m.texts) > 0 {
			text = m.texts[min(n, len(m.texts))-1]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mockServer) setStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = code
}

func (m *mockServer) requestsSnapshot() []inferenceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]inferenceRequest(nil), m.requests...)
}

func newDecoder(t *testing.T, p *whisper.Provider, cfg stt.DecoderConfig) stt.Decoder {
	t.Helper()
	d, err := p.NewDecoder(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNewDecoder_CancelledContext_ReturnsError(t *testing.T) {
	p, err := whisper.New("http://localhost:8080")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.NewDecoder(ctx, stt.DecoderConfig{SampleRate: 16000}); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

// ---- decoding ---------------------------------------------------------------

func TestDecoder_FinalHypothesis(t *testing.T) {
	srv := newMockServer(t, " hello world ")
	p, _ := whisper.New(srv.URL+"/", whisper.WithPartialInterval(0), whisper.WithModel("base.en"))
	d := newDecoder(t, p, stt.DecoderConfig{
		SampleRate: 16000,
		Language:   "de",
		Keywords:   []stt.KeywordBoost{{Keyword: "Eldrinax", Boost: 5}, {Keyword: "Zorrath"}},
	})
	ctx := context.Background()

	if err := d.StartUtterance(ctx); err != nil {
		t.Fatalf("StartUtterance: %v", err)
	}
	if err := d.Process(ctx, make([]int16, 480), false); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := d.Process(ctx, make([]int16, 480), true); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n := len(srv.requestsSnapshot()); n != 0 {
		t.Fatalf("%d requests before EndUtterance, want 0", n)
	}
	if err := d.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}

	text, ok := d.Hypothesis()
	if !ok || text != "hello world" {
		t.Errorf("Hypothesis = %q, %v; want %q", text, ok, "hello world")
	}

	reqs := srv.requestsSnapshot()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	req := reqs[0]
	for field, want := range map[string]string{
		"language": "de",
		"model":    "base.en",
		"prompt":   "Eldrinax, Zorrath",
	} {
		if got := req.fields[field]; got != want {
			t.Errorf("field %s = %q, want %q", field, got, want)
		}
	}
	if string(req.wav[0:4]) != "RIFF" || string(req.wav[8:12]) != "WAVE" {
		t.Fatal("upload is not a WAV file")
	}
	if rate := binary.LittleEndian.Uint32(req.wav[24:28]); rate != 16000 {
		t.Errorf("WAV sample rate = %d, want 16000", rate)
	}
	if size := binary.LittleEndian.Uint32(req.wav[40:44]); size != 960*2 {
		t.Errorf("WAV data size = %d, want %d", size, 960*2)
	}
}

func TestDecoder_PartialHypotheses(t *testing.T) {
	srv := newMockServer(t, "hel", "hello", "hello there")
	p, _ := whisper.New(srv.URL, whisper.WithPartialInterval(60*time.Millisecond))
	d := newDecoder(t, p, stt.DecoderConfig{SampleRate: 16000})
	ctx := context.Background()

	_ = d.StartUtterance(ctx)
	// 480 samples = 30 ms; a partial runs every second frame.
	var partials []string
	for range 4 {
		if err := d.Process(ctx, make([]int16, 480), false); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if text, ok := d.Hypothesis(); ok {
			partials = append(partials, text)
		}
	}
	if len(partials) != 3 || partials[0] != "hel" || partials[2] != "hello" {
		t.Errorf("partials = %q, want [hel hel hello]", partials)
	}
	_ = d.EndUtterance(ctx)
	if text, _ := d.Hypothesis(); text != "hello there" {
		t.Errorf("final = %q, want %q", text, "hello there")
	}
}

func TestDecoder_ServerError(t *testing.T) {
	srv := newMockServer(t, "unused")
	srv.setStatus(http.StatusInternalServerError)
	p, _ := whisper.New(srv.URL, whisper.WithPartialInterval(0))
	d := newDecoder(t, p, stt.DecoderConfig{SampleRate: 16000})
	ctx := context.Background()

	_ = d.StartUtterance(ctx)
	_ = d.Process(ctx, make([]int16, 480), true)
	if err := d.EndUtterance(ctx); err == nil {
		t.Fatal("expected error from EndUtterance on HTTP 500")
	}
	if _, ok := d.Hypothesis(); ok {
		t.Error("no hypothesis expected after a failed inference")
	}
}

func TestDecoder_EmptyUtteranceSkipsInference(t *testing.T) {
	srv := newMockServer(t, "never")
	p, _ := whisper.New(srv.URL)
	d := newDecoder(t, p, stt.DecoderConfig{SampleRate: 16000})
	ctx := context.Background()

	_ = d.StartUtterance(ctx)
	if err := d.EndUtterance(ctx); err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}
	if n := len(srv.requestsSnapshot()); n != 0 {
		t.Errorf("%d requests for an empty utterance, want 0", n)
	}
}
