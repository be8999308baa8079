package endpoint_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/livesegment/pkg/endpoint"
	"github.com/MrWong99/livesegment/pkg/provider/vad"
	vadmock "github.com/MrWong99/livesegment/pkg/provider/vad/mock"
)

// testConfig yields 4-sample frames and a 3-frame window.
var testConfig = endpoint.Config{SampleRate: 1000, FrameLength: 0.004, Window: 0.012}

func newWindowed(t *testing.T, script ...bool) (*endpoint.Windowed, *vadmock.Session) {
	t.Helper()
	sess := &vadmock.Session{Script: script}
	w, err := endpoint.NewWindowed(&vadmock.Engine{Session: sess}, testConfig)
	if err != nil {
		t.Fatalf("NewWindowed: %v", err)
	}
	if w.FrameSize() != 4 || w.WindowFrames() != 3 {
		t.Fatalf("FrameSize=%d WindowFrames=%d, want 4 and 3", w.FrameSize(), w.WindowFrames())
	}
	return w, sess
}

// frame returns a frame whose samples all carry the value id+1.
func frame(id int) []int16 {
	return []int16{int16(id + 1), int16(id + 1), int16(id + 1), int16(id + 1)}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// frameIDs splits out into 4-sample frames and returns the id of each.
func frameIDs(t *testing.T, out []int16) []int {
	t.Helper()
	if len(out)%4 != 0 {
		t.Fatalf("returned %d samples, not a whole number of frames", len(out))
	}
	var ids []int
	for i := 0; i < len(out); i += 4 {
		ids = append(ids, int(out[i])-1)
	}
	return ids
}

func TestWindowed_Region(t *testing.T) {
	s, n := true, false
	w, _ := newWindowed(t, s, s, s, s, s, n, n, n, n, n)

	var returned []int
	var transitions []string
	for i := range 10 {
		prev := w.InSpeech()
		out, err := w.Process(frame(i))
		if err != nil {
			t.Fatalf("Process(%d): %v", i, err)
		}
		if prev && !w.InSpeech() {
			if got := frameIDs(t, out); !slices.Equal(got, []int{5, 6, 7}) {
				t.Errorf("leaving speech returned frames %v, want the whole window [5 6 7]", got)
			}
		}
		returned = append(returned, frameIDs(t, out)...)
		if !prev && w.InSpeech() {
			transitions = append(transitions, "start")
			if i != 2 {
				t.Errorf("speech started on frame %d, want 2", i)
			}
			if !approx(w.SegmentStart(), 0) {
				t.Errorf("SegmentStart = %f, want 0", w.SegmentStart())
			}
		}
		if prev && !w.InSpeech() {
			transitions = append(transitions, "end")
			if i != 7 {
				t.Errorf("speech ended on frame %d, want 7", i)
			}
			if !approx(w.SegmentEnd(), 0.028) {
				t.Errorf("SegmentEnd = %f, want 0.028", w.SegmentEnd())
			}
		}
	}

	if want := []int{0, 1, 2, 3, 4, 5, 6, 7}; !slices.Equal(returned, want) {
		t.Errorf("returned frames %v, want %v", returned, want)
	}
	if len(transitions) != 2 {
		t.Errorf("transitions = %v, want [start end]", transitions)
	}
}

func TestWindowed_WindowRefillsAfterRegion(t *testing.T) {
	s, n := true, false
	// Region one ends on frame 5; the window is empty afterwards, so region
	// two needs three fresh speech frames (6, 7, 8) before it starts.
	w, _ := newWindowed(t, s, s, s, n, n, n, s, s, s, n, n, n)

	var starts, ends []int
	var returned []int
	for i := range 12 {
		prev := w.InSpeech()
		out, err := w.Process(frame(i))
		if err != nil {
			t.Fatalf("Process(%d): %v", i, err)
		}
		returned = append(returned, frameIDs(t, out)...)
		switch {
		case !prev && w.InSpeech():
			starts = append(starts, i)
		case prev && !w.InSpeech():
			ends = append(ends, i)
		}
	}

	if !slices.Equal(starts, []int{2, 8}) || !slices.Equal(ends, []int{5, 11}) {
		t.Errorf("starts %v ends %v, want [2 8] and [5 11]", starts, ends)
	}
	if want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}; !slices.Equal(returned, want) {
		t.Errorf("returned frames %v, want every frame exactly once: %v", returned, want)
	}
	if !approx(w.SegmentStart(), 0.024) || !approx(w.SegmentEnd(), 0.044) {
		t.Errorf("last region = [%f, %f], want [0.024, 0.044]", w.SegmentStart(), w.SegmentEnd())
	}
}

func TestWindowed_NoSpeech(t *testing.T) {
	w, _ := newWindowed(t, false, true, false, true, false, false)
	for i := range 6 {
		out, err := w.Process(frame(i))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if out != nil || w.InSpeech() {
			t.Fatalf("frame %d: unexpected speech", i)
		}
	}
}

func TestWindowed_Flush(t *testing.T) {
	w, _ := newWindowed(t, true, true, true, true)
	for i := range 4 {
		if _, err := w.Process(frame(i)); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if !w.InSpeech() {
		t.Fatal("expected to be in speech")
	}
	got := w.Flush()
	if len(got) != 8 || got[0] != 3 || got[4] != 4 {
		t.Fatalf("Flush = %v, want frames 2 and 3", got)
	}
	if w.InSpeech() {
		t.Error("Flush must leave speech")
	}
	if !approx(w.SegmentEnd(), 0.016) {
		t.Errorf("SegmentEnd = %f, want 0.016", w.SegmentEnd())
	}
	if w.Flush() != nil {
		t.Error("second Flush should return nil")
	}
}

func TestWindowed_Errors(t *testing.T) {
	w, sess := newWindowed(t)
	if _, err := w.Process([]int16{1, 2}); err == nil {
		t.Error("expected error for wrong frame size")
	}

	sess.ProcessFrameErr = errors.New("model crashed")
	if _, err := w.Process(frame(0)); err == nil {
		t.Error("expected classifier error to propagate")
	}
	sess.ProcessFrameErr = nil

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("classifier closed %d times, want 1", sess.CloseCallCount)
	}
	if _, err := w.Process(frame(0)); err == nil {
		t.Error("expected error after Close")
	}
}

func TestWindowed_Reset(t *testing.T) {
	w, sess := newWindowed(t, true, true, true)
	for i := range 3 {
		_, _ = w.Process(frame(i))
	}
	w.Reset()
	if w.InSpeech() {
		t.Error("Reset must leave speech")
	}
	if sess.ResetCallCount != 1 {
		t.Errorf("classifier reset %d times, want 1", sess.ResetCallCount)
	}
}

func TestNewWindowed_Defaults(t *testing.T) {
	eng := &vadmock.Engine{}
	w, err := endpoint.NewWindowed(eng, endpoint.Config{Mode: vad.ModeStrict})
	if err != nil {
		t.Fatalf("NewWindowed: %v", err)
	}
	if w.SampleRate() != 16000 || w.FrameSize() != 480 || w.WindowFrames() != 10 {
		t.Errorf("rate=%d frame=%d window=%d, want 16000/480/10", w.SampleRate(), w.FrameSize(), w.WindowFrames())
	}
	if len(eng.Configs) != 1 || eng.Configs[0].FrameSize != 480 || eng.Configs[0].Mode != vad.ModeStrict {
		t.Errorf("vad session config = %+v", eng.Configs)
	}
}

func TestNewWindowed_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		engine vad.Engine
		cfg    endpoint.Config
	}{
		{"nil engine", nil, endpoint.Config{}},
		{"ratio above one", &vadmock.Engine{}, endpoint.Config{Ratio: 1.5}},
		{"ratio of one", &vadmock.Engine{}, endpoint.Config{Ratio: 1}},
		{"negative ratio", &vadmock.Engine{}, endpoint.Config{Ratio: -0.5}},
		{"negative window", &vadmock.Engine{}, endpoint.Config{Window: -1}},
		{"vad failure", &vadmock.Engine{NewSessionErr: errors.New("no model")}, endpoint.Config{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := endpoint.NewWindowed(tt.engine, tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
