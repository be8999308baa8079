package segment

import (
	"math"
	"slices"
	"sync"
	"time"
)

// defaultLatencyWindow is the number of decoder latency samples retained per
// operation.
const defaultLatencyWindow = 100

// LatencyPercentiles holds p50 and p95 values for a decoder operation.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
}

// Stats is a point-in-time view of a controller's counters.
type Stats struct {
	Frames       int64
	SpeechFrames int64

	// Utterances counts utterances closed by the endpointer or forced at
	// shutdown.
	Utterances int64
	Forced     int64
	Dropped    int64

	Partials int64
	Finals   int64

	DecoderErrors int64

	// Process and End summarise recent decoder Process and EndUtterance
	// latencies.
	Process LatencyPercentiles
	End     LatencyPercentiles
}

// statsRecorder accumulates Stats. Thread-safe for concurrent use.
type statsRecorder struct {
	mu sync.Mutex

	s       Stats
	process latencyBuffer
	end     latencyBuffer
}

func newStatsRecorder(window int) *statsRecorder {
	if window <= 0 {
		window = defaultLatencyWindow
	}
	return &statsRecorder{
		process: newLatencyBuffer(window),
		end:     newLatencyBuffer(window),
	}
}

// update applies fn to the counters under the lock.
func (r *statsRecorder) update(fn func(s *Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.s)
}

func (r *statsRecorder) recordLatency(op string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch op {
	case opProcess:
		r.process.add(d)
	case opEnd:
		r.end.add(d)
	}
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.s
	s.Process = r.process.percentiles()
	s.End = r.end.percentiles()
	return s
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{data: make([]time.Duration, size)}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos >= len(lb.data) {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.pos
	if lb.full {
		n = len(lb.data)
	}
	if n == 0 {
		return LatencyPercentiles{}
	}
	sorted := slices.Clone(lb.data[:n])
	slices.Sort(sorted)
	return LatencyPercentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
	}
}

// percentile returns the nearest-rank value at p (0.0-1.0) of a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
