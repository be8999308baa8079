// Package health serves liveness and readiness probes for the pipeline.
//
// /healthz answers 200 while the process can serve HTTP. /readyz runs every
// registered [Checker] concurrently and answers 200 only when all pass; the
// JSON body reports each check with its outcome and latency.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	// Name keys the check in the JSON response (e.g. "pipeline", "audio").
	Name string

	// Check must respect context cancellation.
	Check func(ctx context.Context) error
}

// checkResult is the outcome of one check.
type checkResult struct {
	Status  string  `json:"status"`
	Error   string  `json:"error,omitempty"`
	Latency float64 `json:"latency_ms"`
}

// report is the JSON response body for both probes.
type report struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz answers 200 when every checker passes within [checkTimeout], 503
// otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.run(r.Context())
	status := http.StatusOK
	if rep.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// run evaluates all checkers concurrently.
func (h *Handler) run(ctx context.Context) report {
	results := make([]checkResult, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			err := c.Check(cctx)
			res := checkResult{Status: "ok", Latency: float64(time.Since(start).Microseconds()) / 1000}
			if err != nil {
				res.Status, res.Error = "fail", err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	rep := report{Status: "ok", Checks: make(map[string]checkResult, len(results))}
	for i, res := range results {
		rep.Checks[h.checkers[i].Name] = res
		if res.Status != "ok" {
			rep.Status = "fail"
		}
	}
	return rep
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// Running returns a [Checker] that passes while running reports true.
func Running(name string, running func() bool) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if !running() {
				return errors.New("not running")
			}
			return nil
		},
	}
}

// Progress returns a [Checker] that fails once counter has not advanced for
// longer than maxIdle. It catches a capture tool that stopped delivering audio
// without exiting.
func Progress(name string, counter func() int64, maxIdle time.Duration) Checker {
	return progressChecker(name, counter, maxIdle, time.Now)
}

func progressChecker(name string, counter func() int64, maxIdle time.Duration, now func() time.Time) Checker {
	var (
		mu       sync.Mutex
		last     = counter()
		lastSeen = now()
	)
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			cur, t := counter(), now()
			if cur != last {
				last, lastSeen = cur, t
				return nil
			}
			if idle := t.Sub(lastSeen); idle > maxIdle {
				return fmt.Errorf("no progress for %s", idle.Round(time.Second))
			}
			return nil
		},
	}
}
