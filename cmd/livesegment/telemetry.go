package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/livesegment/internal/health"
	"github.com/MrWong99/livesegment/internal/observe"
	"github.com/MrWong99/livesegment/internal/segment"
)

// stallTimeout is how long the frame counter may stand still before /readyz
// fails.
const stallTimeout = 10 * time.Second

// newTelemetryServer serves /metrics from metrics, and /healthz and /readyz
// for ctrl.
func newTelemetryServer(ctrl *segment.Controller, metrics http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)

	h := health.New(
		health.Running("pipeline", ctrl.Running),
		health.Progress("audio", func() int64 { return ctrl.Stats().Frames }, stallTimeout),
	)
	h.Register(mux)

	return &http.Server{
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serveTelemetry serves on ln until ctx is done, then shuts the server down.
func serveTelemetry(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
