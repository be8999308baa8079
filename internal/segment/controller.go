package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/livesegment/internal/observe"
	"github.com/MrWong99/livesegment/pkg/audio"
	"github.com/MrWong99/livesegment/pkg/endpoint"
	"github.com/MrWong99/livesegment/pkg/provider/stt"
)

// DefaultForceCloseTimeout bounds the decoder calls made while force-closing
// an utterance at shutdown.
const DefaultForceCloseTimeout = 30 * time.Second

// Decoder operation names used for metrics and stats.
const (
	opStart   = "start"
	opProcess = "process"
	opEnd     = "end"
)

// Option configures a [Controller].
type Option func(*Controller)

// WithShutdownPolicy sets what happens to an utterance that is open when the
// run stops. Default: [ForceClose].
func WithShutdownPolicy(p ShutdownPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithForceCloseTimeout bounds the decoder calls of a forced close. Default:
// [DefaultForceCloseTimeout].
func WithForceCloseTimeout(d time.Duration) Option {
	return func(c *Controller) { c.forceTimeout = d }
}

// WithMetrics sets the metrics the controller records into. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLatencyWindow sets how many decoder latency samples [Controller.Stats]
// summarises per operation. Default: 100.
func WithLatencyWindow(n int) Option {
	return func(c *Controller) { c.stats = newStatsRecorder(n) }
}

// Controller runs the segmentation loop over one audio stream.
//
// All methods except Run are safe for concurrent use. Run must be called at
// most once.
type Controller struct {
	src     audio.Source
	ep      endpoint.Endpointer
	dec     stt.Decoder
	handler EventHandler

	policy       ShutdownPolicy
	forceTimeout time.Duration
	metrics      *observe.Metrics
	stats        *statsRecorder

	state   atomic.Int32
	started atomic.Bool
	running atomic.Bool

	// Owned by the Run goroutine.
	utterance int
	uttCtx    context.Context
	span      trace.Span
	uttStart  float64
	position  float64 // stream time after the last processed frame
}

// New returns a Controller that reads src, segments with ep and decodes with
// dec. Events go to handler; a nil handler discards them. Run takes ownership
// of src, ep and dec and closes them when it returns.
func New(src audio.Source, ep endpoint.Endpointer, dec stt.Decoder, handler EventHandler, opts ...Option) (*Controller, error) {
	var errs []error
	if src == nil {
		errs = append(errs, errors.New("segment: source must not be nil"))
	}
	if ep == nil {
		errs = append(errs, errors.New("segment: endpointer must not be nil"))
	}
	if dec == nil {
		errs = append(errs, errors.New("segment: decoder must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = discard
	}

	c := &Controller{
		src:          src,
		ep:           ep,
		dec:          dec,
		handler:      handler,
		policy:       ForceClose,
		forceTimeout: DefaultForceCloseTimeout,
		stats:        newStatsRecorder(defaultLatencyWindow),
	}
	for _, o := range opts {
		o(c)
	}
	if !c.policy.IsValid() {
		return nil, fmt.Errorf("segment: invalid shutdown policy %v", c.policy)
	}
	if c.forceTimeout <= 0 {
		return nil, fmt.Errorf("segment: force-close timeout must be positive, got %v", c.forceTimeout)
	}
	if c.ep.SampleRate() <= 0 {
		return nil, fmt.Errorf("segment: endpointer sample rate must be positive, got %d", c.ep.SampleRate())
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// State returns the current utterance state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Running reports whether Run is in progress.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Stats returns a snapshot of the controller's counters.
func (c *Controller) Stats() Stats {
	return c.stats.snapshot()
}

// Run processes frames until the stream ends, ctx is cancelled, or a fatal
// error occurs. End of stream and cancellation return nil; an utterance open
// at that point is handled by the shutdown policy. A read failure returns an
// error wrapping [ErrIO], a failed StartUtterance or Process an error wrapping
// [ErrDecoder]; the open utterance is then abandoned without a final.
//
// The source, endpointer and decoder are closed on every path. Their close
// errors are returned only when the run itself succeeded.
func (c *Controller) Run(ctx context.Context) (err error) {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	c.running.Store(true)
	defer c.running.Store(false)
	defer func() {
		if cerr := c.closeAll(); cerr != nil {
			slog.Warn("segment: release failed", "err", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	slog.Info("segment: run started",
		"frame_size", c.ep.FrameSize(),
		"sample_rate", c.ep.SampleRate(),
		"on_shutdown", c.policy.String(),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("segment: run cancelled", "position", c.position)
			return c.shutdown(ctx)
		default:
		}

		frame, err := c.src.NextFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Info("segment: end of stream", "position", c.position)
				return c.shutdown(ctx)
			}
			if ctx.Err() != nil {
				slog.Info("segment: read interrupted by cancellation", "err", err)
				return c.shutdown(ctx)
			}
			err = fmt.Errorf("%w: read frame: %w", ErrIO, err)
			c.abort(err)
			return err
		}

		if err := c.step(ctx, frame); err != nil {
			c.abort(err)
			return err
		}
	}
}

// step runs the per-frame state machine for one frame.
func (c *Controller) step(ctx context.Context, frame audio.Frame) error {
	c.stats.update(func(s *Stats) { s.Frames++ })
	c.metrics.Frames.Add(ctx, 1)

	speech, err := c.ep.Process(frame.Samples)
	if err != nil {
		return fmt.Errorf("segment: endpointer: %w", err)
	}
	c.position = float64(frame.Offset+int64(len(frame.Samples))) / float64(c.ep.SampleRate())

	if speech == nil {
		// The endpointer may leave speech on a frame it did not return.
		if c.State() == StateOpen && !c.ep.InSpeech() {
			c.finish(c.uttCtx, c.ep.SegmentEnd(), false)
		}
		return nil
	}

	if c.State() == StateClosed {
		if err := c.begin(ctx); err != nil {
			return err
		}
	}

	if err := c.feed(c.uttCtx, speech, false); err != nil {
		return err
	}
	if text, ok := c.dec.Hypothesis(); ok {
		c.stats.update(func(s *Stats) { s.Partials++ })
		c.metrics.RecordHypothesis(c.uttCtx, "partial")
		c.emit(c.uttCtx, Event{Type: EventPartial, Utterance: c.utterance, Text: text})
	}

	if !c.ep.InSpeech() {
		c.finish(c.uttCtx, c.ep.SegmentEnd(), false)
	}
	return nil
}

// begin opens a new utterance: SpeechStart, then StartUtterance. Decoder
// calls of the utterance are not interrupted by cancellation of ctx; the loop
// observes cancellation between frames.
func (c *Controller) begin(ctx context.Context) error {
	c.utterance++
	c.uttStart = c.ep.SegmentStart()
	c.uttCtx, c.span = observe.StartSpan(observe.WithUtterance(context.WithoutCancel(ctx), c.utterance), "segment.utterance",
		trace.WithAttributes(
			attribute.Int("utterance", c.utterance),
			attribute.Float64("start", c.uttStart),
		),
	)
	c.state.Store(int32(StateOpen))
	c.metrics.UtteranceOpen.Add(c.uttCtx, 1)

	observe.Logger(c.uttCtx).Debug("segment: speech start", "at", c.uttStart)
	c.emit(c.uttCtx, Event{Type: EventSpeechStart, Utterance: c.utterance, Time: c.uttStart})

	if err := c.call(c.uttCtx, opStart, c.dec.StartUtterance); err != nil {
		return fmt.Errorf("%w: start utterance %d: %w", ErrDecoder, c.utterance, err)
	}
	return nil
}

// feed passes speech samples to the decoder.
func (c *Controller) feed(ctx context.Context, samples []int16, final bool) error {
	c.stats.update(func(s *Stats) { s.SpeechFrames++ })
	c.metrics.SpeechFrames.Add(ctx, 1)
	err := c.call(ctx, opProcess, func(ctx context.Context) error {
		return c.dec.Process(ctx, samples, final)
	})
	if err != nil {
		return fmt.Errorf("%w: process utterance %d: %w", ErrDecoder, c.utterance, err)
	}
	return nil
}

// finish closes the open utterance: SpeechEnd, EndUtterance, then the final
// hypothesis if there is one. An EndUtterance failure is logged and the best
// available hypothesis is still reported.
func (c *Controller) finish(ctx context.Context, end float64, forced bool) {
	c.state.Store(int32(StateClosed))
	c.metrics.UtteranceOpen.Add(ctx, -1)
	log := observe.Logger(ctx)

	c.emit(ctx, Event{Type: EventSpeechEnd, Utterance: c.utterance, Time: end, Forced: forced})

	if err := c.call(ctx, opEnd, c.dec.EndUtterance); err != nil {
		log.Warn("segment: end utterance failed", "err", err)
		c.span.RecordError(err)
	}

	text, ok := c.dec.Hypothesis()
	if ok {
		c.metrics.RecordHypothesis(ctx, "final")
		c.emit(ctx, Event{Type: EventFinal, Utterance: c.utterance, Text: text, Forced: forced})
	}

	outcome := observe.OutcomeCompleted
	if forced {
		outcome = observe.OutcomeForced
	}
	c.stats.update(func(s *Stats) {
		s.Utterances++
		if forced {
			s.Forced++
		}
		if ok {
			s.Finals++
		}
	})
	c.metrics.RecordUtterance(ctx, outcome, max(0, end-c.uttStart))
	c.span.SetAttributes(
		attribute.Float64("end", end),
		attribute.Bool("forced", forced),
		attribute.Bool("final", ok),
	)
	c.span.End()
	log.Info("segment: utterance finished",
		"start", c.uttStart,
		"end", end,
		"forced", forced,
		"final", ok,
	)
}

// shutdown applies the shutdown policy to an open utterance.
func (c *Controller) shutdown(ctx context.Context) error {
	if c.State() != StateOpen {
		return nil
	}

	if c.policy == Drop {
		c.state.Store(int32(StateClosed))
		c.metrics.UtteranceOpen.Add(c.uttCtx, -1)
		c.metrics.RecordUtterance(c.uttCtx, observe.OutcomeDropped, max(0, c.position-c.uttStart))
		c.stats.update(func(s *Stats) { s.Dropped++ })
		c.span.SetAttributes(attribute.Bool("dropped", true))
		c.span.End()
		observe.Logger(c.uttCtx).Info("segment: open utterance dropped")
		return nil
	}

	fctx, cancel := context.WithTimeout(c.uttCtx, c.forceTimeout)
	defer cancel()
	if ctx.Err() != nil {
		observe.Logger(fctx).Debug("segment: force-closing after cancellation", "cause", ctx.Err())
	}

	end := c.position
	if f, ok := c.ep.(endpoint.Flusher); ok {
		inSpeech := c.ep.InSpeech()
		if samples := f.Flush(); len(samples) > 0 {
			if err := c.feed(fctx, samples, true); err != nil {
				c.abort(err)
				return err
			}
		}
		if inSpeech {
			end = c.ep.SegmentEnd()
		}
	}
	c.finish(fctx, end, true)
	return nil
}

// abort abandons the open utterance after a fatal error. No SpeechEnd or
// final is reported.
func (c *Controller) abort(cause error) {
	slog.Error("segment: run failed", "utterance", c.utterance, "err", cause)
	if c.State() != StateOpen {
		return
	}
	c.state.Store(int32(StateClosed))
	c.metrics.UtteranceOpen.Add(c.uttCtx, -1)
	c.metrics.RecordUtterance(c.uttCtx, observe.OutcomeAborted, max(0, c.position-c.uttStart))
	c.span.RecordError(cause)
	c.span.SetStatus(codes.Error, cause.Error())
	c.span.End()
}

// call times one decoder operation.
func (c *Controller) call(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	c.metrics.RecordDecoderCall(ctx, op, d, err)
	c.stats.recordLatency(op, d)
	if err != nil {
		c.stats.update(func(s *Stats) { s.DecoderErrors++ })
	}
	return err
}

// emit delivers ev to the handler. Handler errors are logged only.
func (c *Controller) emit(ctx context.Context, ev Event) {
	if err := c.handler.HandleEvent(ctx, ev); err != nil {
		observe.Logger(ctx).Warn("segment: event handler failed",
			"event", ev.Type.String(), "utterance", ev.Utterance, "err", err)
	}
}

// closeAll releases the source, decoder and endpointer in that order.
func (c *Controller) closeAll() error {
	var errs []error
	if err := c.src.Close(); err != nil {
		errs = append(errs, fmt.Errorf("segment: close source: %w", err))
	}
	if err := c.dec.Close(); err != nil {
		errs = append(errs, fmt.Errorf("segment: close decoder: %w", err))
	}
	if err := c.ep.Close(); err != nil {
		errs = append(errs, fmt.Errorf("segment: close endpointer: %w", err))
	}
	return errors.Join(errs...)
}
