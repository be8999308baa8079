// Package capture opens the audio inputs of the segmentation pipeline: a
// long-running capture tool whose stdout carries raw PCM, or a file.
//
// Both produce an [audio.Source] of signed 16-bit little-endian mono PCM at
// the sample rate the endpointer requires.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/livesegment/pkg/audio"
)

// DefaultCommand records the default input device with sox. {rate} is
// replaced with the endpointer's sample rate.
const DefaultCommand = "sox -q -r {rate} -c 1 -b 16 -e signed-integer -d -t raw -"

// DefaultWaitDelay is how long a capture tool may take to exit after SIGINT
// before it is killed.
const DefaultWaitDelay = 2 * time.Second

// maxStderr caps the stderr tail kept for error reports.
const maxStderr = 1024

// ExpandCommand substitutes {rate} in template and splits it on whitespace.
// Quoting is not supported.
func ExpandCommand(template string, sampleRate int) []string {
	return strings.Fields(strings.ReplaceAll(template, "{rate}", strconv.Itoa(sampleRate)))
}

// CommandOption configures [StartCommand].
type CommandOption func(*commandConfig)

type commandConfig struct {
	waitDelay  time.Duration
	readerOpts []audio.ReaderOption
}

// WithWaitDelay sets how long the tool may take to exit after SIGINT.
// Default: [DefaultWaitDelay].
func WithWaitDelay(d time.Duration) CommandOption {
	return func(c *commandConfig) { c.waitDelay = d }
}

// WithReaderOptions passes options to the underlying [audio.ReaderSource].
func WithReaderOptions(opts ...audio.ReaderOption) CommandOption {
	return func(c *commandConfig) { c.readerOpts = append(c.readerOpts, opts...) }
}

// Command is an [audio.Source] reading the stdout of a capture tool.
//
// Cancelling the context passed to [StartCommand] sends SIGINT to the tool;
// its stdout then ends and NextFrame reports io.EOF. Close stops the tool if it
// is still running and waits for it. A non-zero exit is reported only when the
// tool ended on its own.
type Command struct {
	*audio.ReaderSource

	ctx    context.Context
	cmd    *exec.Cmd
	name   string
	stdout *eofReader
	stderr *tailBuffer

	closeOnce sync.Once
	closeErr  error
}

var _ audio.Source = (*Command)(nil)

// StartCommand launches args and frames its stdout into frameSize-sample
// frames.
func StartCommand(ctx context.Context, args []string, frameSize int, opts ...CommandOption) (*Command, error) {
	if len(args) == 0 {
		return nil, errors.New("capture: empty command")
	}
	cfg := commandConfig{waitDelay: DefaultWaitDelay}
	for _, o := range opts {
		o(&cfg)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = cfg.waitDelay
	stderr := &tailBuffer{max: maxStderr}
	cmd.Stderr = stderr

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: start %s: %w", args[0], err)
	}

	c := &Command{
		ctx:    ctx,
		cmd:    cmd,
		name:   args[0],
		stdout: &eofReader{r: pipe},
		stderr: stderr,
	}
	readerOpts := append([]audio.ReaderOption{audio.WithCloser(c.stop)}, cfg.readerOpts...)
	src, err := audio.NewReaderSource(bufio.NewReader(c.stdout), frameSize, readerOpts...)
	if err != nil {
		_ = c.stop()
		return nil, err
	}
	c.ReaderSource = src

	slog.Info("capture: started", "command", strings.Join(args, " "), "pid", cmd.Process.Pid)
	return c, nil
}

// Close stops the tool and waits for it to exit.
func (c *Command) Close() error {
	return c.ReaderSource.Close()
}

// stop interrupts the tool unless its stream already ended, then waits.
func (c *Command) stop() error {
	c.closeOnce.Do(func() {
		interrupted := false
		if !c.stdout.ended.Load() {
			if err := c.cmd.Process.Signal(os.Interrupt); err == nil {
				interrupted = true
			}
		}
		err := c.cmd.Wait()
		if err == nil || interrupted || c.ctx.Err() != nil {
			slog.Debug("capture: stopped", "command", c.name, "interrupted", interrupted)
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.closeErr = fmt.Errorf("capture: %s exited with code %d: %s",
				c.name, exitErr.ExitCode(), strings.TrimSpace(c.stderr.String()))
			return
		}
		c.closeErr = fmt.Errorf("capture: wait %s: %w", c.name, err)
	})
	return c.closeErr
}

// eofReader records whether the wrapped reader reached end of stream.
type eofReader struct {
	r     io.Reader
	ended atomic.Bool
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if errors.Is(err, io.EOF) {
		e.ended.Store(true)
	}
	return n, err
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
