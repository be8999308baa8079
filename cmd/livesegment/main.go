// Command livesegment cuts a live audio stream into utterances and prints a
// transcript of each one.
//
// Audio comes from a capture tool (sox by default) or a file. Speech regions
// are found by a windowed voice activity endpointer and decoded by the
// configured recognition backend. Partial hypotheses and boundaries go to
// stderr; each final hypothesis is one line on stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/livesegment/internal/config"
	"github.com/MrWong99/livesegment/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	input := flag.String("input", "", "read audio from a WAV or raw PCM file, or - for stdin, instead of the capture command")
	decoderName := flag.String("decoder", "", "decoder backend: whisper-native, whisper, deepgram, openai")
	model := flag.String("model", "", "decoder model (GGML model path for whisper-native)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath, overrides{input: *input, decoder: *decoderName, model: *model})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "livesegment: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "livesegment: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.LogLevel))
	slog.SetDefault(newLogger(&level))

	slog.Info("livesegment starting",
		"version", version,
		"config", *configPath,
		"audio", cfg.Audio.Source,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	return execute(ctx, cfg, runEnv{
		configPath: *configPath,
		reg:        reg,
		level:      &level,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	})
}

// runEnv is what [execute] needs besides the configuration.
type runEnv struct {
	configPath string // watched for hot reload when non-empty
	reg        *config.Registry
	level      *slog.LevelVar
	stdout     io.Writer
	stderr     io.Writer
}

// execute builds the pipeline described by cfg, runs it until the stream
// ends, ctx is cancelled or a fatal error occurs, and returns the process
// exit code: 0 for end of stream or cancellation, 1 for any failure.
func execute(ctx context.Context, cfg *config.Config, env runEnv) int {
	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	var ln net.Listener
	if addr := cfg.Telemetry.ListenAddr; addr != "" {
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			slog.Error("failed to listen for telemetry", "addr", addr, "err", err)
			return 1
		}
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	p, err := buildPipeline(ctx, cfg, env.reg, env.stdout, env.stderr)
	if err != nil {
		if ln != nil {
			_ = ln.Close()
		}
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Warn("pipeline close error", "err", err)
		}
	}()

	// ── Hot reload ────────────────────────────────────────────────────────────
	var watcher *config.Watcher
	if env.configPath != "" {
		watcher, err = config.NewWatcher(env.configPath, func(d config.ConfigDiff) {
			applyReload(d, env.level, p)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
			watcher = nil
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancelRun()
		return p.controller.Run(gctx)
	})
	if ln != nil {
		srv := newTelemetryServer(p.controller, tel.Handler())
		g.Go(func() error {
			return serveTelemetry(gctx, srv, ln)
		})
		slog.Info("telemetry listening", "addr", ln.Addr().String())
	}
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	st := p.controller.Stats()
	slog.Info("goodbye",
		"frames", st.Frames,
		"utterances", st.Utterances,
		"forced", st.Forced,
		"dropped", st.Dropped,
	)
	return 0
}

// overrides are the command-line values that take precedence over the config
// file.
type overrides struct {
	input   string
	decoder string
	model   string
}

// loadConfig loads path, or the defaults when path is empty, applies the
// overrides and validates the result.
func loadConfig(path string, o overrides) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if o.input != "" {
		cfg.Audio.Source = config.AudioFile
		cfg.Audio.Path = o.input
	}
	if o.decoder != "" {
		cfg.Decoder.Name = o.decoder
	}
	if o.model != "" {
		cfg.Decoder.Model = o.model
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// applyReload applies the hot-reloadable part of a config change.
func applyReload(d config.ConfigDiff, level *slog.LevelVar, p *pipeline) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VocabularyChanged {
		p.corrector.SetVocabulary(d.NewVocabulary)
		slog.Info("vocabulary reloaded", "terms", len(d.NewVocabulary))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
