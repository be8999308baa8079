package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/livesegment/internal/segment"
	"github.com/MrWong99/livesegment/pkg/audio"
	"github.com/MrWong99/livesegment/pkg/audio/capture"
	"github.com/MrWong99/livesegment/pkg/endpoint"
	"github.com/MrWong99/livesegment/pkg/provider/vad"
)

// Default decoder and classifier names.
const (
	DefaultDecoder     = "whisper-native"
	DefaultVAD         = "energy"
	DefaultServiceName = "livesegment"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"decoder": {"whisper-native", "whisper", "deepgram", "openai"},
	"vad":     {"energy"},
}

// Default returns a config with every default applied, as used when no
// config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills every zero field that has a default.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
	if c.Audio.Source == "" {
		c.Audio.Source = AudioCommand
	}
	if c.Audio.Source == AudioCommand && c.Audio.Command == "" {
		c.Audio.Command = capture.DefaultCommand
	}
	if c.Audio.ShortRead == "" {
		c.Audio.ShortRead = ShortReadZeroPad
	}
	if c.Endpointer.VAD == "" {
		c.Endpointer.VAD = DefaultVAD
	}
	if c.Endpointer.Mode == "" {
		c.Endpointer.Mode = vad.ModeLoose
	}
	if c.Endpointer.SampleRate == 0 {
		c.Endpointer.SampleRate = endpoint.DefaultSampleRate
	}
	if c.Endpointer.FrameLength == 0 {
		c.Endpointer.FrameLength = endpoint.DefaultFrameLength
	}
	if c.Endpointer.Window == 0 {
		c.Endpointer.Window = endpoint.DefaultWindow
	}
	if c.Endpointer.Ratio == 0 {
		c.Endpointer.Ratio = endpoint.DefaultRatio
	}
	if c.Decoder.Name == "" {
		c.Decoder.Name = DefaultDecoder
	}
	if c.Segmentation.OnShutdown == "" {
		c.Segmentation.OnShutdown = segment.ForceClose.String()
	}
	if c.Segmentation.ForceCloseTimeout == 0 {
		c.Segmentation.ForceCloseTimeout = segment.DefaultForceCloseTimeout
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Audio
	if !cfg.Audio.Source.IsValid() {
		errs = append(errs, fmt.Errorf("audio.source %q is invalid; valid values: command, file", cfg.Audio.Source))
	}
	if cfg.Audio.Source == AudioCommand && strings.TrimSpace(cfg.Audio.Command) == "" {
		errs = append(errs, errors.New("audio.command is required when source is command"))
	}
	if cfg.Audio.Source == AudioFile && cfg.Audio.Path == "" {
		errs = append(errs, errors.New("audio.path is required when source is file"))
	}
	if !cfg.Audio.ShortRead.IsValid() {
		errs = append(errs, fmt.Errorf("audio.short_read %q is invalid; valid values: zero_pad, discard", cfg.Audio.ShortRead))
	}

	// Endpointer
	ep := cfg.Endpointer
	if !ep.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("endpointer.mode %q is invalid; valid values: loose, medium, strict, very_strict", ep.Mode))
	}
	if ep.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("endpointer.sample_rate %d must be positive", ep.SampleRate))
	}
	if ep.FrameLength <= 0 {
		errs = append(errs, fmt.Errorf("endpointer.frame_length %.4f must be positive", ep.FrameLength))
	}
	if ep.Window < ep.FrameLength {
		errs = append(errs, fmt.Errorf("endpointer.window %.3f is shorter than one frame", ep.Window))
	}
	if ep.Ratio <= 0 || ep.Ratio >= 1 {
		errs = append(errs, fmt.Errorf("endpointer.ratio %.2f is out of range (0, 1)", ep.Ratio))
	}
	validateProviderName("vad", ep.VAD)

	// Decoder
	validateProviderName("decoder", cfg.Decoder.Name)
	switch cfg.Decoder.Name {
	case "whisper":
		if cfg.Decoder.BaseURL == "" {
			errs = append(errs, errors.New("decoder.base_url is required for the whisper decoder"))
		}
	case "whisper-native":
		if cfg.Decoder.Model == "" {
			errs = append(errs, errors.New("decoder.model (path to a GGML model) is required for the whisper-native decoder"))
		}
	case "deepgram", "openai":
		if cfg.Decoder.APIKey == "" {
			errs = append(errs, fmt.Errorf("decoder.api_key is required for the %s decoder", cfg.Decoder.Name))
		}
	}

	// Segmentation
	if _, err := segment.ParseShutdownPolicy(cfg.Segmentation.OnShutdown); err != nil {
		errs = append(errs, fmt.Errorf("segmentation.on_shutdown: %w", err))
	}
	if cfg.Segmentation.ForceCloseTimeout < 0 {
		errs = append(errs, fmt.Errorf("segmentation.force_close_timeout %s must not be negative", cfg.Segmentation.ForceCloseTimeout))
	}

	// Transcript
	for i, term := range cfg.Transcript.Vocabulary {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, fmt.Errorf("transcript.vocabulary[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}

// ShutdownPolicy returns the parsed segmentation.on_shutdown value.
func (c *Config) ShutdownPolicy() segment.ShutdownPolicy {
	p, err := segment.ParseShutdownPolicy(c.Segmentation.OnShutdown)
	if err != nil {
		return segment.ForceClose
	}
	return p
}

// ShortReadPolicy returns the audio.short_read value as a reader policy.
func (c *Config) ShortReadPolicy() audio.ShortReadPolicy {
	if c.Audio.ShortRead == ShortReadDiscard {
		return audio.ShortReadDiscard
	}
	return audio.ShortReadZeroPad
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
