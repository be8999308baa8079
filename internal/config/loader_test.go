package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/livesegment/internal/config"
	"github.com/MrWong99/livesegment/internal/segment"
	"github.com/MrWong99/livesegment/pkg/audio"
	"github.com/MrWong99/livesegment/pkg/audio/capture"
	"github.com/MrWong99/livesegment/pkg/provider/vad"
)

const fullYAML = `
log_level: debug
audio:
  source: file
  path: session.wav
  short_read: discard
endpointer:
  vad: energy
  mode: strict
  sample_rate: 8000
  frame_length: 0.02
  window: 0.2
  ratio: 0.8
decoder:
  name: deepgram
  api_key: dg-key
  model: nova-2
  language: de
  options:
    endpoint: wss://example.test/v1/listen
segmentation:
  on_shutdown: drop
  force_close_timeout: 5s
transcript:
  vocabulary: [Eldrinax, Tower of Whispers]
  postgres_dsn: postgres://localhost/livesegment
  record_dir: /tmp/rec
  session: s1
telemetry:
  listen_addr: ":9090"
  service_name: seg-test
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Audio.Source != config.AudioFile || cfg.Audio.Path != "session.wav" {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.ShortReadPolicy() != audio.ShortReadDiscard {
		t.Errorf("ShortReadPolicy = %v", cfg.ShortReadPolicy())
	}
	want := config.EndpointerConfig{VAD: "energy", Mode: vad.ModeStrict, SampleRate: 8000, FrameLength: 0.02, Window: 0.2, Ratio: 0.8}
	if cfg.Endpointer != want {
		t.Errorf("endpointer = %+v, want %+v", cfg.Endpointer, want)
	}
	if cfg.Decoder.Name != "deepgram" || cfg.Decoder.Language != "de" || cfg.Decoder.Options["endpoint"] != "wss://example.test/v1/listen" {
		t.Errorf("decoder = %+v", cfg.Decoder)
	}
	if cfg.ShutdownPolicy() != segment.Drop || cfg.Segmentation.ForceCloseTimeout != 5*time.Second {
		t.Errorf("segmentation = %+v", cfg.Segmentation)
	}
	if len(cfg.Transcript.Vocabulary) != 2 || cfg.Transcript.Session != "s1" {
		t.Errorf("transcript = %+v", cfg.Transcript)
	}
	if cfg.Telemetry.ServiceName != "seg-test" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("decoder:\n  model: ggml-base.en.bin\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.LogLevel)
	}
	if cfg.Audio.Source != config.AudioCommand || cfg.Audio.Command != capture.DefaultCommand {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.ShortReadPolicy() != audio.ShortReadZeroPad {
		t.Errorf("ShortReadPolicy = %v, want zero_pad", cfg.ShortReadPolicy())
	}
	if cfg.Endpointer.VAD != config.DefaultVAD || cfg.Endpointer.Mode != vad.ModeLoose ||
		cfg.Endpointer.SampleRate != 16000 || cfg.Endpointer.FrameLength != 0.03 ||
		cfg.Endpointer.Window != 0.3 || cfg.Endpointer.Ratio != 0.9 {
		t.Errorf("endpointer = %+v", cfg.Endpointer)
	}
	if cfg.Decoder.Name != config.DefaultDecoder {
		t.Errorf("decoder.name = %q", cfg.Decoder.Name)
	}
	if cfg.ShutdownPolicy() != segment.ForceClose || cfg.Segmentation.ForceCloseTimeout != segment.DefaultForceCloseTimeout {
		t.Errorf("segmentation = %+v", cfg.Segmentation)
	}
	if cfg.Telemetry.ServiceName != config.DefaultServiceName || cfg.Telemetry.ListenAddr != "" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
}

func TestDefault_NeedsDecoderModel(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "decoder.model") {
		t.Fatalf("Validate(Default()) = %v, want decoder.model error", err)
	}
	cfg.Decoder.Model = "model.bin"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("log_level: info\nbogus: 1\n"))
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "bad enums",
			yaml: `
log_level: loud
audio: {source: mic, short_read: pad}
endpointer: {mode: angry}
decoder: {name: whisper, base_url: http://localhost:8080}
segmentation: {on_shutdown: explode}
`,
			want: []string{"log_level", "audio.source", "audio.short_read", "endpointer.mode", "segmentation.on_shutdown"},
		},
		{
			name: "file without path",
			yaml: "audio: {source: file}\ndecoder: {name: whisper, base_url: http://x}\n",
			want: []string{"audio.path"},
		},
		{
			name: "endpointer ranges",
			yaml: "endpointer: {sample_rate: -1, frame_length: 0.05, window: 0.01, ratio: 1.5}\ndecoder: {name: whisper, base_url: http://x}\n",
			want: []string{"endpointer.sample_rate", "endpointer.window", "endpointer.ratio"},
		},
		{
			name: "ratio of one never enters speech",
			yaml: "endpointer: {ratio: 1}\ndecoder: {name: whisper, base_url: http://x}\n",
			want: []string{"endpointer.ratio 1.00 is out of range (0, 1)"},
		},
		{
			name: "decoder requirements",
			yaml: "decoder: {name: deepgram}\n",
			want: []string{"decoder.api_key"},
		},
		{
			name: "whisper server url",
			yaml: "decoder: {name: whisper}\n",
			want: []string{"decoder.base_url"},
		},
		{
			name: "blank vocabulary term",
			yaml: "decoder: {name: whisper, base_url: http://x}\ntranscript: {vocabulary: [Grimjaw, '  ']}\n",
			want: []string{"transcript.vocabulary[1]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, fullYAML)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Decoder.Model != "nova-2" {
		t.Errorf("decoder.model = %q", cfg.Decoder.Model)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}
