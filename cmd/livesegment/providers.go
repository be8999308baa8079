package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/MrWong99/livesegment/internal/config"
	"github.com/MrWong99/livesegment/pkg/provider/stt"
	"github.com/MrWong99/livesegment/pkg/provider/stt/deepgram"
	"github.com/MrWong99/livesegment/pkg/provider/stt/openai"
	"github.com/MrWong99/livesegment/pkg/provider/stt/whisper"
	"github.com/MrWong99/livesegment/pkg/provider/vad"
	"github.com/MrWong99/livesegment/pkg/provider/vad/energy"
)

// registerBuiltinProviders wires all built-in decoder and classifier
// factories into reg. Each factory receives a config.ProviderEntry and
// constructs the provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Decoders ──────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		if d, ok := optDuration(entry.Options, "partial_interval"); ok {
			opts = append(opts, whisper.WithNativePartialInterval(d))
		}
		if d, ok := optDuration(entry.Options, "max_duration"); ok {
			opts = append(opts, whisper.WithNativeMaxDuration(d))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		if d, ok := optDuration(entry.Options, "partial_interval"); ok {
			opts = append(opts, whisper.WithPartialInterval(d))
		}
		if d, ok := optDuration(entry.Options, "max_duration"); ok {
			opts = append(opts, whisper.WithMaxDuration(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if d, ok := optDuration(entry.Options, "timeout"); ok {
			opts = append(opts, openai.WithTimeout(d))
		}
		if d, ok := optDuration(entry.Options, "partial_interval"); ok {
			opts = append(opts, openai.WithPartialInterval(d))
		}
		if _, ok := entry.Options["max_retries"]; ok {
			opts = append(opts, openai.WithMaxRetries(optInt(entry.Options, "max_retries")))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Frame classifiers ─────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})
}

// ── Option helpers ────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML numbers decode as int; numeric
// strings are accepted too. Returns 0 when absent or malformed.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// optDuration extracts a duration option written as a Go duration string
// ("1.5s") or a number of seconds.
func optDuration(opts map[string]any, key string) (time.Duration, bool) {
	switch v := opts[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	case int:
		return time.Duration(v) * time.Second, true
	case float64:
		return time.Duration(v * float64(time.Second)), true
	}
	return 0, false
}

// keywordBoosts turns the vocabulary into decoder recognition hints.
func keywordBoosts(vocabulary []string, boost float64) []stt.KeywordBoost {
	if len(vocabulary) == 0 {
		return nil
	}
	out := make([]stt.KeywordBoost, 0, len(vocabulary))
	for _, term := range vocabulary {
		out = append(out, stt.KeywordBoost{Keyword: term, Boost: boost})
	}
	return out
}

// providerSummary is the one-line description of the decoder logged at
// startup.
func providerSummary(entry config.ProviderEntry) string {
	if entry.Model == "" {
		return entry.Name
	}
	return fmt.Sprintf("%s / %s", entry.Name, entry.Model)
}
