package config

import (
	"fmt"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VocabularyChanged bool
	NewVocabulary     []string

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VocabularyChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	if !slices.Equal(old.Transcript.Vocabulary, new.Transcript.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = slices.Clone(new.Transcript.Vocabulary)
	}

	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Endpointer != new.Endpointer {
		d.RestartRequired = append(d.RestartRequired, "endpointer")
	}
	if !sameEntry(old.Decoder, new.Decoder) {
		d.RestartRequired = append(d.RestartRequired, "decoder")
	}
	if old.Segmentation != new.Segmentation {
		d.RestartRequired = append(d.RestartRequired, "segmentation")
	}
	if old.Transcript.PostgresDSN != new.Transcript.PostgresDSN ||
		old.Transcript.RecordDir != new.Transcript.RecordDir ||
		old.Transcript.Session != new.Transcript.Session {
		d.RestartRequired = append(d.RestartRequired, "transcript")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

// sameEntry compares two provider entries. Options are compared by key set
// and string form only.
func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL ||
		a.Model != b.Model || a.Language != b.Language || len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}
