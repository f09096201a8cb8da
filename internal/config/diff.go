package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TranscribeChanged reports a change to the primary transcription
	// provider or any of its fallbacks.
	TranscribeChanged bool

	// TextgenChanged reports a change to the text-generation provider.
	TextgenChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.TranscribeChanged || d.TextgenChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; storage
// settings are deliberately excluded.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !entryEqual(old.Providers.Transcribe, new.Providers.Transcribe) ||
		!entriesEqual(old.Providers.TranscribeFallbacks, new.Providers.TranscribeFallbacks) {
		d.TranscribeChanged = true
	}

	if !entryEqual(old.Providers.Textgen, new.Providers.Textgen) {
		d.TextgenChanged = true
	}

	return d
}

// entryEqual compares two provider entries, including their free-form
// Options maps.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}

func entriesEqual(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !entryEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
