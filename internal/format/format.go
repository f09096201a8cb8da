// Package format renders transcript entries in the dataset layouts understood
// by common speech-training toolchains.
//
// Four layouts are supported: a plain CSV-ish default, LJSpeech pipe rows,
// Mozilla Common Voice TSV-style rows, and a user-defined template. Row output
// is a stable serialization contract: tools downstream parse these lines, so
// the exact byte layout of each row must not drift between releases.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/speechset/speechset/internal/normalize"
)

// ID identifies one of the supported dataset layouts.
type ID string

const (
	// Default renders "fileName,transcript" rows.
	Default ID = "default"
	// LJSpeech renders "baseName|transcript|normalizedText" rows.
	LJSpeech ID = "ljspeech"
	// CommonVoice renders Mozilla Common Voice rows with only the path and
	// sentence columns populated.
	CommonVoice ID = "commonvoice"
	// Custom renders rows from a user-supplied template.
	Custom ID = "custom"
)

// IsValid reports whether id names a supported layout.
func (id ID) IsValid() bool {
	switch id {
	case Default, LJSpeech, CommonVoice, Custom:
		return true
	}
	return false
}

// ErrUnknownFormat is returned when a format ID does not name a supported layout.
var ErrUnknownFormat = errors.New("unknown dataset format")

// CommonVoiceHeader is the column header row for the Common Voice layout.
const CommonVoiceHeader = "client_id,path,sentence,up_votes,down_votes,age,gender,accent"

// CustomConfig holds the user-defined layout settings.
type CustomConfig struct {
	// Delimiter substituted for {delimiter} in the template. Default "|".
	Delimiter string `yaml:"delimiter" json:"delimiter"`
	// Template is the row template. It may reference {filename},
	// {transcript} and {delimiter}; each placeholder is substituted exactly
	// once. Default "{filename}{delimiter}{transcript}".
	Template string `yaml:"template" json:"template"`
}

// DefaultCustomConfig returns the out-of-the-box custom layout settings.
func DefaultCustomConfig() CustomConfig {
	return CustomConfig{Delimiter: "|", Template: "{filename}{delimiter}{transcript}"}
}

func (c CustomConfig) withDefaults() CustomConfig {
	d := DefaultCustomConfig()
	if c.Delimiter == "" {
		c.Delimiter = d.Delimiter
	}
	if c.Template == "" {
		c.Template = d.Template
	}
	return c
}

// Overrides supplies manually normalized text per file name and caches
// automatic normalization results so repeated renders stay stable.
type Overrides interface {
	// NormalizedOverride returns the manual normalization for fileName, if any.
	NormalizedOverride(fileName string) (string, bool)
	// SetNormalizedOverride records text as the normalization for fileName.
	SetNormalizedOverride(fileName, text string)
}

// Options carries the per-render context a layout may need.
type Options struct {
	// Custom configures the Custom layout. Zero value falls back to defaults.
	Custom CustomConfig
	// AutoNormalize enables automatic normalization for the LJSpeech layout
	// when no manual override exists.
	AutoNormalize bool
	// Policy is the normalization policy used by AutoNormalize.
	Policy normalize.Policy
	// Overrides is the manual-normalization source and cache. May be nil.
	Overrides Overrides
}

// Definition describes one layout for UI and validation purposes.
type Definition struct {
	ID          ID
	Name        string
	Description string
	Example     string
}

var definitions = []Definition{
	{
		ID:          Default,
		Name:        "Default",
		Description: "Simple fileName,transcript rows",
		Example:     "audio_001.wav,This is the first sample.",
	},
	{
		ID:          LJSpeech,
		Name:        "LJSpeech",
		Description: "Pipe-delimited baseName|transcript|normalizedText rows",
		Example:     "audio_001|This is the first sample.|this is the first sample",
	},
	{
		ID:          CommonVoice,
		Name:        "Common Voice",
		Description: "Mozilla Common Voice rows with path and sentence populated",
		Example:     CommonVoiceHeader,
	},
	{
		ID:          Custom,
		Name:        "Custom",
		Description: "User-defined template with {filename}, {transcript} and {delimiter}",
		Example:     "audio_001.wav|This is the first sample.",
	},
}

// Lookup returns the definition for id, or [ErrUnknownFormat].
func Lookup(id ID) (Definition, error) {
	for _, d := range definitions {
		if d.ID == id {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("format: %q: %w", id, ErrUnknownFormat)
}

// All returns the definitions of every supported layout, in display order.
func All() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// extensionRE strips a trailing ".ext" from a file name. Only the final
// extension is removed, so "a.b.wav" becomes "a.b".
var extensionRE = regexp.MustCompile(`\.[^/.]+$`)

// BaseName returns fileName without its final extension.
func BaseName(fileName string) string {
	return extensionRE.ReplaceAllString(fileName, "")
}

// Row renders a single entry in the layout named by id.
//
// Common Voice rows quote the sentence column only; path stays bare, and the
// stray trailing quote some Common Voice exports carry is deliberately
// dropped.
func Row(id ID, fileName, transcript string, opts Options) (string, error) {
	switch id {
	case Default:
		return fileName + "," + transcript, nil
	case LJSpeech:
		normalized := ResolveNormalized(fileName, transcript, opts)
		return BaseName(fileName) + "|" + transcript + "|" + normalized, nil
	case CommonVoice:
		sentence := strings.ReplaceAll(transcript, `"`, `""`)
		return "," + fileName + `,"` + sentence + `",,,,,`, nil
	case Custom:
		cfg := opts.Custom.withDefaults()
		out := strings.Replace(cfg.Template, "{filename}", fileName, 1)
		out = strings.Replace(out, "{transcript}", transcript, 1)
		out = strings.Replace(out, "{delimiter}", cfg.Delimiter, 1)
		return out, nil
	}
	return "", fmt.Errorf("format: %q: %w", id, ErrUnknownFormat)
}

// ResolveNormalized returns the normalized text for one entry following the
// LJSpeech precedence: manual override, then automatic normalization when
// enabled (cached back as an override), then the transcript verbatim.
func ResolveNormalized(fileName, transcript string, opts Options) string {
	if opts.Overrides != nil {
		if manual, ok := opts.Overrides.NormalizedOverride(fileName); ok && manual != "" {
			return manual
		}
	}
	if opts.AutoNormalize {
		normalized := normalize.Normalize(transcript, opts.Policy)
		if opts.Overrides != nil && fileName != "" && normalized != "" {
			opts.Overrides.SetNormalizedOverride(fileName, normalized)
		}
		return normalized
	}
	return transcript
}
