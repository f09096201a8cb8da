// Package dataset imports existing transcript collections into the working
// set and assembles export artifacts from it.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/speechset/speechset/internal/format"
	"github.com/speechset/speechset/internal/library"
	"github.com/speechset/speechset/internal/transcript"
)

// ErrParse is returned when an import payload cannot be recognised or decoded.
var ErrParse = errors.New("unparseable import payload")

// suggestionThreshold is the minimum Jaro-Winkler similarity for a
// "did you mean" suggestion on a missing import key.
const suggestionThreshold = 0.8

// Summary reports how an import payload reconciled against the uploaded
// file library.
type Summary struct {
	// Applied counts keys matched to exactly one uploaded file.
	Applied int `json:"applied"`
	// Ambiguous counts keys whose basename matched several uploaded files;
	// the transcript was applied to all of them.
	Ambiguous int `json:"ambiguous"`
	// Missing counts keys with no uploaded match; their transcripts are
	// retained under the imported key.
	Missing int `json:"missing"`
	// Suggestions maps missing keys to the closest uploaded file name, when
	// one is similar enough to look like a typo.
	Suggestions map[string]string `json:"suggestions,omitempty"`
}

// entry is one parsed transcript row before reconciliation.
type entry struct {
	fileName   string
	transcript string
	normalized string
}

// Importer parses transcript payloads and applies them to the working set.
type Importer struct {
	store     *transcript.MemStore
	lib       *library.Library
	overrides format.Overrides
}

// NewImporter wires an importer to the transcript store, the uploaded-file
// library, and the manual-normalization override sink.
func NewImporter(store *transcript.MemStore, lib *library.Library, overrides format.Overrides) *Importer {
	return &Importer{store: store, lib: lib, overrides: overrides}
}

// Import parses payload, reconciles the entries against the uploaded files,
// applies them to the store, and returns the reconciliation summary.
// fileName is the name of the uploaded payload and is only used as a
// format hint.
func (i *Importer) Import(payload []byte, fileName string) (Summary, error) {
	entries, err := parse(payload, fileName)
	if err != nil {
		return Summary{}, err
	}
	if len(entries) == 0 {
		return Summary{}, fmt.Errorf("dataset: no transcript entries recognised: %w", ErrParse)
	}
	return i.apply(entries), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Parsing
// ─────────────────────────────────────────────────────────────────────────────

// jsonPayload matches the export envelope; a bare array of the same entry
// shape is handled separately.
type jsonPayload struct {
	Data []jsonImportEntry `json:"data"`
}

type jsonImportEntry struct {
	FileName             string `json:"fileName"`
	Transcript           string `json:"transcript"`
	NormalizedTranscript string `json:"normalizedTranscript"`
}

// parse sniffs the payload format and decodes it into entries.
func parse(payload []byte, fileName string) ([]entry, error) {
	text := strings.TrimPrefix(string(payload), "\ufeff")
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("dataset: empty payload: %w", ErrParse)
	}

	// The file-name hint always wins; content sniffing only decides untyped
	// payloads. A pipe inside a CSV transcript must not flip the row format.
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".json") || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return parseJSON(trimmed)
	case strings.HasSuffix(lower, ".tsv"):
		return parseDelimited(trimmed, '\t')
	case strings.HasSuffix(lower, ".csv"):
		return parseDelimited(trimmed, ',')
	case strings.Contains(trimmed, "\t"):
		return parseDelimited(trimmed, '\t')
	case strings.Contains(trimmed, "|"):
		return parseLJSpeech(trimmed)
	case looksLikeCSV(trimmed):
		return parseDelimited(trimmed, ',')
	default:
		return parseBlocks(trimmed), nil
	}
}

func parseJSON(text string) ([]entry, error) {
	var raw []jsonImportEntry
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("dataset: decode json array: %v: %w", err, ErrParse)
		}
	} else {
		var p jsonPayload
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, fmt.Errorf("dataset: decode json envelope: %v: %w", err, ErrParse)
		}
		raw = p.Data
	}

	entries := make([]entry, 0, len(raw))
	for _, r := range raw {
		if r.FileName == "" {
			continue
		}
		entries = append(entries, entry{
			fileName:   r.FileName,
			transcript: r.Transcript,
			normalized: r.NormalizedTranscript,
		})
	}
	return entries, nil
}

// looksLikeCSV reports whether every non-empty line has at least two
// comma-separated fields.
func looksLikeCSV(text string) bool {
	lines := strings.Split(text, "\n")
	seen := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.Contains(line, ",") {
			return false
		}
		seen = true
	}
	return seen
}

// headerFields are first-column values that mark a header row to skip.
var headerFields = map[string]bool{
	"filename":  true,
	"file_name": true,
	"client_id": true,
	"path":      true,
}

func parseDelimited(text string, comma rune) ([]entry, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: decode delimited rows: %v: %w", err, ErrParse)
	}

	var entries []entry
	for idx, rec := range records {
		if len(rec) < 2 {
			continue
		}
		name := strings.TrimSpace(rec[0])
		if name == "" {
			continue
		}
		if idx == 0 && headerFields[strings.ToLower(name)] {
			continue
		}
		e := entry{fileName: name, transcript: strings.TrimSpace(rec[1])}
		if len(rec) > 2 {
			e.normalized = strings.TrimSpace(rec[2])
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// cleanField strips whitespace, a leading BOM, and surrounding quotes from
// one pipe field.
func cleanField(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	return strings.Trim(s, `"`)
}

// parseLJSpeech decodes pipe rows. Keys without an extension gain ".wav";
// everything past the second field is the normalized text.
func parseLJSpeech(text string) ([]entry, error) {
	var entries []entry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 2 {
			continue
		}
		name := cleanField(fields[0])
		if name == "" {
			continue
		}
		if strings.ToLower(name) == "filename" {
			continue
		}
		if !strings.Contains(name, ".") {
			name += ".wav"
		}
		e := entry{
			fileName:   name,
			transcript: cleanField(fields[1]),
		}
		if len(fields) > 2 {
			tail := make([]string, 0, len(fields)-2)
			for _, f := range fields[2:] {
				tail = append(tail, cleanField(f))
			}
			e.normalized = strings.TrimSpace(strings.Join(tail, "|"))
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("dataset: no pipe rows recognised: %w", ErrParse)
	}
	return entries, nil
}

// parseBlocks decodes "fileName\ntranscript" blocks separated by blank lines.
func parseBlocks(text string) []entry {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var entries []entry
	for _, block := range strings.Split(text, "\n\n") {
		lines := []string{}
		for _, line := range strings.Split(block, "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, strings.TrimSpace(line))
			}
		}
		if len(lines) < 2 {
			continue
		}
		entries = append(entries, entry{
			fileName:   lines[0],
			transcript: strings.Join(lines[1:], " "),
		})
	}
	return entries
}

// ─────────────────────────────────────────────────────────────────────────────
// Reconciliation
// ─────────────────────────────────────────────────────────────────────────────

// apply reconciles entries against the uploaded library and writes them to
// the store. Duplicate keys within one payload collapse to the last
// occurrence before counting.
func (i *Importer) apply(entries []entry) Summary {
	uploaded := i.lib.Names()
	baseIndex := make(map[string][]string, len(uploaded))
	for _, name := range uploaded {
		base := format.BaseName(name)
		baseIndex[base] = append(baseIndex[base], name)
	}

	deduped := dedupeKeepLast(entries)

	summary := Summary{Suggestions: make(map[string]string)}
	for _, e := range deduped {
		switch {
		case i.lib.Has(e.fileName):
			i.set(e.fileName, e)
			summary.Applied++

		default:
			matches := baseIndex[format.BaseName(e.fileName)]
			switch len(matches) {
			case 0:
				i.set(e.fileName, e)
				summary.Missing++
				if best := closestName(e.fileName, uploaded); best != "" {
					summary.Suggestions[e.fileName] = best
				}
			case 1:
				i.set(matches[0], e)
				summary.Applied++
			default:
				for _, name := range matches {
					i.set(name, e)
				}
				summary.Ambiguous++
				slog.Warn("ambiguous import key applied to all basename matches",
					"key", e.fileName, "matches", len(matches))
			}
		}
	}
	if len(summary.Suggestions) == 0 {
		summary.Suggestions = nil
	}
	return summary
}

// set writes one entry's transcript and, when present, its normalized text.
func (i *Importer) set(fileName string, e entry) {
	i.store.Set(fileName, e.transcript)
	if e.normalized != "" && i.overrides != nil {
		i.overrides.SetNormalizedOverride(fileName, e.normalized)
	}
}

// dedupeKeepLast collapses duplicate keys to the last occurrence while
// keeping first-occurrence order.
func dedupeKeepLast(entries []entry) []entry {
	last := make(map[string]entry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, seen := last[e.fileName]; !seen {
			order = append(order, e.fileName)
		}
		last[e.fileName] = e
	}
	out := make([]entry, 0, len(order))
	for _, name := range order {
		out = append(out, last[name])
	}
	return out
}

// closestName returns the uploaded name most similar to key, or "" when
// nothing clears the suggestion threshold.
func closestName(key string, uploaded []string) string {
	best := ""
	bestScore := suggestionThreshold
	for _, name := range uploaded {
		score := matchr.JaroWinkler(strings.ToLower(key), strings.ToLower(name), false)
		if score > bestScore {
			best = name
			bestScore = score
		}
	}
	return best
}
