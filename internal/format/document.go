package format

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Entry is one transcript destined for a dataset document.
type Entry struct {
	FileName   string
	Transcript string
}

// jsonEntry is the wire shape of one entry in the JSON document.
type jsonEntry struct {
	FileName             string `json:"fileName"`
	Transcript           string `json:"transcript"`
	NormalizedTranscript string `json:"normalizedTranscript,omitempty"`
}

// jsonDocument is the envelope of the JSON document.
type jsonDocument struct {
	Metadata jsonMetadata `json:"metadata"`
	Data     []jsonEntry  `json:"data"`
}

type jsonMetadata struct {
	ExportDate string `json:"exportDate"`
	TotalFiles int    `json:"totalFiles"`
	Format     ID     `json:"format"`
}

// isoDate renders t the way browsers serialize dates, UTC with milliseconds.
func isoDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// JSONDocument renders entries as the JSON dataset envelope. For the LJSpeech
// layout each entry additionally carries its normalized transcript.
func JSONDocument(entries []Entry, id ID, opts Options, now time.Time) ([]byte, error) {
	if _, err := Lookup(id); err != nil {
		return nil, err
	}

	data := make([]jsonEntry, 0, len(entries))
	for _, e := range entries {
		je := jsonEntry{FileName: e.FileName, Transcript: e.Transcript}
		if id == LJSpeech {
			je.NormalizedTranscript = ResolveNormalized(e.FileName, e.Transcript, opts)
		}
		data = append(data, je)
	}

	doc := jsonDocument{
		Metadata: jsonMetadata{
			ExportDate: isoDate(now),
			TotalFiles: len(entries),
			Format:     id,
		},
		Data: data,
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("format: marshal json document: %w", err)
	}
	return out, nil
}

// csvHeader returns the column header row used by CSVDocument for id.
func csvHeader(id ID) string {
	switch id {
	case LJSpeech:
		return "FileName|Transcript|NormalizedTranscript"
	case CommonVoice:
		return CommonVoiceHeader
	default:
		return "FileName,Transcript"
	}
}

// CSVDocument renders entries as a header row followed by one formatted row
// per entry. A row that fails to render falls back to a minimal
// "fileName,transcript" line; the document is never aborted mid-way.
func CSVDocument(entries []Entry, id ID, opts Options) ([]byte, error) {
	if _, err := Lookup(id); err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, csvHeader(id))
	for _, e := range entries {
		row, err := Row(id, e.FileName, e.Transcript, opts)
		if err != nil {
			slog.Warn("row formatting failed, emitting fallback row",
				"file", e.FileName, "format", id, "error", err)
			row = e.FileName + "," + e.Transcript
		}
		lines = append(lines, row)
	}
	return []byte(strings.Join(lines, "\n")), nil
}

// TextDocument renders entries as plain text. The LJSpeech layout emits one
// pipe row per line; every other layout emits "fileName\ntranscript" blocks
// separated by blank lines, which the import side round-trips.
func TextDocument(entries []Entry, id ID, opts Options) ([]byte, error) {
	if _, err := Lookup(id); err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, e := range entries {
		if id == LJSpeech {
			normalized := ResolveNormalized(e.FileName, e.Transcript, opts)
			b.WriteString(e.FileName + "|" + e.Transcript + "|" + normalized + "\n")
			continue
		}
		b.WriteString(e.FileName + "\n" + e.Transcript + "\n\n")
	}
	return []byte(b.String()), nil
}
