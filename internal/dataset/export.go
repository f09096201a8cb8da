package dataset

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/speechset/speechset/internal/format"
	"github.com/speechset/speechset/internal/library"
	"github.com/speechset/speechset/internal/settings"
	"github.com/speechset/speechset/internal/transcript"
)

// Export precondition failures.
var (
	// ErrNoFiles means no audio files are uploaded.
	ErrNoFiles = errors.New("no files available to export")
	// ErrNoTranscripts means the transcript store is empty, or nothing in it
	// matches the uploaded files.
	ErrNoTranscripts = errors.New("no transcripts available to export")
)

// audioGatherLimit bounds concurrent audio reads while bundling.
const audioGatherLimit = 4

// artifactBaseName is the stem of every export artifact.
const artifactBaseName = "speech-dataset"

// Output names a transcript document serialization for export.
type Output string

const (
	OutputJSON Output = "json"
	OutputCSV  Output = "csv"
	OutputText Output = "txt"
)

// IsValid reports whether o names a supported output serialization.
func (o Output) IsValid() bool {
	switch o {
	case OutputJSON, OutputCSV, OutputText:
		return true
	}
	return false
}

// Extension returns the artifact file extension for o, dot included.
func (o Output) Extension() string {
	switch o {
	case OutputJSON:
		return ".json"
	case OutputCSV:
		return ".csv"
	default:
		return ".txt"
	}
}

// MIME returns the content type of the artifact for o.
func (o Output) MIME() string {
	switch o {
	case OutputJSON:
		return "application/json"
	case OutputCSV:
		return "text/csv"
	default:
		return "text/plain"
	}
}

// Request describes one export.
type Request struct {
	// Output selects the transcript document serialization.
	Output Output
	// Bundle wraps the document and the matched audio files in a zip archive.
	Bundle bool
	// AudioTarget optionally renames bundled audio to this container
	// extension ("wav" or "mp3"). Audio bytes are copied as-is; only the
	// name changes.
	AudioTarget string
}

// Artifact is a finished export ready to hand to the client.
type Artifact struct {
	Name string
	MIME string
	Data []byte
}

// Assembler builds export artifacts from the transcript store, restricted to
// the files currently uploaded.
type Assembler struct {
	store    *transcript.MemStore
	lib      *library.Library
	settings *settings.Manager
	now      func() time.Time
}

// AssemblerOption is a functional option for configuring an [Assembler].
type AssemblerOption func(*Assembler)

// WithNow sets the timestamp source used for export metadata.
func WithNow(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

// NewAssembler wires an assembler to its collaborators.
func NewAssembler(store *transcript.MemStore, lib *library.Library, mgr *settings.Manager, opts ...AssemblerOption) *Assembler {
	a := &Assembler{store: store, lib: lib, settings: mgr, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Export assembles the artifact described by req in the currently active
// dataset format. It fails with [ErrNoFiles] or [ErrNoTranscripts] when the
// working set cannot produce a dataset.
func (a *Assembler) Export(ctx context.Context, req Request) (Artifact, error) {
	if !req.Output.IsValid() {
		return Artifact{}, fmt.Errorf("dataset: output %q: %w", req.Output, format.ErrUnknownFormat)
	}

	names := a.lib.Names()
	if len(names) == 0 {
		return Artifact{}, fmt.Errorf("dataset: %w", ErrNoFiles)
	}
	all := a.store.All()
	if len(all) == 0 {
		return Artifact{}, fmt.Errorf("dataset: %w", ErrNoTranscripts)
	}

	// Only files in the current upload set are exported, in upload order.
	entries := make([]format.Entry, 0, len(names))
	for _, name := range names {
		if text, ok := all[name]; ok {
			entries = append(entries, format.Entry{FileName: name, Transcript: text})
		}
	}
	if len(entries) == 0 {
		return Artifact{}, fmt.Errorf("dataset: no transcripts for the current files: %w", ErrNoTranscripts)
	}

	id := a.settings.Format()
	opts := a.settings.FormatOptions()

	doc, err := a.document(entries, id, opts, req.Output)
	if err != nil {
		return Artifact{}, err
	}

	if !req.Bundle {
		return Artifact{
			Name: artifactBaseName + req.Output.Extension(),
			MIME: req.Output.MIME(),
			Data: doc,
		}, nil
	}
	return a.bundle(ctx, entries, doc, req)
}

// document renders the transcript document for the requested serialization.
func (a *Assembler) document(entries []format.Entry, id format.ID, opts format.Options, out Output) ([]byte, error) {
	switch out {
	case OutputJSON:
		return format.JSONDocument(entries, id, opts, a.now())
	case OutputCSV:
		return format.CSVDocument(entries, id, opts)
	default:
		return format.TextDocument(entries, id, opts)
	}
}

// bundledAudio is one audio file staged for the zip archive.
type bundledAudio struct {
	name string
	data []byte
}

// bundle builds the zip artifact: the transcript document plus an audio/
// folder with every exported clip. Audio is gathered concurrently, then
// written sequentially in upload order.
func (a *Assembler) bundle(ctx context.Context, entries []format.Entry, doc []byte, req Request) (Artifact, error) {
	staged := make([]bundledAudio, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(audioGatherLimit)
	for idx, e := range entries {
		idx, e := idx, e
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := a.lib.Get(e.FileName)
			if err != nil {
				return fmt.Errorf("dataset: bundle audio: %w", err)
			}
			staged[idx] = bundledAudio{
				name: audioName(f.Name, req.AudioTarget),
				data: f.Data,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Artifact{}, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("transcripts" + req.Output.Extension())
	if err != nil {
		return Artifact{}, fmt.Errorf("dataset: zip transcripts: %w", err)
	}
	if _, err := w.Write(doc); err != nil {
		return Artifact{}, fmt.Errorf("dataset: zip transcripts: %w", err)
	}

	for _, audio := range staged {
		w, err := zw.Create("audio/" + audio.name)
		if err != nil {
			return Artifact{}, fmt.Errorf("dataset: zip %q: %w", audio.name, err)
		}
		if _, err := w.Write(audio.data); err != nil {
			return Artifact{}, fmt.Errorf("dataset: zip %q: %w", audio.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return Artifact{}, fmt.Errorf("dataset: close zip: %w", err)
	}
	return Artifact{
		Name: artifactBaseName + ".zip",
		MIME: "application/zip",
		Data: buf.Bytes(),
	}, nil
}

// audioName applies the container-passthrough rename. Only wav and mp3
// targets are honoured; anything else keeps the original name.
func audioName(name, target string) string {
	switch target {
	case "wav", "mp3":
		return format.BaseName(name) + "." + target
	}
	return name
}
