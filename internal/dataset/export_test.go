package dataset_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/speechset/speechset/internal/dataset"
	"github.com/speechset/speechset/internal/format"
	"github.com/speechset/speechset/internal/library"
	"github.com/speechset/speechset/internal/settings"
	"github.com/speechset/speechset/internal/transcript"
)

var exportNow = func() time.Time {
	return time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC)
}

// exportFixture builds an assembler over a library and store seeded from
// files (name → transcript; empty transcript means uploaded but untranscribed).
func exportFixture(t *testing.T, files map[string]string) (*dataset.Assembler, *settings.Manager) {
	t.Helper()
	lib := library.New()
	store := transcript.NewMemStore(nil)
	for name, text := range files {
		if err := lib.Add(library.AudioFile{Name: name, MIME: "audio/wav", Data: []byte(name)}); err != nil {
			t.Fatalf("setup Add: %v", err)
		}
		if text != "" {
			store.Set(name, text)
		}
	}
	mgr := settings.NewManager(nil)
	return dataset.NewAssembler(store, lib, mgr, dataset.WithNow(exportNow)), mgr
}

func TestExportPreconditions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("no uploaded files", func(t *testing.T) {
		t.Parallel()
		a, _ := exportFixture(t, nil)
		_, err := a.Export(ctx, dataset.Request{Output: dataset.OutputJSON})
		if !errors.Is(err, dataset.ErrNoFiles) {
			t.Fatalf("Export: expected ErrNoFiles, got %v", err)
		}
	})

	t.Run("empty transcript store", func(t *testing.T) {
		t.Parallel()
		a, _ := exportFixture(t, map[string]string{"a.wav": ""})
		_, err := a.Export(ctx, dataset.Request{Output: dataset.OutputJSON})
		if !errors.Is(err, dataset.ErrNoTranscripts) {
			t.Fatalf("Export: expected ErrNoTranscripts, got %v", err)
		}
	})

	t.Run("no transcript matches the current files", func(t *testing.T) {
		t.Parallel()
		lib := library.New()
		_ = lib.Add(library.AudioFile{Name: "a.wav"})
		store := transcript.NewMemStore(nil)
		store.Set("other.wav", "text")
		a := dataset.NewAssembler(store, lib, settings.NewManager(nil))
		_, err := a.Export(ctx, dataset.Request{Output: dataset.OutputJSON})
		if !errors.Is(err, dataset.ErrNoTranscripts) {
			t.Fatalf("Export: expected ErrNoTranscripts, got %v", err)
		}
		if !strings.Contains(err.Error(), "current files") {
			t.Fatalf("Export: expected current-files detail, got %v", err)
		}
	})

	t.Run("unknown output", func(t *testing.T) {
		t.Parallel()
		a, _ := exportFixture(t, map[string]string{"a.wav": "text"})
		_, err := a.Export(ctx, dataset.Request{Output: dataset.Output("parquet")})
		if !errors.Is(err, format.ErrUnknownFormat) {
			t.Fatalf("Export: expected ErrUnknownFormat, got %v", err)
		}
	})
}

func TestExportJSON(t *testing.T) {
	t.Parallel()

	a, _ := exportFixture(t, map[string]string{"a.wav": "Hello"})
	art, err := a.Export(context.Background(), dataset.Request{Output: dataset.OutputJSON})
	if err != nil {
		t.Fatalf("Export: unexpected error: %v", err)
	}
	if art.Name != "speech-dataset.json" || art.MIME != "application/json" {
		t.Fatalf("Export: unexpected artifact %q %q", art.Name, art.MIME)
	}

	var doc struct {
		Metadata struct {
			ExportDate string `json:"exportDate"`
			TotalFiles int    `json:"totalFiles"`
			Format     string `json:"format"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(art.Data, &doc); err != nil {
		t.Fatalf("Export: invalid JSON artifact: %v", err)
	}
	if doc.Metadata.TotalFiles != 1 || doc.Metadata.Format != "default" {
		t.Fatalf("Export: unexpected metadata %+v", doc.Metadata)
	}
	if doc.Metadata.ExportDate != "2026-03-14T15:09:26.535Z" {
		t.Fatalf("Export: unexpected exportDate %q", doc.Metadata.ExportDate)
	}
}

func TestExportFiltersToUploadedFiles(t *testing.T) {
	t.Parallel()

	lib := library.New()
	_ = lib.Add(library.AudioFile{Name: "keep.wav"})
	store := transcript.NewMemStore(nil)
	store.Set("keep.wav", "kept")
	store.Set("stray.wav", "dropped")
	a := dataset.NewAssembler(store, lib, settings.NewManager(nil))

	art, err := a.Export(context.Background(), dataset.Request{Output: dataset.OutputCSV})
	if err != nil {
		t.Fatalf("Export: unexpected error: %v", err)
	}
	body := string(art.Data)
	if !strings.Contains(body, "keep.wav,kept") {
		t.Fatalf("Export: expected kept row, got %q", body)
	}
	if strings.Contains(body, "stray.wav") {
		t.Fatalf("Export: stray transcript leaked into artifact: %q", body)
	}
}

func TestExportActiveFormat(t *testing.T) {
	t.Parallel()

	a, mgr := exportFixture(t, map[string]string{"clip.wav": "Hello, World!"})
	if err := mgr.SetFormat(context.Background(), format.LJSpeech); err != nil {
		t.Fatalf("SetFormat: unexpected error: %v", err)
	}

	art, err := a.Export(context.Background(), dataset.Request{Output: dataset.OutputText})
	if err != nil {
		t.Fatalf("Export: unexpected error: %v", err)
	}
	if want := "clip.wav|Hello, World!|hello world\n"; string(art.Data) != want {
		t.Fatalf("Export: expected %q, got %q", want, art.Data)
	}
	if art.Name != "speech-dataset.txt" || art.MIME != "text/plain" {
		t.Fatalf("Export: unexpected artifact %q %q", art.Name, art.MIME)
	}
}

func TestExportBundle(t *testing.T) {
	t.Parallel()

	a, _ := exportFixture(t, map[string]string{
		"a.wav": "First",
		"b.wav": "Second",
	})

	art, err := a.Export(context.Background(), dataset.Request{
		Output: dataset.OutputCSV,
		Bundle: true,
	})
	if err != nil {
		t.Fatalf("Export: unexpected error: %v", err)
	}
	if art.Name != "speech-dataset.zip" || art.MIME != "application/zip" {
		t.Fatalf("Export: unexpected artifact %q %q", art.Name, art.MIME)
	}

	zr, err := zip.NewReader(bytes.NewReader(art.Data), int64(len(art.Data)))
	if err != nil {
		t.Fatalf("Export: invalid zip: %v", err)
	}

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("zip open %q: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("zip read %q: %v", f.Name, err)
		}
		files[f.Name] = data
	}

	if _, ok := files["transcripts.csv"]; !ok {
		t.Fatalf("Export: transcripts.csv missing from zip, got %v", keys(files))
	}
	if string(files["audio/a.wav"]) != "a.wav" || string(files["audio/b.wav"]) != "b.wav" {
		t.Fatalf("Export: audio payloads wrong, got %v", keys(files))
	}
}

func TestExportBundleAudioRename(t *testing.T) {
	t.Parallel()

	a, _ := exportFixture(t, map[string]string{"clip.ogg": "Hello"})
	art, err := a.Export(context.Background(), dataset.Request{
		Output:      dataset.OutputText,
		Bundle:      true,
		AudioTarget: "wav",
	})
	if err != nil {
		t.Fatalf("Export: unexpected error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(art.Data), int64(len(art.Data)))
	if err != nil {
		t.Fatalf("Export: invalid zip: %v", err)
	}
	found := false
	for _, f := range zr.File {
		if f.Name == "audio/clip.wav" {
			found = true
		}
		if f.Name == "audio/clip.ogg" {
			t.Fatal("Export: expected renamed audio entry, found original name")
		}
	}
	if !found {
		t.Fatal("Export: renamed audio entry missing")
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
