package ai_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/speechset/speechset/internal/ai"
	"github.com/speechset/speechset/internal/library"
	"github.com/speechset/speechset/internal/settings"
	"github.com/speechset/speechset/internal/transcript"
	"github.com/speechset/speechset/pkg/provider/textgen"
	textgenmock "github.com/speechset/speechset/pkg/provider/textgen/mock"
	"github.com/speechset/speechset/pkg/provider/transcribe"
	transcribemock "github.com/speechset/speechset/pkg/provider/transcribe/mock"
)

func newFixture(t *testing.T) (*ai.Service, *transcript.MemStore, *library.Library, *settings.Manager) {
	t.Helper()
	store := transcript.NewMemStore(nil)
	lib := library.New()
	st := settings.NewManager(nil)
	return ai.NewService(store, lib, st), store, lib, st
}

func addFile(t *testing.T, lib *library.Library, name string) {
	t.Helper()
	if err := lib.Add(library.AudioFile{Name: name, MIME: "audio/wav", Data: []byte{1}}); err != nil {
		t.Fatalf("Add(%q): %v", name, err)
	}
}

func TestService_Transcribe_AppliesWhenCurrent(t *testing.T) {
	t.Parallel()
	svc, store, lib, _ := newFixture(t)
	addFile(t, lib, "take_01.wav")
	if err := lib.SetCurrent("take_01.wav"); err != nil {
		t.Fatal(err)
	}

	tp := &transcribemock.Provider{Result: transcribe.Result{Text: "Hello there.", Model: "whisper-1"}}
	svc.SetTranscriber(tp)

	out, err := svc.Transcribe(context.Background(), "take_01.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Applied {
		t.Error("Applied = false, want true")
	}
	if got := store.Get("take_01.wav"); got != "Hello there." {
		t.Errorf("stored transcript = %q, want %q", got, "Hello there.")
	}
	clips := tp.Clips()
	if len(clips) != 1 || clips[0].FileName != "take_01.wav" {
		t.Errorf("provider received clips %v, want one for take_01.wav", clips)
	}
}

func TestService_Transcribe_DiscardsStaleResult(t *testing.T) {
	t.Parallel()
	svc, store, lib, _ := newFixture(t)
	addFile(t, lib, "take_01.wav")
	addFile(t, lib, "take_02.wav")
	if err := lib.SetCurrent("take_02.wav"); err != nil {
		t.Fatal(err)
	}

	svc.SetTranscriber(&transcribemock.Provider{Result: transcribe.Result{Text: "late reply"}})

	// take_01 is no longer the current selection, so the reply is dropped.
	out, err := svc.Transcribe(context.Background(), "take_01.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Applied {
		t.Error("Applied = true, want false for stale result")
	}
	if out.Text != "late reply" {
		t.Errorf("Text = %q, want the provider reply", out.Text)
	}
	if got := store.Get("take_01.wav"); got != "" {
		t.Errorf("transcript = %q, want untouched", got)
	}
}

func TestService_Transcribe_NotConfigured(t *testing.T) {
	t.Parallel()
	svc, _, lib, _ := newFixture(t)
	addFile(t, lib, "take_01.wav")

	_, err := svc.Transcribe(context.Background(), "take_01.wav")
	if !errors.Is(err, ai.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestService_Transcribe_UnknownFile(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newFixture(t)
	svc.SetTranscriber(&transcribemock.Provider{})

	if _, err := svc.Transcribe(context.Background(), "missing.wav"); err == nil {
		t.Fatal("expected error for file not in the library")
	}
}

func TestService_Normalize_AppliesOverrideWhenCurrent(t *testing.T) {
	t.Parallel()
	svc, store, lib, st := newFixture(t)
	addFile(t, lib, "take_01.wav")
	if err := lib.SetCurrent("take_01.wav"); err != nil {
		t.Fatal(err)
	}
	store.Set("take_01.wav", "Call me at 5.")

	gen := &textgenmock.Provider{Reply: "call me at five"}
	svc.SetGenerator(gen)

	out, err := svc.Normalize(context.Background(), "take_01.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Applied || out.Text != "call me at five" {
		t.Errorf("outcome = %+v, want applied %q", out, "call me at five")
	}
	if got, ok := st.NormalizedOverride("take_01.wav"); !ok || got != "call me at five" {
		t.Errorf("override = %q (%v), want %q", got, ok, "call me at five")
	}

	calls := gen.Calls()
	if len(calls) != 1 {
		t.Fatalf("generator calls = %d, want 1", len(calls))
	}
	if calls[0].UserPrompt != "Call me at 5." {
		t.Errorf("user prompt = %q, want the raw transcript", calls[0].UserPrompt)
	}
	if !strings.Contains(calls[0].SystemPrompt, "lowercase") {
		t.Errorf("system prompt %q does not describe normalization", calls[0].SystemPrompt)
	}
}

func TestService_Normalize_DiscardsStaleResult(t *testing.T) {
	t.Parallel()
	svc, store, lib, st := newFixture(t)
	addFile(t, lib, "take_01.wav")
	addFile(t, lib, "take_02.wav")
	if err := lib.SetCurrent("take_02.wav"); err != nil {
		t.Fatal(err)
	}
	store.Set("take_01.wav", "Number 7")

	svc.SetGenerator(&textgenmock.Provider{Reply: "number seven"})

	out, err := svc.Normalize(context.Background(), "take_01.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Applied {
		t.Error("Applied = true, want false for stale result")
	}
	if _, ok := st.NormalizedOverride("take_01.wav"); ok {
		t.Error("override should not be recorded for a stale result")
	}
}

func TestService_Normalize_EmptyTranscript(t *testing.T) {
	t.Parallel()
	svc, store, lib, _ := newFixture(t)
	addFile(t, lib, "take_01.wav")
	store.Set("take_01.wav", "   ")
	svc.SetGenerator(&textgenmock.Provider{Reply: "x"})

	_, err := svc.Normalize(context.Background(), "take_01.wav")
	if !errors.Is(err, ai.ErrNoTranscript) {
		t.Fatalf("err = %v, want ErrNoTranscript", err)
	}
}

func TestService_Normalize_ProviderError(t *testing.T) {
	t.Parallel()
	svc, store, lib, _ := newFixture(t)
	addFile(t, lib, "take_01.wav")
	store.Set("take_01.wav", "text")

	svc.SetGenerator(&textgenmock.Provider{
		Err: errors.New("backend exploded"),
	})

	if _, err := svc.Normalize(context.Background(), "take_01.wav"); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestService_TestConnection(t *testing.T) {
	t.Parallel()

	t.Run("nothing configured", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newFixture(t)
		if err := svc.TestConnection(context.Background()); !errors.Is(err, ai.ErrNotConfigured) {
			t.Fatalf("err = %v, want ErrNotConfigured", err)
		}
	})

	t.Run("all healthy", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newFixture(t)
		svc.SetTranscriber(&transcribemock.Provider{})
		svc.SetGenerator(&textgenmock.Provider{})
		if err := svc.TestConnection(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("one failing provider surfaces", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newFixture(t)
		svc.SetTranscriber(&transcribemock.Provider{TestErr: textgen.ErrUnavailable})
		svc.SetGenerator(&textgenmock.Provider{})
		err := svc.TestConnection(context.Background())
		if err == nil || !strings.Contains(err.Error(), "transcription") {
			t.Fatalf("err = %v, want transcription failure", err)
		}
	})
}
