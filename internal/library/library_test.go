package library_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/speechset/speechset/internal/library"
)

func TestAddAndGet(t *testing.T) {
	t.Parallel()

	l := library.New()
	if err := l.Add(library.AudioFile{Name: "a.wav", MIME: "audio/wav", Data: []byte{1, 2}}); err != nil {
		t.Fatalf("Add: unexpected error: %v", err)
	}

	got, err := l.Get("a.wav")
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if got.MIME != "audio/wav" || len(got.Data) != 2 {
		t.Fatalf("Get: unexpected file %+v", got)
	}

	if _, err := l.Get("missing.wav"); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}

	if err := l.Add(library.AudioFile{}); err == nil {
		t.Fatal("Add: expected error for empty name")
	}
}

func TestNamesKeepUploadOrder(t *testing.T) {
	t.Parallel()

	l := library.New()
	for _, n := range []string{"c.wav", "a.wav", "b.wav"} {
		if err := l.Add(library.AudioFile{Name: n}); err != nil {
			t.Fatalf("Add: unexpected error: %v", err)
		}
	}

	// Replacing keeps the original position.
	if err := l.Add(library.AudioFile{Name: "a.wav", Data: []byte{9}}); err != nil {
		t.Fatalf("Add replace: unexpected error: %v", err)
	}

	names := l.Names()
	want := []string{"c.wav", "a.wav", "b.wav"}
	if len(names) != 3 {
		t.Fatalf("Names: expected 3, got %d", len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names: expected %v, got %v", want, names)
		}
	}
}

func TestCurrentSelection(t *testing.T) {
	t.Parallel()

	l := library.New()
	_ = l.Add(library.AudioFile{Name: "a.wav"})

	if err := l.SetCurrent("a.wav"); err != nil {
		t.Fatalf("SetCurrent: unexpected error: %v", err)
	}
	if l.Current() != "a.wav" {
		t.Fatalf("Current: expected a.wav, got %q", l.Current())
	}

	if err := l.SetCurrent("ghost.wav"); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("SetCurrent: expected ErrNotFound, got %v", err)
	}

	if err := l.SetCurrent(""); err != nil {
		t.Fatalf("SetCurrent clear: unexpected error: %v", err)
	}
	if l.Current() != "" {
		t.Fatalf("Current: expected empty selection, got %q", l.Current())
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	l := library.New()
	_ = l.Add(library.AudioFile{Name: "a.wav"})
	_ = l.SetCurrent("a.wav")

	if err := l.Remove("a.wav"); err != nil {
		t.Fatalf("Remove: unexpected error: %v", err)
	}
	if l.Has("a.wav") || l.Len() != 0 {
		t.Fatal("Remove: file still present")
	}
	if l.Current() != "" {
		t.Fatalf("Remove: expected selection cleared, got %q", l.Current())
	}

	if err := l.Remove("a.wav"); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("Remove: expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	const goroutines = 50
	l := library.New()

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_ = l.Add(library.AudioFile{Name: "shared.wav"})
			_, _ = l.Get("shared.wav")
			_ = l.Names()
			_ = l.SetCurrent("shared.wav")
			_ = l.Current()
		}()
	}
	wg.Wait()
}
