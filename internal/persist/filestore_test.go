package persist_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/speechset/speechset/internal/persist"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := persist.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: unexpected error: %v", err)
	}

	if err := s.Put(ctx, "transcripts", []byte(`{"a.wav":"hello"}`)); err != nil {
		t.Fatalf("Put: unexpected error: %v", err)
	}
	got, err := s.Get(ctx, "transcripts")
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if string(got) != `{"a.wav":"hello"}` {
		t.Fatalf("Get: expected stored value back, got %q", got)
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	t.Parallel()

	s, err := persist.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: unexpected error: %v", err)
	}
	_, err = s.Get(context.Background(), "nope")
	if !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := persist.NewFileStore(t.TempDir())

	if err := s.Put(ctx, "k", []byte("first")); err != nil {
		t.Fatalf("Put: unexpected error: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("second")); err != nil {
		t.Fatalf("Put: unexpected error: %v", err)
	}
	got, _ := s.Get(ctx, "k")
	if string(got) != "second" {
		t.Fatalf("Get: expected %q, got %q", "second", got)
	}
}

func TestFileStoreDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := persist.NewFileStore(t.TempDir())

	if err := s.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put: unexpected error: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: unexpected error: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("Get after Delete: expected ErrNotFound, got %v", err)
	}

	// Deleting an absent key is not an error.
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete absent: unexpected error: %v", err)
	}
}

func TestFileStoreKeySanitisation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := persist.NewFileStore(t.TempDir())

	if err := s.Put(ctx, "../escape/attempt", []byte("v")); err != nil {
		t.Fatalf("Put: unexpected error: %v", err)
	}
	got, err := s.Get(ctx, "../escape/attempt")
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("Get: expected %q, got %q", "v", got)
	}
}

func TestFileStoreConcurrentAccess(t *testing.T) {
	t.Parallel()

	const goroutines = 20
	ctx := context.Background()
	s, _ := persist.NewFileStore(t.TempDir())

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_ = s.Put(ctx, "shared", []byte("value"))
			_, _ = s.Get(ctx, "shared")
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "shared")
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if string(got) != "value" {
		t.Fatalf("Get: expected %q, got %q", "value", got)
	}
}
