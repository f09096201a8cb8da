package transcript_test

import (
	"context"
	"sync"
	"testing"

	persistmock "github.com/speechset/speechset/internal/persist/mock"
	"github.com/speechset/speechset/internal/transcript"
)

func TestGetDefaultsToEmpty(t *testing.T) {
	t.Parallel()

	s := transcript.NewMemStore(nil)
	if got := s.Get("unknown.wav"); got != "" {
		t.Fatalf("Get: expected empty string for unknown key, got %q", got)
	}
	if s.Has("unknown.wav") {
		t.Fatal("Has: expected false for unknown key")
	}
}

func TestSetAndGet(t *testing.T) {
	t.Parallel()

	s := transcript.NewMemStore(nil)
	s.Set("a.wav", "hello")
	if got := s.Get("a.wav"); got != "hello" {
		t.Fatalf("Get: expected %q, got %q", "hello", got)
	}

	// Overwrite wins.
	s.Set("a.wav", "updated")
	if got := s.Get("a.wav"); got != "updated" {
		t.Fatalf("Get: expected %q, got %q", "updated", got)
	}
	if s.Len() != 1 {
		t.Fatalf("Len: expected 1, got %d", s.Len())
	}
}

func TestAllReturnsCopy(t *testing.T) {
	t.Parallel()

	s := transcript.NewMemStore(nil)
	s.Set("a.wav", "hello")

	all := s.All()
	all["a.wav"] = "mutated"
	if got := s.Get("a.wav"); got != "hello" {
		t.Fatalf("All: mutation leaked into store, got %q", got)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	s := transcript.NewMemStore(nil)
	s.Set("a.wav", "one")
	s.Set("b.wav", "two")
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Clear: expected empty store, got %d entries", s.Len())
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	t.Parallel()

	s := transcript.NewMemStore(nil)
	var events []transcript.Event
	s.Subscribe(func(ev transcript.Event) { events = append(events, ev) })

	s.Set("a.wav", "hello")
	s.Clear()

	if len(events) != 2 {
		t.Fatalf("Subscribe: expected 2 events, got %d", len(events))
	}
	if events[0].FileName != "a.wav" || events[0].Text != "hello" || events[0].Reset {
		t.Fatalf("Subscribe: bad set event %+v", events[0])
	}
	if !events[1].Reset {
		t.Fatalf("Subscribe: expected reset event, got %+v", events[1])
	}
}

func TestLoadAndFlush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := persistmock.NewKV()

	first := transcript.NewMemStore(kv)
	first.Set("a.wav", "hello")
	first.Set("b.wav", "world")
	if err := first.Flush(ctx); err != nil {
		t.Fatalf("Flush: unexpected error: %v", err)
	}

	second := transcript.NewMemStore(kv)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if second.Len() != 2 || second.Get("a.wav") != "hello" {
		t.Fatalf("Load: expected persisted entries back, got %v", second.All())
	}
}

func TestLoadMissingKeyIsNotAnError(t *testing.T) {
	t.Parallel()

	s := transcript.NewMemStore(persistmock.NewKV())
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: unexpected error for missing key: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Load: expected empty store, got %d entries", s.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	const goroutines = 50
	s := transcript.NewMemStore(nil)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			s.Set("shared.wav", "text")
			_ = s.Get("shared.wav")
			_ = s.All()
			_ = s.Len()
		}()
	}
	wg.Wait()
}
