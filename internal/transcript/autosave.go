package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSaveDelay is the debounce window between the last store change and
// the autosave write.
const DefaultSaveDelay = 2 * time.Second

// flushTimeout bounds a single background autosave write.
const flushTimeout = 10 * time.Second

// Clock abstracts timer creation so the debounce behaviour can be driven
// deterministically in tests.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is the stoppable handle returned by [Clock.AfterFunc].
type Timer interface {
	Stop() bool
}

// realClock is the production [Clock] backed by the time package.
type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Saver persists a [MemStore] after changes, debounced: each change cancels
// the pending write and schedules a new one, so a burst of edits causes a
// single write after the configured delay.
type Saver struct {
	store *MemStore
	delay time.Duration
	clock Clock

	mu    sync.Mutex
	timer Timer
}

// SaverOption is a functional option for configuring a [Saver].
type SaverOption func(*Saver)

// WithDelay sets the debounce window. Defaults to [DefaultSaveDelay].
func WithDelay(d time.Duration) SaverOption {
	return func(s *Saver) { s.delay = d }
}

// WithClock sets the timer source. Defaults to the time package.
func WithClock(c Clock) SaverOption {
	return func(s *Saver) { s.clock = c }
}

// NewSaver creates a Saver and subscribes it to the store's change events.
func NewSaver(store *MemStore, opts ...SaverOption) *Saver {
	s := &Saver{
		store: store,
		delay: DefaultSaveDelay,
		clock: realClock{},
	}
	for _, o := range opts {
		o(s)
	}
	store.Subscribe(func(Event) { s.schedule() })
	return s
}

// schedule arms the debounce timer, cancelling any pending write.
func (s *Saver) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.delay, s.fire)
}

// fire runs the debounced write in the timer goroutine.
func (s *Saver) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.store.Flush(ctx); err != nil {
		slog.Error("transcript autosave failed", "error", err)
	}
}

// Flush cancels any pending debounced write and persists immediately.
// Called on focus loss and during shutdown.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.store.Flush(ctx)
}

// Stop cancels any pending write without persisting.
func (s *Saver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
