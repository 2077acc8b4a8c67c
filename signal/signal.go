// Package signal provides a minimal reactive cell: a readable/writable value
// with change subscriptions, an effect wrapper that re-runs when any cell it
// read during its last run changes, and batched updates so a group of writes
// notifies each dependent computation once.
package signal

import (
	"log"
	"sync"
)

// tracker serializes dependency tracking and batched flushes. Signals assume
// cooperative scheduling: effects and batches run one at a time.
var tracker struct {
	mu         sync.Mutex
	active     *Effect
	batchDepth int
	pending    []*Effect
	pendingSet map[*Effect]bool
}

// Signal is a writable/readable cell with change notification.
type Signal[T any] struct {
	mu      sync.Mutex
	value   T
	subs    map[int]func(T)
	effects map[*Effect]bool
	nextID  int
}

// New creates a signal holding the given initial value.
func New[T any](initial T) *Signal[T] {
	return &Signal[T]{
		value:   initial,
		subs:    make(map[int]func(T)),
		effects: make(map[*Effect]bool),
	}
}

// Get returns the current value. When called inside a running Effect, the
// effect is registered as a dependent and re-runs on the next Set.
func (s *Signal[T]) Get() T {
	tracker.mu.Lock()
	if eff := tracker.active; eff != nil {
		s.mu.Lock()
		s.effects[eff] = true
		s.mu.Unlock()
		eff.sources = append(eff.sources, s)
	}
	tracker.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Peek returns the current value without registering a dependency.
func (s *Signal[T]) Peek() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set stores a new value and notifies subscribers and dependent effects.
// Inside a Batch, effect re-runs are deferred and deduplicated until the
// batch ends.
func (s *Signal[T]) Set(value T) {
	s.mu.Lock()
	s.value = value
	subs := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	effects := make([]*Effect, 0, len(s.effects))
	for eff := range s.effects {
		effects = append(effects, eff)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(value)
	}
	for _, eff := range effects {
		eff.schedule()
	}
}

// Subscribe registers a handler called with each new value. The returned
// function removes the handler; it is safe to call more than once.
func (s *Signal[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Signal[T]) dropEffect(eff *Effect) {
	s.mu.Lock()
	delete(s.effects, eff)
	s.mu.Unlock()
}

// source is the untyped view a dependent effect keeps of a signal.
type source interface {
	dropEffect(eff *Effect)
}

// Effect is a reactive computation that re-runs whenever a signal it read
// during its previous run is written.
type Effect struct {
	fn      func()
	sources []source
	stopped bool
}

// NewEffect runs fn once immediately, tracking the signals it reads, and
// re-runs it on writes to any of them. Stop detaches the effect.
func NewEffect(fn func()) *Effect {
	eff := &Effect{fn: fn}
	eff.run()
	return eff
}

func (e *Effect) run() {
	tracker.mu.Lock()
	if e.stopped {
		tracker.mu.Unlock()
		return
	}
	// Re-tracking from scratch: drop stale dependencies from the last run.
	sources := e.sources
	e.sources = nil
	prev := tracker.active
	tracker.active = e
	tracker.mu.Unlock()

	for _, src := range sources {
		src.dropEffect(e)
	}

	defer func() {
		tracker.mu.Lock()
		tracker.active = prev
		tracker.mu.Unlock()
		if r := recover(); r != nil {
			log.Printf("ERROR: signal effect panicked: %v", r)
		}
	}()
	e.fn()
}

func (e *Effect) schedule() {
	tracker.mu.Lock()
	if e.stopped {
		tracker.mu.Unlock()
		return
	}
	if tracker.batchDepth > 0 {
		if tracker.pendingSet == nil {
			tracker.pendingSet = make(map[*Effect]bool)
		}
		if !tracker.pendingSet[e] {
			tracker.pendingSet[e] = true
			tracker.pending = append(tracker.pending, e)
		}
		tracker.mu.Unlock()
		return
	}
	tracker.mu.Unlock()
	e.run()
}

// Stop detaches the effect from all of its tracked signals.
func (e *Effect) Stop() {
	tracker.mu.Lock()
	e.stopped = true
	sources := e.sources
	e.sources = nil
	tracker.mu.Unlock()
	for _, src := range sources {
		src.dropEffect(e)
	}
}

// Batch runs fn with effect re-runs deferred; when the outermost batch ends,
// each dependent effect runs once regardless of how many of its signals were
// written.
func Batch(fn func()) {
	tracker.mu.Lock()
	tracker.batchDepth++
	tracker.mu.Unlock()

	defer func() {
		tracker.mu.Lock()
		tracker.batchDepth--
		var toRun []*Effect
		if tracker.batchDepth == 0 {
			toRun = tracker.pending
			tracker.pending = nil
			tracker.pendingSet = nil
		}
		tracker.mu.Unlock()
		for _, eff := range toRun {
			eff.run()
		}
	}()
	fn()
}
