package state

import (
	"sort"
	"sync"
)

// Listener is called with the new snapshot after every change.
type Listener func(Snapshot)

// Store is the dashboard's only copy of the device state. Writes from the
// initial fetch, push events and command results all land here; the last
// write wins. Once closed, every write is dropped.
type Store struct {
	listeners map[string]Listener
	snap      Snapshot
	mu        sync.Mutex
	resyncs   uint64
	closed    bool
}

func NewStore() *Store {
	return &Store{
		snap:      Defaults(),
		listeners: make(map[string]Listener),
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Store) SetMotion(m Motion) bool {
	return s.update(func(snap *Snapshot) { snap.Motion = m })
}

func (s *Store) SetLed1(l LedBinary) bool {
	return s.update(func(snap *Snapshot) { snap.Led1 = l })
}

func (s *Store) SetLed2(l LedLevel) bool {
	return s.update(func(snap *Snapshot) { snap.Led2 = l })
}

// Replace overwrites all three values. Every Replace is a resync: writes
// started before it through UpdateSince are dropped.
func (s *Store) Replace(snap Snapshot) bool {
	return s.commit(func(cur *Snapshot) bool {
		*cur = snap
		s.resyncs++
		return true
	})
}

// Resyncs is the number of Replace calls so far.
func (s *Store) Resyncs() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resyncs
}

// UpdateSince is Update for a write that was decided when Resyncs returned
// resyncs. It is dropped if a Replace has landed since.
func (s *Store) UpdateSince(resyncs uint64, apply func(*Snapshot)) bool {
	return s.commit(func(cur *Snapshot) bool {
		if s.resyncs != resyncs {
			return false
		}
		apply(cur)
		return true
	})
}

// Update applies several field changes as one write, with a single
// notification.
func (s *Store) Update(apply func(*Snapshot)) bool {
	return s.update(apply)
}

func (s *Store) update(apply func(*Snapshot)) bool {
	return s.commit(func(cur *Snapshot) bool {
		apply(cur)
		return true
	})
}

// commit runs apply under the lock and reports whether the write was
// applied. A closed store applies nothing. Listeners are only told about
// real changes.
func (s *Store) commit(apply func(*Snapshot) bool) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	before := s.snap
	if !apply(&s.snap) {
		s.mu.Unlock()
		return false
	}
	after := s.snap
	var notify []Listener
	if after != before {
		notify = s.sortedListeners()
	}
	s.mu.Unlock()

	for _, l := range notify {
		l(after)
	}
	return true
}

func (s *Store) sortedListeners() []Listener {
	names := make([]string, 0, len(s.listeners))
	for name := range s.listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Listener, 0, len(names))
	for _, name := range names {
		out = append(out, s.listeners[name])
	}
	return out
}

// Subscribe registers l under name, replacing any listener with that name.
// The returned func removes it.
func (s *Store) Subscribe(name string, l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[name] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, name)
	}
}

// Close stops the store from accepting writes and drops all listeners.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = make(map[string]Listener)
}

func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
