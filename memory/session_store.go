package memory

import (
	"sort"
	"sync"
)

// SessionStore is the volatile tier: a bounded, ordered buffer per crew.
// Nothing is persisted; a restart starts empty.
//
// Eviction is FIFO on insertion order: once a buffer holds capacity entries,
// every append drops the oldest one under the same lock, so readers never see
// the buffer over capacity.
type SessionStore struct {
	capacity int

	mu      sync.RWMutex
	buffers map[string]*sessionBuffer
}

type sessionBuffer struct {
	mu      sync.RWMutex
	entries []Entry
}

// SessionStats summarizes one crew buffer.
type SessionStats struct {
	EntriesCount int `json:"entries_count"`
	MaxEntries   int `json:"max_entries"`
}

// NewSessionStore creates an empty store holding at most capacity entries per crew.
func NewSessionStore(capacity int) *SessionStore {
	if capacity <= 0 {
		capacity = DefaultSessionMaxEntries
	}
	return &SessionStore{
		capacity: capacity,
		buffers:  make(map[string]*sessionBuffer),
	}
}

// Capacity returns the per-crew entry limit.
func (s *SessionStore) Capacity() int {
	return s.capacity
}

// Append adds entry to crew's buffer, evicting from the front past capacity.
// It returns the number of evicted entries.
func (s *SessionStore) Append(crew string, entry Entry) int {
	buf := s.buffer(crew, true)

	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.entries = append(buf.entries, entry)
	evicted := len(buf.entries) - s.capacity
	if evicted <= 0 {
		return 0
	}
	// Copy so the evicted prefix is released rather than pinned by the backing array.
	kept := make([]Entry, s.capacity, s.capacity+1)
	copy(kept, buf.entries[evicted:])
	buf.entries = kept
	return evicted
}

// Entries returns a copy of crew's buffer, oldest first.
func (s *SessionStore) Entries(crew string) ([]Entry, error) {
	buf := s.buffer(crew, false)
	if buf == nil {
		return nil, ErrNotFound
	}
	buf.mu.RLock()
	defer buf.mu.RUnlock()
	if len(buf.entries) == 0 {
		return nil, ErrNotFound
	}
	out := make([]Entry, len(buf.entries))
	copy(out, buf.entries)
	return out, nil
}

// Stats summarizes every crew buffer.
func (s *SessionStore) Stats() map[string]SessionStats {
	s.mu.RLock()
	names := make([]string, 0, len(s.buffers))
	for name := range s.buffers {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	out := make(map[string]SessionStats, len(names))
	for _, name := range names {
		buf := s.buffer(name, false)
		if buf == nil {
			continue
		}
		buf.mu.RLock()
		out[name] = SessionStats{EntriesCount: len(buf.entries), MaxEntries: s.capacity}
		buf.mu.RUnlock()
	}
	return out
}

// Reset drops every buffer.
func (s *SessionStore) Reset() {
	s.mu.Lock()
	s.buffers = make(map[string]*sessionBuffer)
	s.mu.Unlock()
}

func (s *SessionStore) buffer(crew string, create bool) *sessionBuffer {
	s.mu.RLock()
	buf, ok := s.buffers[crew]
	s.mu.RUnlock()
	if ok || !create {
		return buf
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.buffers[crew]; ok {
		return buf
	}
	buf = &sessionBuffer{}
	s.buffers[crew] = buf
	return buf
}
