package signature

import (
	"context"
	"sort"
	"sync"
)

const (
	// DefaultCapPerSession is the per-session entry cap enforced after every
	// Save.
	DefaultCapPerSession = 100
	// DefaultTTLMillis is the lazy-sweep age threshold applied by Restore.
	DefaultTTLMillis = int64(60 * 60 * 1000)
)

type memoryEntry struct {
	Entry
	key Key
}

// MemoryStore is the in-memory map-of-maps implementation of Store: one
// mutex-guarded entry map per session.
type MemoryStore struct {
	mu  sync.Mutex
	cap int
	ttl int64
	// sessions maps sessionID -> entryKey -> entry, where entryKey is the
	// model+textHash portion of Key (sessionID is pulled out as the map's
	// outer dimension, matching the durable store's composite index).
	sessions map[string]map[string]*memoryEntry
}

// NewMemoryStore builds an in-memory Store. A capPerSession or ttlMillis of
// 0 falls back to the defaults (100 entries, 1 hour).
func NewMemoryStore(capPerSession int, ttlMillis int64) *MemoryStore {
	if capPerSession <= 0 {
		capPerSession = DefaultCapPerSession
	}
	if ttlMillis <= 0 {
		ttlMillis = DefaultTTLMillis
	}
	return &MemoryStore{cap: capPerSession, ttl: ttlMillis, sessions: make(map[string]map[string]*memoryEntry)}
}

func entryKey(model, textHash string) string {
	return model + "\x00" + textHash
}

func (s *MemoryStore) Save(_ context.Context, key Key, sig, family string, nowMillis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[key.SessionID]
	if !ok {
		session = make(map[string]*memoryEntry)
		s.sessions[key.SessionID] = session
	}

	ek := entryKey(key.Model, key.TextHash)
	session[ek] = &memoryEntry{
		Entry: Entry{Signature: sig, Family: family, Timestamp: nowMillis, SessionID: key.SessionID},
		key:   key,
	}

	s.evictOverCap(session)
	return nil
}

// evictOverCap removes the lowest-timestamp entries until size <= cap. Must
// be called with mu held.
func (s *MemoryStore) evictOverCap(session map[string]*memoryEntry) {
	if len(session) <= s.cap {
		return
	}
	ordered := make([]*memoryEntry, 0, len(session))
	for _, e := range session {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Timestamp < ordered[j].Timestamp })

	toEvict := len(session) - s.cap
	for i := 0; i < toEvict; i++ {
		delete(session, entryKey(ordered[i].key.Model, ordered[i].key.TextHash))
	}
}

func (s *MemoryStore) Restore(_ context.Context, key Key, nowMillis int64) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[key.SessionID]
	if !ok {
		return nil, false, nil
	}

	for k, e := range session {
		if nowMillis-e.Timestamp > s.ttl {
			delete(session, k)
		}
	}

	e, ok := session[entryKey(key.Model, key.TextHash)]
	if !ok {
		return nil, false, nil
	}
	entry := e.Entry
	return &entry, true, nil
}

func (s *MemoryStore) ClearSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
