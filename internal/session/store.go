package session

import (
	"sync"

	"github.com/lokutor-ai/voice-gateway/internal/orchaerr"
)

// Store holds every live Session keyed by session id. Access goes
// through WithSession, which holds the store's lock while its closure
// runs, so only one goroutine at a time touches a given Session's fields.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	maxDiskBytes     int64
	maxHistoryLen    int
	eventLogCapacity int
}

// NewStore builds an empty Store with the per-session limits every new
// Session is created with.
func NewStore(maxDiskBytes int64, maxHistoryLen, eventLogCapacity int) *Store {
	return &Store{
		sessions:         make(map[string]*Session),
		maxDiskBytes:     maxDiskBytes,
		maxHistoryLen:    maxHistoryLen,
		eventLogCapacity: eventLogCapacity,
	}
}

// Create registers a new Session for id, replacing any existing one.
// Callers resolve session-conflict admission control (spec §4.8) before
// calling this — Create itself does not check for a pre-existing entry.
func (st *Store) Create(id, deviceID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := newSession(id, deviceID, st.maxDiskBytes, st.maxHistoryLen, st.eventLogCapacity)
	st.sessions[id] = s
	return s
}

// Exists reports whether a session is currently tracked.
func (st *Store) Exists(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.sessions[id]
	return ok
}

// WithSession runs fn with exclusive access to the named session. It
// returns an error if the session is not found, so a caller never
// receives a raw *Session outside this closure's scope.
func (st *Store) WithSession(id string, fn func(*Session)) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return orchaerr.New(orchaerr.KindSessionConflict, "no such session: "+id)
	}
	fn(s)
	return nil
}

// Remove deletes a session from the store, e.g. after SESSION_GRACE
// expires following a disconnect (spec §4.9).
func (st *Store) Remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// IDs returns a snapshot of every tracked session id, used by the
// orphan-file sweeper (spec §4.9) to distinguish live session
// directories from abandoned ones.
func (st *Store) IDs() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	return ids
}
