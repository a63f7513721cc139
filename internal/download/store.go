// Package download implements the Download Store (spec §4.7/§6.2): the
// single-use, time-bound handle table backing the playback-fallback
// GET /download/:token route.
package download

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle is one downloadable artifact: a file path on disk plus the
// content type the HTTP handler should serve it with.
type Handle struct {
	Token       string
	Path        string
	ContentType string
	ExpiresAt   time.Time
	consumed    bool
}

// Store tracks outstanding handles. A handle is retrievable exactly once
// or until it expires, whichever comes first (spec §4.7: "a fallback
// download link is single-use and time-bound").
type Store struct {
	mu      sync.Mutex
	handles map[string]*Handle
	ttl     time.Duration
}

// NewStore builds a Store whose handles expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{handles: make(map[string]*Handle), ttl: ttl}
}

// Issue allocates a new token for path, servable as contentType.
func (s *Store) Issue(path, contentType string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &Handle{
		Token:       uuid.NewString(),
		Path:        path,
		ContentType: contentType,
		ExpiresAt:   time.Now().Add(s.ttl),
	}
	s.handles[h.Token] = h
	return h
}

// Consume retrieves the handle for token if it exists, has not expired,
// and has not already been consumed, marking it consumed and evicting it
// from the table in the same step.
func (s *Store) Consume(token string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[token]
	if !ok {
		return nil, fmt.Errorf("download: unknown token")
	}
	delete(s.handles, token)

	if h.consumed {
		return nil, fmt.Errorf("download: token already consumed")
	}
	if time.Now().After(h.ExpiresAt) {
		return nil, fmt.Errorf("download: token expired")
	}
	h.consumed = true
	return h, nil
}

// Sweep removes expired, unconsumed handles and returns their paths so
// the caller can delete the backing files (spec §4.9 orphan sweep).
func (s *Store) Sweep() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var expired []string
	for token, h := range s.handles {
		if now.After(h.ExpiresAt) {
			expired = append(expired, h.Path)
			delete(s.handles, token)
		}
	}
	return expired
}
