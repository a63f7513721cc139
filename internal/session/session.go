// Package session implements the Session Store (spec §3/§4.9): the
// per-connection state a Session Controller goroutine owns exclusively,
// reached by other packages only through Store's single-owner accessor.
package session

import (
	"fmt"
	"time"

	"github.com/lokutor-ai/voice-gateway/internal/ingest"
	"github.com/lokutor-ai/voice-gateway/internal/orchaerr"
	"github.com/lokutor-ai/voice-gateway/pkg/media"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

func diskQuotaErr(used, additional, max int64) error {
	return orchaerr.New(orchaerr.KindDiskQuotaExceeded,
		fmt.Sprintf("session disk usage %d+%d exceeds quota %d", used, additional, max))
}

// Event is one entry in a session's fixed-capacity event log (spec §4.9:
// "a bounded ring of recent state transitions and errors, for /state").
type Event struct {
	At      time.Time
	Message string
}

// eventLog is a fixed-capacity ring buffer; once full, the oldest entry is
// overwritten rather than growing unbounded.
type eventLog struct {
	entries []Event
	cap     int
	next    int
	size    int
}

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = 64
	}
	return &eventLog{entries: make([]Event, capacity), cap: capacity}
}

func (l *eventLog) append(msg string) {
	l.entries[l.next] = Event{At: time.Now(), Message: msg}
	l.next = (l.next + 1) % l.cap
	if l.size < l.cap {
		l.size++
	}
}

// Snapshot returns the log's entries oldest-first.
func (l *eventLog) Snapshot() []Event {
	out := make([]Event, 0, l.size)
	if l.size < l.cap {
		out = append(out, l.entries[:l.size]...)
		return out
	}
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

// Session is one device connection's full state, spec §3's "Session"
// entity. Every field is mutated from within the owning Store's
// WithSession closure; Store.Create also returns the new *Session to its
// caller.
type Session struct {
	ID       string
	DeviceID string

	ServerState  string
	RetryCount   int
	DiskUseBytes int64
	MaxDiskBytes int64

	Recording     *ingest.Recording
	RecordingID   string
	ImageContext  *media.Artifact
	History       []orchestrator.Message
	MaxHistoryLen int

	// ImageUploading is spec §4.8's image_uploading attribute: true while
	// an image upload is in flight for this session. It is a concurrent
	// flag, not a State value, and never displaces ServerState.
	ImageUploading bool

	Channel interface{} // the bound transport handle (e.g. *protocol.Codec), opaque to this package

	graceCancel chan struct{}

	events *eventLog
}

func newSession(id, deviceID string, maxDiskBytes int64, maxHistory, eventLogCapacity int) *Session {
	return &Session{
		ID:            id,
		DeviceID:      deviceID,
		ServerState:   "connected",
		MaxDiskBytes:  maxDiskBytes,
		MaxHistoryLen: maxHistory,
		events:        newEventLog(eventLogCapacity),
	}
}

// LogEvent appends a transition or error message to the session's event log.
func (s *Session) LogEvent(format string, args ...interface{}) {
	s.events.append(fmt.Sprintf(format, args...))
}

// Events returns the session's event log, oldest entry first.
func (s *Session) Events() []Event {
	return s.events.Snapshot()
}

// AppendTurn appends one conversation turn, pruning from the front once
// MaxHistoryLen is exceeded (spec §3: "the Generator Adapter sees only the
// most recent N turns").
func (s *Session) AppendTurn(msg orchestrator.Message) {
	s.History = append(s.History, msg)
	if s.MaxHistoryLen > 0 && len(s.History) > s.MaxHistoryLen {
		s.History = s.History[len(s.History)-s.MaxHistoryLen:]
	}
}

// CheckQuota is handed to ingest.Recording as its CheckQuota hook, enforcing
// MAX_SESSION_DISK_MB (spec §4.9) across every recording a session makes.
func (s *Session) CheckQuota(additional int64) error {
	if s.MaxDiskBytes <= 0 {
		return nil
	}
	if s.DiskUseBytes+additional > s.MaxDiskBytes {
		return diskQuotaErr(s.DiskUseBytes, additional, s.MaxDiskBytes)
	}
	s.DiskUseBytes += additional
	return nil
}

// ReleaseDiskUsage returns bytes to the session's quota, e.g. after a
// finalized recording's spill file is deleted.
func (s *Session) ReleaseDiskUsage(n int64) {
	s.DiskUseBytes -= n
	if s.DiskUseBytes < 0 {
		s.DiskUseBytes = 0
	}
}

// BeginGrace arms a fresh grace-cancellation channel and returns it, so the
// Session Controller goroutine waiting out SESSION_GRACE (spec §4.8) can
// select on it instead of only the timer. Replaces any channel from a
// previous grace window.
func (s *Session) BeginGrace() <-chan struct{} {
	s.graceCancel = make(chan struct{})
	return s.graceCancel
}

// CancelGrace wakes a goroutine blocked on the channel BeginGrace returned,
// e.g. when the same session id reattaches before SESSION_GRACE expires.
// Safe to call when no grace window is in progress.
func (s *Session) CancelGrace() {
	if s.graceCancel != nil {
		close(s.graceCancel)
		s.graceCancel = nil
	}
}
