// Package ingest implements the Audio Buffer (spec §4.2): the in-flight
// Recording for one utterance, absorbing frames at the network's pace
// and yielding a complete, ordered PCM byte stream on finalize.
package ingest

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/lokutor-ai/voice-gateway/internal/orchaerr"
	"github.com/lokutor-ai/voice-gateway/pkg/audio"
)

// minChunkBytes and the absence of a declared max are spec §4.2's
// append() validation: "len(bytes) ≤ configured max chunk bytes and
// bytes ≥ 32".
const minChunkBytes = 32

// Recording owns the spill file for one utterance plus the bookkeeping
// spec §4.2 and §3 describe: expected sequence number, byte totals,
// first/last frame timestamps. There is no in-memory short-term queue
// distinct from the spill file — every accepted chunk is written
// straight through, since the Recognizer Adapter always consumes the
// finalized file rather than the live buffer.
type Recording struct {
	mu   sync.Mutex
	path string
	file *os.File

	expectedSeq    int
	seqInitialized bool
	totalBytes     int64
	chunkCount     int
	firstFrameAt   time.Time
	lastFrameAt    time.Time

	// AckEveryN controls how often Append reports an ack is due (spec
	// §4.2: "acknowledge every N-th frame").
	AckEveryN int
	// SeqGapTolerance is the maximum forward gap Append forward-fills
	// rather than rejecting (spec §4.2/§8).
	SeqGapTolerance int
	// MaxChunkBytes rejects an oversized single chunk; 0 disables the
	// check.
	MaxChunkBytes int
	// MaxRecordingBytes is the absolute per-utterance ceiling (spec
	// §4.2 "max_recording_exceeded", default ~50 MB); 0 disables it.
	MaxRecordingBytes int64
	// CheckQuota is invoked with each accepted chunk's size before it
	// is written, letting the Session Store enforce
	// MAX_SESSION_DISK_MB (spec §4.9) across all of a session's
	// recordings. A nil hook means no session-level quota is checked.
	CheckQuota func(additionalBytes int64) error
}

// Open creates the spill file at path and returns an empty Recording
// ready to accept frames.
func Open(path string) (*Recording, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}
	return &Recording{path: path, file: f, AckEveryN: 4, SeqGapTolerance: 10}, nil
}

// Append validates and writes one chunk, returning whether an ack is
// due for this frame.
func (r *Recording) Append(seq int, data []byte) (ackDue bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(data) < minChunkBytes {
		return false, orchaerr.New(orchaerr.KindFrameProtocolViolation, "chunk shorter than minimum 32 bytes")
	}
	if r.MaxChunkBytes > 0 && len(data) > r.MaxChunkBytes {
		return false, orchaerr.New(orchaerr.KindFrameProtocolViolation, "chunk exceeds configured max chunk size")
	}

	now := time.Now()
	if r.firstFrameAt.IsZero() {
		r.firstFrameAt = now
	}
	r.lastFrameAt = now

	if !r.seqInitialized {
		r.expectedSeq = seq
		r.seqInitialized = true
	}
	if seq < r.expectedSeq {
		return false, orchaerr.New(orchaerr.KindSequenceGap, "sequence number decreased")
	}
	if seq-r.expectedSeq > r.SeqGapTolerance {
		return false, orchaerr.New(orchaerr.KindSequenceGap, "sequence gap exceeds tolerance")
	}

	if r.MaxRecordingBytes > 0 && r.totalBytes+int64(len(data)) > r.MaxRecordingBytes {
		return false, orchaerr.New(orchaerr.KindMaxRecordExceeded, "recording exceeds maximum size")
	}
	if r.CheckQuota != nil {
		if qerr := r.CheckQuota(int64(len(data))); qerr != nil {
			return false, qerr
		}
	}

	n, werr := r.file.Write(data)
	if werr != nil {
		return false, fmt.Errorf("write spill file: %w", werr)
	}

	r.totalBytes += int64(n)
	r.expectedSeq = seq + 1
	r.chunkCount++

	ackDue = r.AckEveryN > 0 && r.chunkCount%r.AckEveryN == 0
	return ackDue, nil
}

// NextExpectedSeq returns the most recently accepted sequence number's
// successor, i.e. the next sequence Append expects.
func (r *Recording) NextExpectedSeq() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expectedSeq
}

// TotalBytes reports bytes written so far.
func (r *Recording) TotalBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalBytes
}

// Finalize flushes and closes the spill file for writing, then reopens
// it for reading, returning a handle plus the utterance's duration
// computed from byte count at the canonical sample rate.
func (r *Recording) Finalize() (io.ReadCloser, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.file.Sync(); err != nil {
		return nil, 0, fmt.Errorf("sync spill file: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return nil, 0, fmt.Errorf("close spill file: %w", err)
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, 0, fmt.Errorf("reopen spill file: %w", err)
	}

	durationMS := audio.DurationMillis(int(r.totalBytes), audio.CanonicalSampleRate)
	return f, durationMS, nil
}

// Abort closes and deletes the spill file, releasing all resources.
func (r *Recording) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.file.Close()
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove spill file: %w", err)
	}
	return nil
}
