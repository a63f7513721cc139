package ingest

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/lokutor-ai/voice-gateway/internal/orchaerr"
)

func mustOpen(t *testing.T) (*Recording, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec-1.pcm")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r, path
}

func loudChunk(n int) []byte {
	b := make([]byte, n)
	for i := 0; i < n; i += 2 {
		if i%4 == 0 {
			b[i+1] = 0x7f
		} else {
			b[i+1] = 0x80
		}
	}
	return b
}

func TestAppendAcceptsInOrderChunks(t *testing.T) {
	r, _ := mustOpen(t)
	for seq := 0; seq < 3; seq++ {
		if _, err := r.Append(seq, loudChunk(64)); err != nil {
			t.Fatalf("Append(%d): %v", seq, err)
		}
	}
	if got := r.TotalBytes(); got != 192 {
		t.Errorf("expected 192 bytes, got %d", got)
	}
}

func TestAppendAcksEveryN(t *testing.T) {
	r, _ := mustOpen(t)
	r.AckEveryN = 2
	var acks []bool
	for seq := 0; seq < 4; seq++ {
		ack, err := r.Append(seq, loudChunk(64))
		if err != nil {
			t.Fatalf("Append(%d): %v", seq, err)
		}
		acks = append(acks, ack)
	}
	want := []bool{false, true, false, true}
	for i, w := range want {
		if acks[i] != w {
			t.Errorf("ack[%d] = %v, want %v", i, acks[i], w)
		}
	}
}

func TestAppendRejectsUndersizedChunk(t *testing.T) {
	r, _ := mustOpen(t)
	_, err := r.Append(0, []byte{1, 2, 3})
	assertKind(t, err, orchaerr.KindFrameProtocolViolation)
}

func TestAppendToleratesSmallGap(t *testing.T) {
	r, _ := mustOpen(t)
	r.SeqGapTolerance = 2
	if _, err := r.Append(0, loudChunk(64)); err != nil {
		t.Fatalf("Append(0): %v", err)
	}
	if _, err := r.Append(2, loudChunk(64)); err != nil {
		t.Fatalf("Append(2) within tolerance: %v", err)
	}
}

func TestAppendRejectsExcessiveGap(t *testing.T) {
	r, _ := mustOpen(t)
	r.SeqGapTolerance = 1
	if _, err := r.Append(0, loudChunk(64)); err != nil {
		t.Fatalf("Append(0): %v", err)
	}
	_, err := r.Append(5, loudChunk(64))
	assertKind(t, err, orchaerr.KindSequenceGap)
}

func TestAppendRejectsDecreasingSeq(t *testing.T) {
	r, _ := mustOpen(t)
	if _, err := r.Append(5, loudChunk(64)); err != nil {
		t.Fatalf("Append(5): %v", err)
	}
	_, err := r.Append(1, loudChunk(64))
	assertKind(t, err, orchaerr.KindSequenceGap)
}

func TestAppendRejectsOverMaxRecordingBytes(t *testing.T) {
	r, _ := mustOpen(t)
	r.MaxRecordingBytes = 100
	if _, err := r.Append(0, loudChunk(64)); err != nil {
		t.Fatalf("Append(0): %v", err)
	}
	_, err := r.Append(1, loudChunk(64))
	assertKind(t, err, orchaerr.KindMaxRecordExceeded)
}

func TestAppendEnforcesCheckQuota(t *testing.T) {
	r, _ := mustOpen(t)
	r.CheckQuota = func(additional int64) error {
		return orchaerr.New(orchaerr.KindDiskQuotaExceeded, "over quota")
	}
	_, err := r.Append(0, loudChunk(64))
	assertKind(t, err, orchaerr.KindDiskQuotaExceeded)
}

func TestFinalizeReturnsWrittenBytes(t *testing.T) {
	r, path := mustOpen(t)
	chunk := loudChunk(64)
	if _, err := r.Append(0, chunk); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := r.Append(1, chunk); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rc, durationMS, err := r.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(data) != 128 {
		t.Errorf("expected 128 bytes on disk, got %d", len(data))
	}
	if durationMS <= 0 {
		t.Errorf("expected positive duration, got %d", durationMS)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected spill file to remain on disk: %v", err)
	}
}

func TestAbortRemovesSpillFile(t *testing.T) {
	r, path := mustOpen(t)
	if _, err := r.Append(0, loudChunk(64)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := r.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected spill file to be removed, stat err = %v", err)
	}
}

func assertKind(t *testing.T, err error, want orchaerr.Kind) {
	t.Helper()
	oerr, ok := err.(*orchaerr.Error)
	if !ok {
		t.Fatalf("expected *orchaerr.Error, got %T (%v)", err, err)
	}
	if oerr.Kind != want {
		t.Errorf("expected kind %s, got %s", want, oerr.Kind)
	}
}
