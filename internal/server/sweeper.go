package server

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lokutor-ai/voice-gateway/internal/download"
	"github.com/lokutor-ai/voice-gateway/internal/session"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

// defaultSweepInterval and defaultOrphanAge are the sweeper's defaults
// absent an explicit interval/age from the caller.
const (
	defaultSweepInterval = 5 * time.Minute
	defaultOrphanAge     = 30 * time.Minute
)

// Sweeper periodically clears the temp directory of files no live
// session owns (spec §4.9: "a periodic sweeper removes orphaned files in
// the temp directory older than a threshold"), plus any Download Store
// handle that has expired unconsumed.
type Sweeper struct {
	tempDir   string
	interval  time.Duration
	orphanAge time.Duration
	sessions  *session.Store
	downloads *download.Store
	logger    orchestrator.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewSweeper builds a Sweeper over tempDir. orphanAge <= 0 uses the default.
func NewSweeper(tempDir string, orphanAge time.Duration, sessions *session.Store, downloads *download.Store, logger orchestrator.Logger) *Sweeper {
	if orphanAge <= 0 {
		orphanAge = defaultOrphanAge
	}
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Sweeper{
		tempDir:   tempDir,
		interval:  defaultSweepInterval,
		orphanAge: orphanAge,
		sessions:  sessions,
		downloads: downloads,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins the periodic sweep in a background goroutine, running
// until ctx is canceled or Stop is called.
func (sw *Sweeper) Start(ctx context.Context) {
	go sw.loop(ctx)
}

// Stop halts the sweep loop. Safe to call multiple times.
func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() { close(sw.done) })
}

func (sw *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.done:
			return
		case <-ticker.C:
			sw.sweepOnce()
		}
	}
}

// sweepOnce removes expired Download Handles' files, then walks tempDir
// for entries older than orphanAge that do not belong to a live
// session's subdirectory (spec §5: "the sweeper operates on timestamps,
// never on a subdirectory currently held by a live session").
func (sw *Sweeper) sweepOnce() {
	for _, path := range sw.downloads.Sweep() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			sw.logger.Warn("sweeper failed to remove expired download artifact", "path", path, "error", err)
		}
	}

	entries, err := os.ReadDir(sw.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			sw.logger.Warn("sweeper failed to list temp directory", "dir", sw.tempDir, "error", err)
		}
		return
	}

	live := make(map[string]bool)
	for _, id := range sw.sessions.IDs() {
		live[id] = true
	}

	cutoff := time.Now().Add(-sw.orphanAge)
	for _, entry := range entries {
		if live[entry.Name()] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(sw.tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			sw.logger.Warn("sweeper failed to remove orphaned path", "path", path, "error", err)
		}
	}
}
