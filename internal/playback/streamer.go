// Package playback implements the Playback Streamer (spec §4.7): the
// tts_ready/ready_for_playback handshake, chunked binary delivery, and the
// download-fallback path taken when the client never signals readiness.
package playback

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lokutor-ai/voice-gateway/internal/download"
	"github.com/lokutor-ai/voice-gateway/internal/protocol"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

// Streamer drives one reply's playback handshake over a single channel's
// Codec.
type Streamer struct {
	Codec          *protocol.Codec
	Downloads      *download.Store
	ChunkSizeBytes int
	ReadyTimeout   time.Duration
	Logger         orchestrator.Logger
}

// New builds a Streamer with sane fallbacks for a nil logger or a
// non-positive chunk size.
func New(codec *protocol.Codec, downloads *download.Store, chunkSizeBytes int, readyTimeout time.Duration, logger orchestrator.Logger) *Streamer {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	if chunkSizeBytes <= 0 {
		chunkSizeBytes = 16000
	}
	return &Streamer{
		Codec:          codec,
		Downloads:      downloads,
		ChunkSizeBytes: chunkSizeBytes,
		ReadyTimeout:   readyTimeout,
		Logger:         logger,
	}
}

// Stream announces the artifact at path via tts_ready, then waits up to
// ReadyTimeout for a signal on readyCh before streaming chunks. A timeout
// falls back to a Download Handle and offer_download instead of blocking
// forever on a client that never acknowledges readiness (spec §4.7).
// streamed reports whether chunks were actually sent (true) or the call
// degraded to the download fallback (false) — the caller needs this to
// know whether to still expect a playback_complete event.
//
// Stream is the convenience, single-call form for callers that can afford
// to block on the handshake. internal/controller drives the same three
// steps (Announce, StreamChunks, FallbackToDownload) individually instead,
// since its pipeline task must keep servicing other inbound frames — most
// importantly ready_for_playback itself — while the timer is running.
func (s *Streamer) Stream(ctx context.Context, path string, durationMS int64, sampleRate int, format string, readyCh <-chan struct{}) (streamed bool, err error) {
	if err := s.Announce(ctx, durationMS, sampleRate, format); err != nil {
		return false, err
	}

	timer := time.NewTimer(s.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-readyCh:
		return true, s.StreamChunks(ctx, path)
	case <-timer.C:
		return false, s.FallbackToDownload(ctx, path, format)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Announce writes the tts_ready frame that starts the ready-handshake
// window.
func (s *Streamer) Announce(ctx context.Context, durationMS int64, sampleRate int, format string) error {
	if err := s.Codec.WriteJSON(ctx, protocol.NewTTSReady(durationMS, sampleRate, format)); err != nil {
		return fmt.Errorf("write tts_ready: %w", err)
	}
	return nil
}

// StreamChunks sends the artifact at path as tts_chunk_meta/binary pairs
// followed by tts_done. Callers invoke this once ready_for_playback has
// been observed.
func (s *Streamer) StreamChunks(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open reply artifact: %w", err)
	}
	defer f.Close()

	buf := make([]byte, s.ChunkSizeBytes)
	seq := 0
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if werr := s.Codec.WriteJSON(ctx, protocol.NewTTSChunkMeta(seq, n)); werr != nil {
				return fmt.Errorf("write tts_chunk_meta: %w", werr)
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if werr := s.Codec.WriteBinary(ctx, chunk); werr != nil {
				return fmt.Errorf("write tts chunk: %w", werr)
			}
			seq++
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read reply artifact: %w", rerr)
		}
	}

	if err := s.Codec.WriteJSON(ctx, protocol.NewTTSDone()); err != nil {
		return fmt.Errorf("write tts_done: %w", err)
	}
	return nil
}

// FallbackToDownload allocates a Download Handle for path and notifies the
// client via offer_download. Callers invoke this once the ready-timer
// expires without a ready_for_playback.
func (s *Streamer) FallbackToDownload(ctx context.Context, path, format string) error {
	contentType := "audio/l16"
	if format == "wav" {
		contentType = "audio/wav"
	}
	h := s.Downloads.Issue(path, contentType)
	s.Logger.Warn("playback ready timeout, offering download fallback", "path", path, "token", h.Token)

	url := "/download/" + h.Token
	if err := s.Codec.WriteJSON(ctx, protocol.NewOfferDownload(url)); err != nil {
		return fmt.Errorf("write offer_download: %w", err)
	}
	return nil
}
