package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/lokutor-ai/voice-gateway/internal/download"
	"github.com/lokutor-ai/voice-gateway/internal/ingest"
	"github.com/lokutor-ai/voice-gateway/internal/orchaerr"
	"github.com/lokutor-ai/voice-gateway/internal/playback"
	"github.com/lokutor-ai/voice-gateway/internal/protocol"
	"github.com/lokutor-ai/voice-gateway/internal/session"
	"github.com/lokutor-ai/voice-gateway/pkg/audio"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

// fallbackReplyText is emitted on the llm channel when the Generator
// Adapter exhausts its retries (spec §4.5): the user always hears
// something rather than the pipeline going silent.
const fallbackReplyText = "I'm having trouble — please try again."

// Options configures one Machine. Every field mirrors a §6.4 configuration
// option; internal/server builds one Options value from internal/config.
type Options struct {
	TempDir              string
	ChunkArrivalTimeout  time.Duration
	SessionGrace         time.Duration
	PlaybackReadyTimeout time.Duration
	CollaboratorTimeout  time.Duration
	MaxRerecordAttempts  int
	ChunkSizeBytes       int
	AckEveryNChunks      int
	SeqGapTolerance      int
	MaxRecordingBytes    int64
	STTSampleRate        int
	TTSFormat            string
	Voice                orchestrator.Voice
	Language             orchestrator.Language
}

// Machine is the Session Controller's per-session pipeline task (spec §5):
// the sole mutator of its session's state, consuming decoded frames off a
// reader goroutine and driving STT → LLM → TTS → playback to completion.
type Machine struct {
	SessionID string
	Store     *session.Store
	Codec     *protocol.Codec
	Providers *orchestrator.Providers
	Downloads *download.Store
	Logger    orchestrator.Logger
	Opts      Options

	state         State
	recording     *ingest.Recording
	recordingPath string

	// playbackPath/playbackFormat hold the reply artifact awaiting a
	// ready_for_playback signal; streamer is reused across Announce,
	// StreamChunks and FallbackToDownload so all three write to the same
	// Codec with the same chunk size.
	playbackPath   string
	playbackFormat string
	streamer       *playback.Streamer
	pendingReply   string
	hasPendingTurn bool

	// timer/timerKind implement the single pending wait the pipeline task
	// can have outstanding at once (spec §5: "the pipeline task is the
	// sole mutator of session state") — chunk-arrival during recording, or
	// the playback ready-handshake window. Run's select loop is the only
	// reader of timerC, so arming/disarming never races.
	timer     *time.Timer
	timerC    <-chan time.Time
	timerKind string
}

// New builds a Machine for one freshly-attached channel.
func New(sessionID string, store *session.Store, codec *protocol.Codec, providers *orchestrator.Providers, downloads *download.Store, logger orchestrator.Logger, opts Options) *Machine {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Machine{
		SessionID: sessionID,
		Store:     store,
		Codec:     codec,
		Providers: providers,
		Downloads: downloads,
		Logger:    logger,
		Opts:      opts,
		state:     StateDisconnected,
	}
}

// State reports the machine's current state, for /state reporting.
func (m *Machine) State() State { return m.state }

// armTimer starts the pipeline task's single outstanding wait, replacing
// whichever one (if any) was already running.
func (m *Machine) armTimer(kind string, d time.Duration) {
	m.disarmTimer()
	m.timer = time.NewTimer(d)
	m.timerC = m.timer.C
	m.timerKind = kind
}

func (m *Machine) disarmTimer() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = nil
	m.timerC = nil
	m.timerKind = ""
}

// Run drives the state machine until the channel closes or the context is
// canceled. It owns the reader goroutine's lifetime.
func (m *Machine) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer m.disarmTimer()

	m.streamer = playback.New(m.Codec, m.Downloads, m.Opts.ChunkSizeBytes, m.Opts.PlaybackReadyTimeout, m.Logger)

	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
		s.Channel = m.Codec
		s.CancelGrace()
	})

	frames := make(chan Frame, 16)
	go readLoop(runCtx, m.Codec, frames)

	m.transition(runCtx, StateConnected)
	if err := m.Codec.WriteJSON(runCtx, protocol.NewReady()); err != nil {
		m.Logger.Warn("failed to write ready", "session", m.SessionID, "error", err)
		return
	}

	for {
		select {
		case f := <-frames:
			if f.Err != nil {
				if errors.Is(f.Err, protocol.ErrFrameProtocolViolation) {
					m.handleIngestError(runCtx, orchaerr.New(orchaerr.KindFrameProtocolViolation, "binary frame did not match declared length"))
					continue
				}
				m.handleChannelLost(runCtx)
				m.awaitGraceOrShutdown(ctx)
				return
			}
			m.dispatch(runCtx, f)
			if m.state == StateShutdown {
				return
			}
		case <-m.timerC:
			kind := m.timerKind
			m.disarmTimer()
			switch kind {
			case timerKindArrival:
				m.handleChunkArrivalTimeout(runCtx)
			case timerKindPlaybackReady:
				m.handlePlaybackReadyTimeout(runCtx)
			}
		case <-runCtx.Done():
			m.shutdownAndDestroy(context.Background(), "server shutting down")
			return
		}
	}
}

const (
	timerKindArrival       = "arrival"
	timerKindPlaybackReady = "playback_ready"
)

func (m *Machine) dispatch(ctx context.Context, f Frame) {
	ev := f.Event
	switch ev.Kind {
	case protocol.KindHello:
		m.logEvent("hello from device %s", ev.Device)

	case protocol.KindClientOn:
		if m.state == StateConnected || m.state == StateStalled {
			m.transition(ctx, StateIdle)
		}

	case protocol.KindRecordingStarted:
		if m.state == StateIdle {
			m.startRecording(ctx)
		}

	case protocol.KindAudioChunkMeta:
		if m.state == StateRecording && m.recording != nil {
			m.appendChunk(ctx, ev.Seq, f.Audio)
		}

	case protocol.KindRecordingStopped:
		if m.state == StateRecording {
			m.finishRecording(ctx)
		}

	case protocol.KindImageCaptured:
		m.logEvent("image_captured metadata: %s (%d bytes)", ev.Filename, ev.Size)

	case protocol.KindReadyForPlayback:
		if m.state == StatePlaying && m.timerKind == timerKindPlaybackReady {
			m.disarmTimer()
			if err := m.streamer.StreamChunks(ctx, m.playbackPath); err != nil {
				m.logEvent("playback error: %v", err)
				_ = m.Codec.WriteJSON(ctx, protocol.NewRequestUserIntervention("playback_failed"))
			}
			m.completePlayback(ctx)
		}

	case protocol.KindPlaybackComplete:
		if m.state == StatePlaying {
			m.completePlayback(ctx)
		}

	case protocol.KindPing:
		_ = m.Codec.WriteJSON(ctx, protocol.NewStateSync(string(m.state), "pong"))

	case protocol.KindClientError:
		m.logEvent("client error in state %s: %s (%s)", ev.State, ev.Error, ev.Detail)

	case protocol.KindReject:
		m.logEvent("client reject: %s (was in %s)", ev.Reason, ev.CurrentState)
	}
}

// transition moves to next and mirrors it into the Session Store so
// GET /state reflects the controller's authoritative view.
func (m *Machine) transition(ctx context.Context, next State) {
	m.state = next
	m.logEvent("transitioned to %s", next)
	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
		s.ServerState = string(next)
	})
}

func (m *Machine) logEvent(format string, args ...interface{}) {
	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
		s.LogEvent(format, args...)
	})
}

func (m *Machine) sessionDir() string {
	return filepath.Join(m.Opts.TempDir, m.SessionID)
}

func (m *Machine) startRecording(ctx context.Context) {
	if err := os.MkdirAll(m.sessionDir(), 0o755); err != nil {
		m.Logger.Error("failed to create session directory", "session", m.SessionID, "error", err)
		return
	}

	path := filepath.Join(m.sessionDir(), fmt.Sprintf("rec-%d.pcm", time.Now().UnixNano()))
	rec, err := ingest.Open(path)
	if err != nil {
		m.Logger.Error("failed to open recording", "session", m.SessionID, "error", err)
		return
	}
	rec.AckEveryN = m.Opts.AckEveryNChunks
	rec.SeqGapTolerance = m.Opts.SeqGapTolerance
	rec.MaxChunkBytes = m.Opts.ChunkSizeBytes
	rec.MaxRecordingBytes = m.Opts.MaxRecordingBytes
	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
		rec.CheckQuota = s.CheckQuota
	})

	m.recording = rec
	m.recordingPath = path
	m.transition(ctx, StateRecording)
	m.armTimer(timerKindArrival, m.Opts.ChunkArrivalTimeout)
}

func (m *Machine) appendChunk(ctx context.Context, seq int, data []byte) {
	ackDue, err := m.recording.Append(seq, data)
	if err != nil {
		m.handleIngestError(ctx, err)
		return
	}
	m.armTimer(timerKindArrival, m.Opts.ChunkArrivalTimeout)
	if ackDue {
		_ = m.Codec.WriteJSON(ctx, protocol.NewAck(seq))
	}
}

// handleIngestError aborts the current recording and routes the session
// per spec §4.9/§7: disk-quota/ceiling overruns go straight to user
// intervention without consuming a retry; everything else goes through the
// normal interaction-scoped retry policy.
func (m *Machine) handleIngestError(ctx context.Context, err error) {
	m.disarmTimer()
	if m.recording != nil {
		freed := m.recording.TotalBytes()
		_ = m.recording.Abort()
		m.recording = nil
		m.releaseDiskUsage(freed)
	}

	oerr, _ := orchaerr.As(err)
	kind := orchaerr.Kind("")
	if oerr != nil {
		kind = oerr.Kind
	}
	m.logEvent("recording aborted: %v", err)

	if kind == orchaerr.KindDiskQuotaExceeded || kind == orchaerr.KindMaxRecordExceeded {
		_ = m.Codec.WriteJSON(ctx, protocol.NewRequestUserIntervention(string(kind)))
		_ = m.Store.WithSession(m.SessionID, func(s *session.Session) { s.RetryCount = 0 })
		m.transition(ctx, StateIdle)
		return
	}

	m.requestRerecordOrIntervene(ctx, string(kind))
}

func (m *Machine) handleChunkArrivalTimeout(ctx context.Context) {
	m.disarmTimer()
	if m.recording != nil {
		freed := m.recording.TotalBytes()
		_ = m.recording.Abort()
		m.recording = nil
		m.releaseDiskUsage(freed)
	}
	m.logEvent("chunk arrival timeout")
	m.transition(ctx, StateStalled)
}

// releaseDiskUsage returns n bytes to the session's live quota (spec §5
// cancellation requirement (d)) — called wherever a recording's spill file
// is abandoned or deleted, so MAX_SESSION_DISK_MB tracks current usage
// rather than cumulative lifetime usage.
func (m *Machine) releaseDiskUsage(n int64) {
	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
		s.ReleaseDiskUsage(n)
	})
}

// handleChannelLost reacts to the channel closing or erroring: a recording
// in flight is aborted and the session goes stalled (spec §4.8's
// "recording | channel detach -> stalled"); otherwise it simply loses its
// channel and becomes disconnected, pending the grace timer Run arms next.
func (m *Machine) handleChannelLost(ctx context.Context) {
	if m.recording != nil {
		freed := m.recording.TotalBytes()
		_ = m.recording.Abort()
		m.recording = nil
		m.releaseDiskUsage(freed)
		m.logEvent("channel lost mid-recording")
		m.transition(ctx, StateStalled)
	} else {
		m.logEvent("channel lost")
		if m.state != StateShutdown {
			m.transition(ctx, StateDisconnected)
		}
	}
	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
		s.Channel = nil
	})
}

// awaitGraceOrShutdown blocks after the channel is lost until either the
// same session id reattaches (session.CancelGrace wakes cancelCh), the
// grace period elapses with no channel bound, or the server itself is
// shutting down (spec §4.8: "idle/processing/playing | idle > SESSION_GRACE
// with no channel -> shutdown | destroy session").
func (m *Machine) awaitGraceOrShutdown(ctx context.Context) {
	if m.state == StateShutdown {
		return
	}

	var cancelCh <-chan struct{}
	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
		cancelCh = s.BeginGrace()
	})

	timer := time.NewTimer(m.Opts.SessionGrace)
	defer timer.Stop()

	select {
	case <-cancelCh:
		m.logEvent("channel reattached before grace expired")
	case <-timer.C:
		m.shutdownAndDestroy(ctx, "session grace expired with no channel")
	case <-ctx.Done():
	}
}

// shutdownAndDestroy implements spec §4.9's cleanup: transition to
// shutdown, drop the session row so it stops accumulating in the Store,
// and remove its temp subdir.
func (m *Machine) shutdownAndDestroy(ctx context.Context, reason string) {
	m.disarmTimer()
	if m.recording != nil {
		freed := m.recording.TotalBytes()
		_ = m.recording.Abort()
		m.recording = nil
		m.releaseDiskUsage(freed)
	}
	m.logEvent("shutting down: %s", reason)
	m.transition(ctx, StateShutdown)
	m.Store.Remove(m.SessionID)
	if err := os.RemoveAll(m.sessionDir()); err != nil && !os.IsNotExist(err) {
		m.Logger.Warn("failed to remove session temp dir", "session", m.SessionID, "error", err)
	}
}

// requestRerecordOrIntervene implements the shared retry policy (spec §4.8):
// increment the interaction-scoped counter and ask for a re-record until
// MaxRerecordAttempts is reached, then ask for user intervention and reset.
func (m *Machine) requestRerecordOrIntervene(ctx context.Context, reason string) {
	var retry int
	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
		retry = s.RetryCount
	})

	if retry < m.Opts.MaxRerecordAttempts {
		_ = m.Store.WithSession(m.SessionID, func(s *session.Session) { s.RetryCount++ })
		_ = m.Codec.WriteJSON(ctx, protocol.NewRequestRerecord(reason))
	} else {
		_ = m.Store.WithSession(m.SessionID, func(s *session.Session) { s.RetryCount = 0 })
		_ = m.Codec.WriteJSON(ctx, protocol.NewRequestUserIntervention(reason))
	}
	m.transition(ctx, StateIdle)
}

// finishRecording finalizes the Audio Buffer and runs the
// recognize → generate → synthesize → play pipeline to completion (or to
// whichever early-exit the state machine table specifies).
func (m *Machine) finishRecording(ctx context.Context) {
	m.disarmTimer()
	rec := m.recording
	m.recording = nil
	if rec == nil {
		m.transition(ctx, StateIdle)
		return
	}

	totalBytes := rec.TotalBytes()
	rc, _, err := rec.Finalize()
	if err != nil {
		m.Logger.Error("failed to finalize recording", "session", m.SessionID, "error", err)
		m.transition(ctx, StateIdle)
		return
	}
	defer rc.Close()

	pcm, err := io.ReadAll(rc)
	if err != nil {
		m.Logger.Error("failed to read finalized recording", "session", m.SessionID, "error", err)
		m.transition(ctx, StateIdle)
		return
	}

	if err := os.Remove(m.recordingPath); err != nil && !os.IsNotExist(err) {
		m.Logger.Warn("failed to remove finalized spill file", "session", m.SessionID, "error", err)
	}
	m.releaseDiskUsage(totalBytes)

	m.transition(ctx, StateProcessing)
	m.runPipeline(ctx, pcm)
}

func (m *Machine) runPipeline(ctx context.Context, pcm []byte) {
	collabCtx, cancel := context.WithTimeout(ctx, m.Opts.CollaboratorTimeout)
	transcript, err := m.Providers.Transcribe(collabCtx, pcm, m.Opts.STTSampleRate, m.Opts.Language)
	cancel()

	if err != nil {
		m.logEvent("stt collaborator error: %v", err)
		_ = m.Codec.WriteJSON(ctx, protocol.NewLLMText("Sorry, I couldn't understand that — please try again."))
		m.transition(ctx, StateIdle)
		return
	}

	_ = m.Codec.WriteJSON(ctx, protocol.NewTranscript(transcript.Text))

	if transcript.Verdict != orchestrator.VerdictOK {
		reason := string(transcript.Verdict)
		if transcript.Reason != "" {
			reason = transcript.Reason
		}
		m.requestRerecordOrIntervene(ctx, reason)
		return
	}

	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) { s.RetryCount = 0 })
	m.runGenerateAndSynthesize(ctx, transcript.Text)
}

func (m *Machine) runGenerateAndSynthesize(ctx context.Context, userText string) {
	var messages []orchestrator.Message
	var image *orchestrator.ImageRef

	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
		messages = append(messages, s.History...)
		if s.ImageContext != nil {
			image = &orchestrator.ImageRef{Bytes: s.ImageContext.Canonical, MimeType: s.ImageContext.MimeType}
		}
	})
	messages = append(messages, orchestrator.Message{Role: "user", Content: userText})

	collabCtx, cancel := context.WithTimeout(ctx, m.Opts.CollaboratorTimeout)
	replyText, err := m.Providers.GenerateResponse(collabCtx, messages, image)
	cancel()
	if err != nil {
		m.logEvent("llm collaborator error: %v", err)
		replyText = fallbackReplyText
	}

	_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
		s.AppendTurn(orchestrator.Message{Role: "user", Content: userText})
	})
	_ = m.Codec.WriteJSON(ctx, protocol.NewLLMText(replyText))

	m.runSynthesizeAndPlay(ctx, replyText)
}

func (m *Machine) runSynthesizeAndPlay(ctx context.Context, text string) {
	pcmPath := filepath.Join(m.sessionDir(), fmt.Sprintf("reply-%d.pcm", time.Now().UnixNano()))

	collabCtx, cancel := context.WithTimeout(ctx, m.Opts.CollaboratorTimeout)
	written, err := m.Providers.SynthesizeToFile(collabCtx, text, m.Opts.Voice, m.Opts.Language, pcmPath)
	cancel()
	if err != nil {
		m.logEvent("tts collaborator error: %v", err)
		_ = m.Codec.WriteJSON(ctx, protocol.NewRequestUserIntervention("synthesis_failed"))
		m.transition(ctx, StateIdle)
		return
	}

	playPath := pcmPath
	format := m.Opts.TTSFormat
	if format == "" {
		format = "pcm"
	}
	if format == "wav" {
		pcm, rerr := os.ReadFile(pcmPath)
		if rerr == nil {
			wavPath := pcmPath + ".wav"
			if werr := os.WriteFile(wavPath, audio.NewWavBuffer(pcm, audio.CanonicalSampleRate), 0o644); werr == nil {
				playPath = wavPath
			}
		}
	}

	durationMS := audio.DurationMillis(int(written), audio.CanonicalSampleRate)

	m.pendingReply = text
	m.hasPendingTurn = true
	m.playbackPath = playPath
	m.playbackFormat = format
	m.transition(ctx, StatePlaying)

	if err := m.streamer.Announce(ctx, durationMS, audio.CanonicalSampleRate, format); err != nil {
		m.logEvent("playback error: %v", err)
		_ = m.Codec.WriteJSON(ctx, protocol.NewRequestUserIntervention("playback_failed"))
		m.completePlayback(ctx)
		return
	}

	// Wait for ready_for_playback, handled in dispatch, or fall back to a
	// download offer if the client never acknowledges in time — both paths
	// run from Run's select loop rather than blocking here, since this
	// pipeline task must keep servicing other inbound frames meanwhile.
	m.armTimer(timerKindPlaybackReady, m.Opts.PlaybackReadyTimeout)
}

// handlePlaybackReadyTimeout fires when the client never sends
// ready_for_playback within the configured window (spec §4.7): the reply
// degrades to a download offer and the turn closes out immediately, since
// no playback_complete will follow.
func (m *Machine) handlePlaybackReadyTimeout(ctx context.Context) {
	if err := m.streamer.FallbackToDownload(ctx, m.playbackPath, m.playbackFormat); err != nil {
		m.logEvent("download fallback error: %v", err)
	}
	m.completePlayback(ctx)
}

func (m *Machine) completePlayback(ctx context.Context) {
	m.disarmTimer()
	if m.hasPendingTurn {
		_ = m.Store.WithSession(m.SessionID, func(s *session.Session) {
			s.AppendTurn(orchestrator.Message{Role: "assistant", Content: m.pendingReply})
			s.RetryCount = 0
		})
		m.pendingReply = ""
		m.hasPendingTurn = false
	}
	m.playbackPath = ""
	m.playbackFormat = ""
	m.transition(ctx, StateIdle)
}
