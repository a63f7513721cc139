package server

import (
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/lokutor-ai/voice-gateway/internal/controller"
	"github.com/lokutor-ai/voice-gateway/internal/protocol"
	"github.com/lokutor-ai/voice-gateway/internal/session"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

// statusAuthFailed and statusConflict are application-level websocket
// close codes (RFC 6455 reserves 4000-4999 for this), mirroring the
// teacher's use of the library's named status constants for closes it
// controls (pkg/providers/tts/lokutor.go).
const (
	statusAuthFailed websocket.StatusCode = 4001
	statusConflict   websocket.StatusCode = 4009
)

// handleWS upgrades GET /ws (spec §6.1): validates the attach token and
// session id, resolves admission control, then runs a Session Controller
// Machine for the channel's lifetime.
func (s *Server) handleWS(c *gin.Context) {
	sessionID := c.Query("session")

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	if sessionID == "" || !s.checkToken(c.Request) {
		conn.Close(statusAuthFailed, "missing or invalid session/token")
		return
	}

	ok, gen := s.tryAttach(sessionID)
	if !ok {
		conn.Close(statusConflict, "another session is already bound")
		return
	}
	defer s.release(sessionID, gen)

	if !s.sessions.Exists(sessionID) {
		s.sessions.Create(sessionID, deviceIDFromQuery(c))
	} else {
		// Wake any prior Machine for this id that is mid-grace-wait
		// (spec §4.8's "unless the active session is in disconnected
		// awaiting grace, in which case the new channel resumes it"):
		// its Run call returns without destroying the session, leaving
		// this attach as the sole owner going forward.
		_ = s.sessions.WithSession(sessionID, func(sess *session.Session) {
			sess.CancelGrace()
		})
	}

	codec := protocol.New(conn, s.logger)
	machine := controller.New(sessionID, s.sessions, codec, s.providers, s.downloads, s.logger, s.controllerOpts())
	machine.Run(c.Request.Context())

	conn.Close(websocket.StatusNormalClosure, "")
}

func deviceIDFromQuery(c *gin.Context) string {
	if d := c.Query("device"); d != "" {
		return d
	}
	return "unknown"
}

// controllerOpts translates the bound Config into controller.Options,
// the §6.4 surface each Machine reads its timers and limits from.
func (s *Server) controllerOpts() controller.Options {
	cfg := s.cfg
	return controller.Options{
		TempDir:              cfg.TempDir,
		ChunkArrivalTimeout:  secondsToDuration(cfg.ChunkArrivalTimeoutSec),
		SessionGrace:         secondsToDuration(cfg.SessionGraceSec),
		PlaybackReadyTimeout: secondsToDuration(cfg.PlaybackReadyTimeoutSec),
		CollaboratorTimeout:  secondsToDuration(cfg.CollaboratorTimeoutSec),
		MaxRerecordAttempts:  cfg.MaxRerecordAttempts,
		ChunkSizeBytes:       cfg.ChunkSizeBytes,
		AckEveryNChunks:      cfg.AckEveryNChunks,
		SeqGapTolerance:      cfg.SeqGapTolerance,
		MaxRecordingBytes:    cfg.MaxRecordingBytes,
		STTSampleRate:        cfg.STTSampleRate,
		TTSFormat:            cfg.TTSFormat,
		Voice:                orchestrator.Voice(cfg.Voice),
		Language:             orchestrator.Language(cfg.Language),
	}
}

func secondsToDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
