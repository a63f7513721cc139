// Package server wires the HTTP surface (spec §6.2) — health, state
// snapshot, image upload, download fallback, and the /ws upgrade route —
// onto a gin.Engine, grounded on iamprashant-voice-ai's one-route-group-
// per-concern router style (api/assistant-api/router/*.go).
package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lokutor-ai/voice-gateway/internal/config"
	"github.com/lokutor-ai/voice-gateway/internal/download"
	"github.com/lokutor-ai/voice-gateway/internal/imageintake"
	"github.com/lokutor-ai/voice-gateway/internal/session"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

// Server bundles every dependency the HTTP routes need: the Session
// Store, Download Store, collaborator Providers, and the admission-
// control slot spec §5's default "one session at a time" policy uses.
type Server struct {
	cfg       config.Config
	sessions  *session.Store
	downloads *download.Store
	providers *orchestrator.Providers
	images    *imageintake.Handler
	logger    orchestrator.Logger
	startedAt time.Time

	admissionMu sync.Mutex
	activeID    string
	activeGen   uint64
}

// New builds a Server and registers every route on a fresh gin.Engine.
func New(cfg config.Config, sessions *session.Store, downloads *download.Store, providers *orchestrator.Providers, images *imageintake.Handler, logger orchestrator.Logger) *Server {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		downloads: downloads,
		providers: providers,
		images:    images,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Engine builds the gin.Engine with every route registered. Called once
// by cmd/gatewayd before starting the HTTP listener.
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.handleHealth)
	engine.GET("/state", s.handleState)
	engine.POST("/image", s.requireAuth(), s.images.Upload)
	engine.GET("/download/:token", s.handleDownload)
	engine.GET("/ws", s.handleWS)

	return engine
}

// requireAuth enforces spec §6.1's channel-attach token rule on the
// non-websocket authenticated routes: the configured WS_TOKEN, presented
// as either a query parameter or a bearer header.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.checkToken(c.Request) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}
		c.Next()
	}
}

func (s *Server) checkToken(r *http.Request) bool {
	if s.cfg.WSToken == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.cfg.WSToken {
		return true
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	return strings.HasPrefix(auth, prefix) && strings.TrimPrefix(auth, prefix) == s.cfg.WSToken
}

// handleHealth answers GET /health (spec §6.2), unauthenticated.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"uptime": time.Since(s.startedAt).Seconds(),
		"models": s.providers.Names(),
	})
}

// handleState answers GET /state?session=<id> (spec §6.2): the
// server-authoritative state name plus the session's recent event log.
func (s *Server) handleState(c *gin.Context) {
	sessionID := c.Query("session")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session query parameter"})
		return
	}

	type eventView struct {
		At      time.Time `json:"at"`
		Message string    `json:"message"`
	}

	var state string
	var events []eventView
	err := s.sessions.WithSession(sessionID, func(sess *session.Session) {
		state = sess.ServerState
		for _, ev := range sess.Events() {
			events = append(events, eventView{At: ev.At, Message: ev.Message})
		}
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": state, "events": events})
}

// handleDownload answers GET /download/:token (spec §4.7/§6.2): the
// fallback reply artifact, served exactly once or until it expires.
func (s *Server) handleDownload(c *gin.Context) {
	token := c.Param("token")
	handle, err := s.downloads.Consume(token)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown, expired, or already-consumed token"})
		return
	}
	c.Header("Content-Type", handle.ContentType)
	c.File(handle.Path)
}

// Sessions exposes the Session Store for cmd/gatewayd's sweeper wiring.
func (s *Server) Sessions() *session.Store { return s.sessions }

// tryAttach implements spec §5's default admission policy: one bound
// session at a time. A fresh id is admitted if no channel is currently
// bound, or if it matches the session that is currently bound (a
// reattach, including one still in its post-detach grace window); any
// other id while one is bound is a conflict. The returned generation
// must be passed back to release so a stale attach's slot release can
// never clear a newer attach's slot out from under it.
func (s *Server) tryAttach(sessionID string) (ok bool, gen uint64) {
	s.admissionMu.Lock()
	defer s.admissionMu.Unlock()
	if s.activeID != "" && s.activeID != sessionID {
		return false, 0
	}
	s.activeID = sessionID
	s.activeGen++
	return true, s.activeGen
}

// release clears the admission slot once sessionID's channel goroutine
// exits — which, per Machine.Run's grace/shutdown handling, happens at
// grace expiry rather than the instant the channel drops. gen must match
// the generation tryAttach returned, so a stale (pre-reattach) Machine's
// deferred release can never clear a slot a newer attach now holds.
func (s *Server) release(sessionID string, gen uint64) {
	s.admissionMu.Lock()
	defer s.admissionMu.Unlock()
	if s.activeID == sessionID && s.activeGen == gen {
		s.activeID = ""
	}
}
