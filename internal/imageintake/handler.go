// Package imageintake implements the HTTP side of the spec §3 Image
// Context: POST /image, which decodes, canonicalizes, and binds an
// uploaded image to a session.
package imageintake

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lokutor-ai/voice-gateway/internal/protocol"
	"github.com/lokutor-ai/voice-gateway/internal/session"
	"github.com/lokutor-ai/voice-gateway/pkg/media"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

// maxUploadBytes bounds the upload body this handler will read before
// giving up, independent of the canonicalized artifact's own size.
const maxUploadBytes = 16 << 20

var (
	errMissingImage = errors.New("missing image file field or body")
	errUploadRead   = errors.New("failed to read upload")
)

// Handler binds uploaded images into the Session Store's Image Context.
type Handler struct {
	Sessions     *session.Store
	ResizeConfig media.ResizeConfig
	Logger       orchestrator.Logger
}

// New builds a Handler, defaulting the resize bounds and logger.
func New(sessions *session.Store, resizeConfig media.ResizeConfig, logger orchestrator.Logger) *Handler {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Handler{Sessions: sessions, ResizeConfig: resizeConfig, Logger: logger}
}

// Upload handles POST /image?session=<id> (spec §6.2), accepting either a
// multipart form with an "image" file field or a raw
// application/octet-stream body.
func (h *Handler) Upload(c *gin.Context) {
	sessionID := c.Query("session")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session query parameter"})
		return
	}

	data, filename, err := readUploadBody(c)
	if errors.Is(err, errUploadRead) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload size limit"})
		return
	}

	h.setUploading(sessionID, true)
	defer h.setUploading(sessionID, false)

	artifact, err := media.BuildArtifact(data, h.ResizeConfig)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unsupported or corrupt image"})
		return
	}

	bindErr := h.Sessions.WithSession(sessionID, func(s *session.Session) {
		s.ImageContext = artifact
		s.LogEvent("image received: %s (%d bytes, %dx%d)", filename, len(data), artifact.Width, artifact.Height)
	})
	if bindErr != nil {
		h.Logger.Warn("image upload for unknown session", "session", sessionID)
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	h.notifyImageReceived(c, sessionID, filename)

	c.JSON(http.StatusOK, gin.H{
		"type":     "image_received",
		"filename": filename,
		"width":    artifact.Width,
		"height":   artifact.Height,
	})
}

// readUploadBody accepts either the multipart "image" file field or, when
// the request isn't multipart, a raw application/octet-stream body (spec
// §6.2 names both as valid upload encodings).
func readUploadBody(c *gin.Context) (data []byte, filename string, err error) {
	file, header, ferr := c.Request.FormFile("image")
	if ferr == nil {
		defer file.Close()
		data, err = io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
		if err != nil {
			return nil, "", errUploadRead
		}
		return data, header.Filename, nil
	}

	data, err = io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes+1))
	if err != nil || len(data) == 0 {
		return nil, "", errMissingImage
	}
	return data, "upload", nil
}

// setUploading flips the concurrent image_uploading attribute (spec
// §4.8): it never displaces the primary ServerState, and is cleared
// again once this upload completes (success or failure).
func (h *Handler) setUploading(sessionID string, uploading bool) {
	_ = h.Sessions.WithSession(sessionID, func(s *session.Session) {
		s.ImageUploading = uploading
	})
}

// notifyImageReceived emits image_received on the session's bound channel,
// if any (spec §6.1's server->client frame list; scenario 6). A session
// with no live channel (or one whose Channel isn't a *protocol.Codec)
// simply misses the frame, same as any other outbound frame sent while
// disconnected.
func (h *Handler) notifyImageReceived(c *gin.Context, sessionID, filename string) {
	var codec *protocol.Codec
	_ = h.Sessions.WithSession(sessionID, func(s *session.Session) {
		codec, _ = s.Channel.(*protocol.Codec)
	})
	if codec == nil {
		return
	}
	if err := codec.WriteJSON(c.Request.Context(), protocol.NewImageReceived(filename)); err != nil {
		h.Logger.Warn("failed to emit image_received", "session", sessionID, "error", err)
	}
}
