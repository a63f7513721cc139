package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/lokutor-ai/voice-gateway/internal/config"
	"github.com/lokutor-ai/voice-gateway/internal/download"
	"github.com/lokutor-ai/voice-gateway/internal/imageintake"
	"github.com/lokutor-ai/voice-gateway/internal/session"
	"github.com/lokutor-ai/voice-gateway/pkg/media"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSTT struct{}

func (stubSTT) Transcribe(ctx context.Context, audio []byte, sampleRate int, lang orchestrator.Language) (orchestrator.Transcript, error) {
	return orchestrator.Transcript{Text: "stub", Verdict: orchestrator.VerdictOK}, nil
}
func (stubSTT) Name() string { return "stub-stt" }

type stubLLM struct{}

func (stubLLM) Complete(ctx context.Context, messages []orchestrator.Message, image *orchestrator.ImageRef) (string, error) {
	return "stub reply", nil
}
func (stubLLM) Name() string { return "stub-llm" }

type stubTTS struct{}

func (stubTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	return []byte{1}, nil
}
func (stubTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error {
	return onChunk([]byte{1})
}
func (stubTTS) Name() string { return "stub-tts" }

func newTestServer(t *testing.T, token string) (*Server, *httptest.Server) {
	t.Helper()
	tempDir := t.TempDir()
	cfg := config.Defaults()
	cfg.TempDir = tempDir
	cfg.WSToken = token

	sessions := session.NewStore(100<<20, 8, 64)
	downloads := download.NewStore(time.Minute)
	providers := orchestrator.New(stubSTT{}, stubLLM{}, stubTTS{})
	images := imageintake.New(sessions, media.DefaultResizeConfig(), nil)

	srv := New(cfg, sessions, downloads, providers, images, nil)
	httpSrv := httptest.NewServer(srv.Engine())
	t.Cleanup(httpSrv.Close)
	return srv, httpSrv
}

func TestHandleHealthReportsModels(t *testing.T) {
	_, httpSrv := newTestServer(t, "")

	resp, err := http.Get(httpSrv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		OK     bool              `json:"ok"`
		Uptime float64           `json:"uptime"`
		Models map[string]string `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK {
		t.Error("expected ok=true")
	}
	if body.Models["stt"] != "stub-stt" {
		t.Errorf("expected stt model name surfaced, got %+v", body.Models)
	}
}

func TestHandleStateUnknownSessionReturns404(t *testing.T) {
	_, httpSrv := newTestServer(t, "")

	resp, err := http.Get(httpSrv.URL + "/state?session=nope")
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleStateReturnsSnapshot(t *testing.T) {
	srv, httpSrv := newTestServer(t, "")
	sess := srv.Sessions().Create("sess-A", "device-1")
	_ = sess

	resp, err := http.Get(httpSrv.URL + "/state?session=sess-A")
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != "connected" {
		t.Errorf("expected initial state connected, got %q", body.State)
	}
}

func TestImageUploadRequiresAuthToken(t *testing.T) {
	_, httpSrv := newTestServer(t, "secret-token")

	resp, err := http.Post(httpSrv.URL+"/image?session=sess-A", "multipart/form-data", nil)
	if err != nil {
		t.Fatalf("POST /image: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestHandleDownloadIsSingleUse(t *testing.T) {
	srv, httpSrv := newTestServer(t, "")

	path := filepath.Join(t.TempDir(), "reply.pcm")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	handle := srv.downloads.Issue(path, "audio/l16")

	resp, err := http.Get(httpSrv.URL + "/download/" + handle.Token)
	if err != nil {
		t.Fatalf("GET /download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on first fetch, got %d", resp.StatusCode)
	}

	resp2, err := http.Get(httpSrv.URL + "/download/" + handle.Token)
	if err != nil {
		t.Fatalf("GET /download (second): %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 on second fetch, got %d", resp2.StatusCode)
	}
}

func TestWSRejectsSecondSessionWhileOneBound(t *testing.T) {
	_, httpSrv := newTestServer(t, "")
	wsURL := "ws" + httpSrv.URL[len("http"):]

	connA, _, err := websocket.Dial(context.Background(), wsURL+"/ws?session=sess-A", nil)
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer connA.Close(websocket.StatusNormalClosure, "")

	// Let sess-A's attach register before sess-B tries.
	_, _, err = connA.Read(context.Background())
	if err != nil {
		t.Fatalf("expected ready frame from sess-A: %v", err)
	}

	connB, _, err := websocket.Dial(context.Background(), wsURL+"/ws?session=sess-B", nil)
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer connB.Close(websocket.StatusNormalClosure, "")

	_, _, err = connB.Read(context.Background())
	closeErr, ok := websocket.CloseStatus(err), true
	_ = ok
	if closeErr != statusConflict {
		t.Errorf("expected conflict close status %d, got %d (err=%v)", statusConflict, closeErr, err)
	}
}
