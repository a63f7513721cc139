package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

type deepgramFixture struct {
	transcript string
	confidence float64
}

func deepgramServer(t *testing.T, f deepgramFixture) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"results": map[string]interface{}{
				"channels": []map[string]interface{}{
					{
						"alternatives": []map[string]interface{}{
							{"transcript": f.transcript, "confidence": f.confidence},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestDeepgramSTT(t *testing.T) {
	server := deepgramServer(t, deepgramFixture{transcript: "hello there", confidence: 0.95})
	defer server.Close()

	s := &DeepgramSTT{apiKey: "test-key", url: server.URL}
	pcm := loudEnoughPCM(16000)
	result, err := s.Transcribe(context.Background(), pcm, 16000, orchestrator.LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello there" {
		t.Errorf("expected 'hello there', got %q", result.Text)
	}
	if result.Verdict != orchestrator.VerdictOK {
		t.Errorf("expected verdict ok, got %s", result.Verdict)
	}
}

func TestDeepgramSTTLowConfidence(t *testing.T) {
	server := deepgramServer(t, deepgramFixture{transcript: "maybe this", confidence: 0.2})
	defer server.Close()

	s := &DeepgramSTT{apiKey: "test-key", url: server.URL, lowConfidenceThreshold: defaultLowConfidenceThreshold}
	pcm := loudEnoughPCM(16000)
	result, err := s.Transcribe(context.Background(), pcm, 16000, orchestrator.LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != orchestrator.VerdictLowConfidence {
		t.Errorf("expected verdict low_confidence, got %s", result.Verdict)
	}
}
