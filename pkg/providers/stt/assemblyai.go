package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

type AssemblyAISTT struct {
	apiKey string

	minRecordDurationMS    int64
	lowConfidenceThreshold float64
}

func NewAssemblyAISTT(apiKey string) *AssemblyAISTT {
	return &AssemblyAISTT{
		apiKey:                 apiKey,
		minRecordDurationMS:    defaultMinRecordDurationMS,
		lowConfidenceThreshold: defaultLowConfidenceThreshold,
	}
}

func (s *AssemblyAISTT) Name() string {
	return "assemblyai-stt"
}

// SetQualityThresholds overrides the too-short and low-confidence cutoffs
// this adapter applies (spec §6.4's MIN_RECORD_DURATION_SEC/
// STT_CONFIDENCE_THRESHOLD).
func (s *AssemblyAISTT) SetQualityThresholds(minRecordDurationMS int64, lowConfidenceThreshold float64) {
	s.minRecordDurationMS = minRecordDurationMS
	s.lowConfidenceThreshold = lowConfidenceThreshold
}

func (s *AssemblyAISTT) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang orchestrator.Language) (orchestrator.Transcript, error) {
	if verdict, reason := classifyEnergy(pcm, sampleRate, s.minRecordDurationMS); verdict != "" {
		return orchestrator.Transcript{Verdict: verdict, Reason: reason}, nil
	}

	uploadURL, err := s.upload(ctx, pcm)
	if err != nil {
		return orchestrator.Transcript{}, err
	}

	transcriptID, err := s.submit(ctx, uploadURL, lang)
	if err != nil {
		return orchestrator.Transcript{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return orchestrator.Transcript{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
			text, confidence, status, err := s.getTranscript(ctx, transcriptID)
			if err != nil {
				return orchestrator.Transcript{}, err
			}
			if status == "completed" {
				return orchestrator.Transcript{
					Text:       text,
					Confidence: confidence,
					Verdict:    classifyText(text, confidence, true, s.lowConfidenceThreshold),
				}, nil
			}
			if status == "error" {
				return orchestrator.Transcript{}, fmt.Errorf("assemblyai transcription failed")
			}
		}
	}
}

func (s *AssemblyAISTT) upload(ctx context.Context, pcm []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.assemblyai.com/v2/upload", bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.UploadURL, nil
}

func (s *AssemblyAISTT) submit(ctx context.Context, uploadURL string, lang orchestrator.Language) (string, error) {
	payload := map[string]interface{}{
		"audio_url": uploadURL,
	}
	if lang != "" {
		payload["language_code"] = string(lang)
	}

	body, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, "POST", "https://api.assemblyai.com/v2/transcript", bytes.NewReader(body))
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.ID, nil
}

func (s *AssemblyAISTT) getTranscript(ctx context.Context, id string) (string, float64, string, error) {
	req, _ := http.NewRequestWithContext(ctx, "GET", "https://api.assemblyai.com/v2/transcript/"+id, nil)
	req.Header.Set("Authorization", s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, "", err
	}
	defer resp.Body.Close()

	var result struct {
		Status     string  `json:"status"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.Text, result.Confidence, result.Status, nil
}
