package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lokutor-ai/voice-gateway/pkg/audio"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

type OpenAISTT struct {
	apiKey string
	url    string
	model  string

	minRecordDurationMS    int64
	lowConfidenceThreshold float64
}

func NewOpenAISTT(apiKey string, model string) *OpenAISTT {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAISTT{
		apiKey:                 apiKey,
		url:                    "https://api.openai.com/v1/audio/transcriptions",
		model:                  model,
		minRecordDurationMS:    defaultMinRecordDurationMS,
		lowConfidenceThreshold: defaultLowConfidenceThreshold,
	}
}

func (s *OpenAISTT) Name() string {
	return "openai-stt"
}

// SetQualityThresholds overrides the too-short and low-confidence cutoffs
// this adapter applies (spec §6.4's MIN_RECORD_DURATION_SEC/
// STT_CONFIDENCE_THRESHOLD).
func (s *OpenAISTT) SetQualityThresholds(minRecordDurationMS int64, lowConfidenceThreshold float64) {
	s.minRecordDurationMS = minRecordDurationMS
	s.lowConfidenceThreshold = lowConfidenceThreshold
}

func (s *OpenAISTT) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang orchestrator.Language) (orchestrator.Transcript, error) {
	if verdict, reason := classifyEnergy(pcm, sampleRate, s.minRecordDurationMS); verdict != "" {
		return orchestrator.Transcript{Verdict: verdict, Reason: reason}, nil
	}

	wavData := audio.NewWavBuffer(pcm, sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return orchestrator.Transcript{}, err
	}

	if lang != "" {
		if err := writer.WriteField("language", string(lang)); err != nil {
			return orchestrator.Transcript{}, err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return orchestrator.Transcript{}, err
	}
	if _, err := part.Write(wavData); err != nil {
		return orchestrator.Transcript{}, err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, body)
	if err != nil {
		return orchestrator.Transcript{}, err
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return orchestrator.Transcript{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return orchestrator.Transcript{}, fmt.Errorf("openai error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return orchestrator.Transcript{}, err
	}

	return orchestrator.Transcript{
		Text:    result.Text,
		Verdict: classifyText(result.Text, 0, false, s.lowConfidenceThreshold),
	}, nil
}
