package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

type DeepgramSTT struct {
	apiKey string
	url    string

	minRecordDurationMS    int64
	lowConfidenceThreshold float64
}

func NewDeepgramSTT(apiKey string) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey:                 apiKey,
		url:                    "https://api.deepgram.com/v1/listen",
		minRecordDurationMS:    defaultMinRecordDurationMS,
		lowConfidenceThreshold: defaultLowConfidenceThreshold,
	}
}

func (s *DeepgramSTT) Name() string {
	return "deepgram-stt"
}

// SetQualityThresholds overrides the too-short and low-confidence cutoffs
// this adapter applies (spec §6.4's MIN_RECORD_DURATION_SEC/
// STT_CONFIDENCE_THRESHOLD).
func (s *DeepgramSTT) SetQualityThresholds(minRecordDurationMS int64, lowConfidenceThreshold float64) {
	s.minRecordDurationMS = minRecordDurationMS
	s.lowConfidenceThreshold = lowConfidenceThreshold
}

func (s *DeepgramSTT) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang orchestrator.Language) (orchestrator.Transcript, error) {
	if verdict, reason := classifyEnergy(pcm, sampleRate, s.minRecordDurationMS); verdict != "" {
		return orchestrator.Transcript{Verdict: verdict, Reason: reason}, nil
	}

	u, err := url.Parse(s.url)
	if err != nil {
		return orchestrator.Transcript{}, err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(pcm))
	if err != nil {
		return orchestrator.Transcript{}, err
	}

	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d; channels=1", sampleRate))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return orchestrator.Transcript{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return orchestrator.Transcript{}, fmt.Errorf("deepgram error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string  `json:"transcript"`
					Confidence float64 `json:"confidence"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return orchestrator.Transcript{}, err
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return orchestrator.Transcript{Verdict: orchestrator.VerdictEmpty}, nil
	}

	alt := result.Results.Channels[0].Alternatives[0]
	return orchestrator.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Verdict:    classifyText(alt.Transcript, alt.Confidence, true, s.lowConfidenceThreshold),
	}, nil
}
