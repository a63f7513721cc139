// Package stt holds the Recognizer Adapter implementations (spec §6.1):
// thin HTTP clients over each STT collaborator's API, each responsible for
// turning a quality verdict — not just raw text — before the pipeline ever
// calls the Generator Adapter.
package stt

import (
	"github.com/lokutor-ai/voice-gateway/pkg/audio"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

// defaultMinRecordDurationMS and defaultLowConfidenceThreshold mirror
// Config.MinRecordDurationSec/STTConfidenceThreshold's defaults (spec
// §6.4). Every adapter starts with these and accepts an override via
// SetQualityThresholds, following the teacher's optional-capability
// pattern for SetSampleRate (cmd/agent/main.go's type-asserted
// `interface{ SetSampleRate(int) }` check).
const (
	defaultMinRecordDurationMS    int64   = 500
	defaultLowConfidenceThreshold float64 = 0.5
)

// classifyEnergy runs the shared too-short/too-quiet/too-loud pre-check
// ahead of the network call, so a silent recording never burns a
// collaborator request.
func classifyEnergy(pcm []byte, sampleRate int, minRecordDurationMS int64) (orchestrator.Verdict, string) {
	durationMS := audio.DurationMillis(len(pcm), sampleRate)
	return orchestrator.ClassifyEnergy(pcm, durationMS, minRecordDurationMS)
}

// classifyText maps a (possibly empty) transcript and optional confidence
// to a final verdict once the collaborator has responded.
func classifyText(text string, confidence float64, hasConfidence bool, lowConfidenceThreshold float64) orchestrator.Verdict {
	if text == "" {
		return orchestrator.VerdictEmpty
	}
	if hasConfidence && confidence < lowConfidenceThreshold {
		return orchestrator.VerdictLowConfidence
	}
	return orchestrator.VerdictOK
}
