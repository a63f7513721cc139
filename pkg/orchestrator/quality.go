package orchestrator

import "math"

// CalculateRMS returns the root-mean-square energy of a 16-bit LE PCM chunk,
// normalized to [0, 1]. Ported from the teacher's RMSVAD.calculateRMS; the
// VAD state machine around it had no role once the client records in
// fixed start/stop segments, but the energy math is exactly what the
// Recognizer Adapter needs to classify too_quiet/too_loud before invoking
// the STT collaborator (spec §4.4).
func CalculateRMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var sum float64
	n := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		f := float64(sample) / 32768.0
		sum += f * f
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// Quality thresholds for coarse audio classification ahead of the STT call.
const (
	QuietRMSThreshold = 0.01
	LoudRMSThreshold  = 0.9
)

// ClassifyEnergy applies the coarse RMS-based checks from spec §4.4, run
// before (or alongside) the STT collaborator call. It returns ("", "") when
// the audio passes and a Verdict + human reason otherwise.
func ClassifyEnergy(pcm []byte, durationMS int64, minDurationMS int64) (Verdict, string) {
	if durationMS < minDurationMS {
		return VerdictTooShort, "utterance shorter than the minimum record duration"
	}

	rms := CalculateRMS(pcm)
	if rms < QuietRMSThreshold {
		return VerdictTooQuiet, "audio energy below the quiet threshold"
	}
	if rms > LoudRMSThreshold {
		return VerdictTooLoud, "audio energy above the loud threshold (likely clipping)"
	}
	return "", ""
}
