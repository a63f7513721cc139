// Package audio provides the canonical PCM format helpers shared by the
// ingest, playback and collaborator-adapter packages (spec §6.3).
package audio

// Canonical format: PCM16LE, mono, 16kHz (spec §6.3). Collaborator adapters
// that need a different rate (the teacher's mic capture ran at 44.1kHz) take
// it as an explicit parameter rather than assuming this constant.
const (
	CanonicalSampleRate  = 16000
	CanonicalChannels    = 1
	CanonicalBytesPerSample = 2
)

// DurationMillis derives an utterance's duration from its raw byte count at
// the given sample rate, assuming 16-bit mono samples.
func DurationMillis(byteLen int, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / CanonicalBytesPerSample
	return int64(samples) * 1000 / int64(sampleRate)
}

// ByteLenForMillis is the inverse of DurationMillis, used by tests.
func ByteLenForMillis(ms int64, sampleRate int) int {
	return int(ms) * sampleRate / 1000 * CanonicalBytesPerSample
}
