// Package orchestrator defines the narrow collaborator contracts (STT, LLM,
// TTS) the core orchestrator drives, plus the shared vocabulary (messages,
// images, voices, languages) those contracts speak. It owns no session
// state — that lives in internal/session — and no protocol framing — that
// lives in internal/protocol.
package orchestrator

import "context"

type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Used by default and in tests.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// Verdict is the Recognizer Adapter's quality signal for a finished
// transcription attempt (spec §4.4).
type Verdict string

const (
	VerdictOK             Verdict = "ok"
	VerdictEmpty          Verdict = "empty"
	VerdictLowConfidence  Verdict = "low_confidence"
	VerdictTooShort       Verdict = "too_short"
	VerdictTooQuiet       Verdict = "too_quiet"
	VerdictTooLoud        Verdict = "too_loud"
	VerdictCollaborator   Verdict = "collaborator_error"
)

// Transcript is the Recognizer Adapter's result for one finalized Recording.
type Transcript struct {
	Text       string
	Verdict    Verdict
	Reason     string
	Confidence float64
}

// STTProvider transcribes a complete canonical PCM utterance. Implementations
// are request/response collaborators (spec §6: "out of scope", invoked
// through this interface).
type STTProvider interface {
	Transcribe(ctx context.Context, audio []byte, sampleRate int, lang Language) (Transcript, error)
	Name() string
}

// StreamingSTTProvider is an optional extension a collaborator may implement
// to emit partial transcripts while still streaming audio. None of the
// kept adapters implement it today (spec §9 Open Questions: "the core may
// omit [partial events] entirely if the recognizer collaborator does not
// naturally stream").
type StreamingSTTProvider interface {
	STTProvider
	StreamTranscribe(ctx context.Context, lang Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error)
}

// ImageRef is the optional visual context handed to the Generator Adapter.
type ImageRef struct {
	Bytes    []byte
	MimeType string
}

// LLMProvider produces an assistant reply from conversation history plus an
// optional image. image is nil when no visual context is bound to the
// session.
type LLMProvider interface {
	Complete(ctx context.Context, messages []Message, image *ImageRef) (string, error)
	Name() string
}

// TTSProvider synthesizes speech for a line of assistant text.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error
	Name() string
}

// Aborter is implemented by collaborators that can cancel in-flight
// synthesis out-of-band (e.g. a persistent websocket session).
type Aborter interface {
	Abort() error
}

// FileSynthesizer is implemented by TTS collaborators that can spill a
// synthesis stream directly to a file rather than buffering it in memory,
// producing the on-disk artifact the Playback Streamer reads chunks from.
// It returns the number of bytes written.
type FileSynthesizer interface {
	SynthesizeToFile(ctx context.Context, text string, voice Voice, lang Language, path string) (int64, error)
}

// Message is one turn of conversation history handed to the Generator
// Adapter, Role one of "system", "user", "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Voice selects a synthesizer voice preset.
type Voice string

const (
	VoiceF1 Voice = "F1"
	VoiceF2 Voice = "F2"
	VoiceF3 Voice = "F3"
	VoiceF4 Voice = "F4"
	VoiceF5 Voice = "F5"
	VoiceM1 Voice = "M1"
	VoiceM2 Voice = "M2"
	VoiceM3 Voice = "M3"
	VoiceM4 Voice = "M4"
	VoiceM5 Voice = "M5"
)

// Language is an ISO-639-1-ish language tag passed through to collaborators.
type Language string

const (
	LanguageEn Language = "en"
	LanguageEs Language = "es"
	LanguageFr Language = "fr"
	LanguageDe Language = "de"
	LanguageIt Language = "it"
	LanguagePt Language = "pt"
	LanguageJa Language = "ja"
	LanguageZh Language = "zh"
)
