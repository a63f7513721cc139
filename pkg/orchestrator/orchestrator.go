package orchestrator

import (
	"context"
	"os"
	"sync"
)

// Providers bundles the three external collaborators (spec §6: STT, LLM,
// TTS) plus the logger every adapter call is traced through. It replaces the
// teacher's single-session Orchestrator: session state, the state machine
// and the pipeline sequencing now live in internal/session and
// internal/controller, which hold a *Providers rather than embedding it.
type Providers struct {
	stt    STTProvider
	llm    LLMProvider
	tts    TTSProvider
	logger Logger
	mu     sync.RWMutex
}

// New builds a Providers bundle with a NoOpLogger.
func New(stt STTProvider, llm LLMProvider, tts TTSProvider) *Providers {
	return NewWithLogger(stt, llm, tts, nil)
}

// NewWithLogger builds a Providers bundle, defaulting to NoOpLogger when nil.
func NewWithLogger(stt STTProvider, llm LLMProvider, tts TTSProvider, logger Logger) *Providers {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Providers{stt: stt, llm: llm, tts: tts, logger: logger}
}

// Transcribe invokes the Recognizer Adapter's collaborator.
func (p *Providers) Transcribe(ctx context.Context, audioData []byte, sampleRate int, lang Language) (Transcript, error) {
	t, err := p.stt.Transcribe(ctx, audioData, sampleRate, lang)
	if err != nil {
		p.logger.Error("stt collaborator error", "provider", p.stt.Name(), "error", err)
		return Transcript{Verdict: VerdictCollaborator, Reason: err.Error()}, err
	}
	return t, nil
}

// GenerateResponse invokes the Generator Adapter's collaborator.
func (p *Providers) GenerateResponse(ctx context.Context, messages []Message, image *ImageRef) (string, error) {
	resp, err := p.llm.Complete(ctx, messages, image)
	if err != nil {
		p.logger.Error("llm collaborator error", "provider", p.llm.Name(), "error", err)
		return "", err
	}
	return resp, nil
}

// Synthesize invokes the Synthesizer Adapter's collaborator and returns the
// full artifact in memory (used by callers that do not need to stream).
func (p *Providers) Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error) {
	return p.tts.Synthesize(ctx, text, voice, lang)
}

// SynthesizeStream invokes the Synthesizer Adapter's collaborator, delivering
// chunks to onChunk as they arrive.
func (p *Providers) SynthesizeStream(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error {
	return p.tts.StreamSynthesize(ctx, text, voice, lang, onChunk)
}

// SynthesizeToFile spills synthesis straight to disk when the underlying
// collaborator supports it (the path internal/controller uses), falling
// back to an in-memory Synthesize-then-write otherwise.
func (p *Providers) SynthesizeToFile(ctx context.Context, text string, voice Voice, lang Language, path string) (int64, error) {
	if fs, ok := p.tts.(FileSynthesizer); ok {
		return fs.SynthesizeToFile(ctx, text, voice, lang, path)
	}

	data, err := p.tts.Synthesize(ctx, text, voice, lang)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := f.Write(data)
	return int64(n), err
}

// AbortSynthesis cancels in-flight synthesis on collaborators that support
// it (spec §4.7 barge-in has no client-visible analogue, but a stalled
// pipeline abort still needs to release provider-side resources).
func (p *Providers) AbortSynthesis() error {
	if a, ok := p.tts.(Aborter); ok {
		return a.Abort()
	}
	return nil
}

// Logger returns the bundle's logger for callers that need to log under the
// same provider context (e.g. internal/controller).
func (p *Providers) Logger() Logger {
	return p.logger
}

// Names returns each collaborator's self-reported name, surfaced on
// GET /health (spec §6.2).
func (p *Providers) Names() map[string]string {
	return map[string]string{
		"stt": p.stt.Name(),
		"llm": p.llm.Name(),
		"tts": p.tts.Name(),
	}
}
