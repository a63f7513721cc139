package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type MockSTTProvider struct {
	transcript Transcript
	err        error
}

func (m *MockSTTProvider) Transcribe(ctx context.Context, audio []byte, sampleRate int, lang Language) (Transcript, error) {
	return m.transcript, m.err
}

func (m *MockSTTProvider) Name() string { return "MockSTT" }

type MockLLMProvider struct {
	completeResult string
	completeErr    error
	lastImage      *ImageRef
}

func (m *MockLLMProvider) Complete(ctx context.Context, messages []Message, image *ImageRef) (string, error) {
	m.lastImage = image
	return m.completeResult, m.completeErr
}

func (m *MockLLMProvider) Name() string { return "MockLLM" }

type MockTTSProvider struct {
	synthesizeResult []byte
	synthesizeErr    error
	streamErr        error
	aborted          bool
}

func (m *MockTTSProvider) Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error) {
	return m.synthesizeResult, m.synthesizeErr
}

func (m *MockTTSProvider) StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error {
	if m.streamErr != nil {
		return m.streamErr
	}
	return onChunk(m.synthesizeResult)
}

func (m *MockTTSProvider) Abort() error {
	m.aborted = true
	return nil
}

func (m *MockTTSProvider) Name() string { return "MockTTS" }

func TestProvidersCreation(t *testing.T) {
	stt := &MockSTTProvider{}
	llm := &MockLLMProvider{}
	tts := &MockTTSProvider{}

	p := New(stt, llm, tts)
	if p == nil {
		t.Fatal("expected providers bundle to be created")
	}

	names := p.Names()
	if names["stt"] != "MockSTT" {
		t.Errorf("expected stt name MockSTT, got %s", names["stt"])
	}
	if names["llm"] != "MockLLM" {
		t.Errorf("expected llm name MockLLM, got %s", names["llm"])
	}
	if names["tts"] != "MockTTS" {
		t.Errorf("expected tts name MockTTS, got %s", names["tts"])
	}
}

func TestTranscribe(t *testing.T) {
	stt := &MockSTTProvider{transcript: Transcript{Text: "hello", Verdict: VerdictOK}}
	p := New(stt, &MockLLMProvider{}, &MockTTSProvider{})

	tr, err := p.Transcribe(context.Background(), []byte{0xFF, 0xFE}, 16000, LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "hello" || tr.Verdict != VerdictOK {
		t.Errorf("unexpected transcript: %+v", tr)
	}
}

func TestTranscribeCollaboratorError(t *testing.T) {
	stt := &MockSTTProvider{err: ErrTranscriptionFailed}
	p := New(stt, &MockLLMProvider{}, &MockTTSProvider{})

	tr, err := p.Transcribe(context.Background(), []byte{0xFF}, 16000, LanguageEn)
	if err == nil {
		t.Fatal("expected error")
	}
	if tr.Verdict != VerdictCollaborator {
		t.Errorf("expected collaborator_error verdict, got %s", tr.Verdict)
	}
}

func TestGenerateResponseWithImage(t *testing.T) {
	llm := &MockLLMProvider{completeResult: "a description"}
	p := New(&MockSTTProvider{}, llm, &MockTTSProvider{})

	img := &ImageRef{Bytes: []byte{1, 2, 3}, MimeType: "image/jpeg"}
	resp, err := p.GenerateResponse(context.Background(), []Message{{Role: "user", Content: "what is this?"}}, img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "a description" {
		t.Errorf("unexpected response: %s", resp)
	}
	if llm.lastImage != img {
		t.Error("expected image to be forwarded to collaborator")
	}
}

func TestSynthesizeStream(t *testing.T) {
	tts := &MockTTSProvider{synthesizeResult: []byte{0x01, 0x02}}
	p := New(&MockSTTProvider{}, &MockLLMProvider{}, tts)

	var chunks [][]byte
	err := p.SynthesizeStream(context.Background(), "hi", VoiceF1, LanguageEn, func(c []byte) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSynthesizeToFileFallsBackToInMemory(t *testing.T) {
	tts := &MockTTSProvider{synthesizeResult: []byte{0xAA, 0xBB, 0xCC}}
	p := New(&MockSTTProvider{}, &MockLLMProvider{}, tts)

	path := filepath.Join(t.TempDir(), "reply.pcm")
	written, err := p.SynthesizeToFile(context.Background(), "hi", VoiceF1, LanguageEn, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != 3 {
		t.Errorf("expected 3 bytes written, got %d", written)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read spill file: %v", err)
	}
	if len(data) != 3 {
		t.Errorf("expected 3 bytes on disk, got %d", len(data))
	}
}

func TestAbortSynthesis(t *testing.T) {
	tts := &MockTTSProvider{}
	p := New(&MockSTTProvider{}, &MockLLMProvider{}, tts)

	if err := p.AbortSynthesis(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tts.aborted {
		t.Error("expected Abort to be forwarded to collaborator supporting it")
	}
}
