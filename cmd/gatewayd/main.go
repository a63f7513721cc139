// Command gatewayd runs the voice-gateway HTTP/websocket process: it loads
// configuration, wires the configured collaborator providers, and serves
// the endpoints spec §6.2 names until asked to shut down.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lokutor-ai/voice-gateway/internal/config"
	"github.com/lokutor-ai/voice-gateway/internal/download"
	"github.com/lokutor-ai/voice-gateway/internal/imageintake"
	"github.com/lokutor-ai/voice-gateway/internal/logging"
	"github.com/lokutor-ai/voice-gateway/internal/server"
	"github.com/lokutor-ai/voice-gateway/internal/session"
	"github.com/lokutor-ai/voice-gateway/pkg/media"
	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
	llmProvider "github.com/lokutor-ai/voice-gateway/pkg/providers/llm"
	sttProvider "github.com/lokutor-ai/voice-gateway/pkg/providers/stt"
	ttsProvider "github.com/lokutor-ai/voice-gateway/pkg/providers/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	stt, err := buildSTT(cfg)
	if err != nil {
		log.Fatalf("build STT provider: %v", err)
	}
	llm, err := buildLLM(cfg)
	if err != nil {
		log.Fatalf("build LLM provider: %v", err)
	}
	if cfg.LokutorAPIKey == "" {
		log.Fatal("LOKUTOR_API_KEY must be set")
	}
	tts := ttsProvider.NewLokutorTTS(cfg.LokutorAPIKey)

	providers := orchestrator.NewWithLogger(stt, llm, tts, logger)

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		log.Fatalf("create temp dir %s: %v", cfg.TempDir, err)
	}

	sessions := session.NewStore(int64(cfg.MaxSessionDiskMB)<<20, cfg.MaxContextMessages, cfg.EventLogCapacity)
	downloads := download.NewStore(time.Duration(cfg.SessionGraceSec) * time.Second)
	images := imageintake.New(sessions, media.DefaultResizeConfig(), logger)

	srv := server.New(cfg, sessions, downloads, providers, images, logger)

	sweeper := server.NewSweeper(cfg.TempDir, 0, sessions, downloads, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper.Start(ctx)
	defer sweeper.Stop()

	httpServer := &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler: srv.Engine(),
	}

	go func() {
		logger.Info("gatewayd listening", "addr", httpServer.Addr, "stt", stt.Name(), "llm", llm.Name())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// qualityConfigurable is the optional capability an STT adapter implements to
// accept the too-short/low-confidence cutoffs spec §6.4 documents
// (MIN_RECORD_DURATION_SEC/STT_CONFIDENCE_THRESHOLD). Mirrors the teacher's
// type-asserted `interface{ SetSampleRate(int) }` check in cmd/agent/main.go.
type qualityConfigurable interface {
	SetQualityThresholds(minRecordDurationMS int64, lowConfidenceThreshold float64)
}

// buildSTT mirrors the teacher's env-driven provider switch (cmd/agent/main.go),
// generalized from a single hardcoded fallback to every adapter spec §6.4 lists.
func buildSTT(cfg config.Config) (orchestrator.STTProvider, error) {
	stt, err := selectSTT(cfg)
	if err != nil {
		return nil, err
	}
	if q, ok := stt.(qualityConfigurable); ok {
		minRecordDurationMS := int64(cfg.MinRecordDurationSec * 1000)
		q.SetQualityThresholds(minRecordDurationMS, cfg.STTConfidenceThreshold)
	}
	return stt, nil
}

func selectSTT(cfg config.Config) (orchestrator.STTProvider, error) {
	switch cfg.STTProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, missingKey("OPENAI_API_KEY", "openai STT")
		}
		return sttProvider.NewOpenAISTT(cfg.OpenAIAPIKey, "whisper-1"), nil
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			return nil, missingKey("DEEPGRAM_API_KEY", "deepgram STT")
		}
		return sttProvider.NewDeepgramSTT(cfg.DeepgramAPIKey), nil
	case "assemblyai":
		if cfg.AssemblyAIAPIKey == "" {
			return nil, missingKey("ASSEMBLYAI_API_KEY", "assemblyai STT")
		}
		return sttProvider.NewAssemblyAISTT(cfg.AssemblyAIAPIKey), nil
	case "groq":
		fallthrough
	default:
		if cfg.GroqAPIKey == "" {
			return nil, missingKey("GROQ_API_KEY", "groq STT")
		}
		return sttProvider.NewGroqSTT(cfg.GroqAPIKey, "whisper-large-v3-turbo"), nil
	}
}

// buildLLM mirrors the same teacher switch for the Generator Adapter.
func buildLLM(cfg config.Config) (orchestrator.LLMProvider, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, missingKey("OPENAI_API_KEY", "openai LLM")
		}
		return llmProvider.NewOpenAILLM(cfg.OpenAIAPIKey, "gpt-4o"), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, missingKey("ANTHROPIC_API_KEY", "anthropic LLM")
		}
		return llmProvider.NewAnthropicLLM(cfg.AnthropicAPIKey, "claude-3-5-sonnet-20241022"), nil
	case "google":
		if cfg.GoogleAPIKey == "" {
			return nil, missingKey("GOOGLE_API_KEY", "google LLM")
		}
		return llmProvider.NewGoogleLLM(cfg.GoogleAPIKey, "gemini-1.5-flash"), nil
	case "groq":
		fallthrough
	default:
		if cfg.GroqAPIKey == "" {
			return nil, missingKey("GROQ_API_KEY", "groq LLM")
		}
		return llmProvider.NewGroqLLM(cfg.GroqAPIKey, "llama-3.3-70b-versatile"), nil
	}
}

func missingKey(envVar, provider string) error {
	return fmt.Errorf("%s must be set for %s", envVar, provider)
}
