// Package config binds the process's configuration surface (spec §6.4) into
// a single immutable value built once at startup, the way the teacher's
// main.go reads environment variables up front rather than letting handler
// bodies call os.Getenv ad hoc (spec §9: "no ambient globals leak into
// handler bodies").
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full §6.4 option surface plus the provider-selection knobs
// the teacher's main.go already exposed via environment variables.
type Config struct {
	Host string `mapstructure:"HOST" validate:"required"`
	Port int    `mapstructure:"PORT" validate:"required,gt=0,lt=65536"`

	WSToken string `mapstructure:"WS_TOKEN" validate:"required"`
	TempDir string `mapstructure:"TEMP_DIR" validate:"required"`

	ChunkSizeBytes         int     `mapstructure:"CHUNK_SIZE_BYTES" validate:"required,gt=0"`
	MinRecordDurationSec   float64 `mapstructure:"MIN_RECORD_DURATION_SEC" validate:"gt=0"`
	MaxRerecordAttempts    int     `mapstructure:"MAX_RERECORD_ATTEMPTS" validate:"gte=0"`
	PlaybackReadyTimeoutSec int    `mapstructure:"PLAYBACK_READY_TIMEOUT_SEC" validate:"gt=0"`
	ChunkArrivalTimeoutSec  int    `mapstructure:"CHUNK_ARRIVAL_TIMEOUT_SEC" validate:"gt=0"`
	SessionGraceSec         int    `mapstructure:"SESSION_GRACE_SEC" validate:"gt=0"`
	MaxSessionDiskMB        int    `mapstructure:"MAX_SESSION_DISK_MB" validate:"gt=0"`

	STTConfidenceThreshold float64 `mapstructure:"STT_CONFIDENCE_THRESHOLD" validate:"gte=0,lte=1"`
	STTSampleRate          int     `mapstructure:"STT_SAMPLE_RATE" validate:"required,gt=0"`

	Voice    string `mapstructure:"VOICE"`
	Language string `mapstructure:"LANGUAGE"`

	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Provider selection, following the teacher's main.go env-driven switch.
	STTProvider string `mapstructure:"STT_PROVIDER"`
	LLMProvider string `mapstructure:"LLM_PROVIDER"`

	GroqAPIKey       string `mapstructure:"GROQ_API_KEY"`
	OpenAIAPIKey     string `mapstructure:"OPENAI_API_KEY"`
	AnthropicAPIKey  string `mapstructure:"ANTHROPIC_API_KEY"`
	GoogleAPIKey     string `mapstructure:"GOOGLE_API_KEY"`
	DeepgramAPIKey   string `mapstructure:"DEEPGRAM_API_KEY"`
	AssemblyAIAPIKey string `mapstructure:"ASSEMBLYAI_API_KEY"`
	LokutorAPIKey    string `mapstructure:"LOKUTOR_API_KEY" validate:"required"`

	TTSFormat          string `mapstructure:"TTS_FORMAT"`
	MaxContextMessages int    `mapstructure:"MAX_CONTEXT_MESSAGES"`
	EventLogCapacity   int    `mapstructure:"EVENT_LOG_CAPACITY"`
	AckEveryNChunks    int    `mapstructure:"ACK_EVERY_N_CHUNKS"`
	SeqGapTolerance    int    `mapstructure:"SEQ_GAP_TOLERANCE"`
	MaxRecordingBytes  int64  `mapstructure:"MAX_RECORDING_BYTES"`
	CollaboratorTimeoutSec int `mapstructure:"COLLABORATOR_TIMEOUT_SEC"`
}

// Defaults mirrors spec §6.4's literal defaults.
func Defaults() Config {
	return Config{
		Host:                    "0.0.0.0",
		Port:                    8080,
		TempDir:                 "/tmp/voice-gateway",
		ChunkSizeBytes:          16000,
		MinRecordDurationSec:    0.5,
		MaxRerecordAttempts:     2,
		PlaybackReadyTimeoutSec: 5,
		ChunkArrivalTimeoutSec:  5,
		SessionGraceSec:         30,
		MaxSessionDiskMB:        100,
		STTConfidenceThreshold:  0.5,
		STTSampleRate:           16000,
		Voice:                   "F1",
		Language:                "en",
		LogLevel:                "info",
		STTProvider:             "groq",
		LLMProvider:             "groq",
		TTSFormat:               "pcm",
		MaxContextMessages:      8,
		EventLogCapacity:        64,
		AckEveryNChunks:         4,
		SeqGapTolerance:         10,
		MaxRecordingBytes:       50 * 1024 * 1024,
		CollaboratorTimeoutSec:  60,
	}
}

var validate = validator.New()

// Load reads a .env file (if present, teacher's godotenv.Load pattern),
// binds the process environment over the defaults via viper, validates the
// result, and returns a single immutable Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		// Matches the teacher's main.go: absence of .env is not fatal.
	}

	cfg := Defaults()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults seeds viper with the struct's defaults so AutomaticEnv only
// overrides fields an operator actually set.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("HOST", cfg.Host)
	v.SetDefault("PORT", cfg.Port)
	v.SetDefault("TEMP_DIR", cfg.TempDir)
	v.SetDefault("CHUNK_SIZE_BYTES", cfg.ChunkSizeBytes)
	v.SetDefault("MIN_RECORD_DURATION_SEC", cfg.MinRecordDurationSec)
	v.SetDefault("MAX_RERECORD_ATTEMPTS", cfg.MaxRerecordAttempts)
	v.SetDefault("PLAYBACK_READY_TIMEOUT_SEC", cfg.PlaybackReadyTimeoutSec)
	v.SetDefault("CHUNK_ARRIVAL_TIMEOUT_SEC", cfg.ChunkArrivalTimeoutSec)
	v.SetDefault("SESSION_GRACE_SEC", cfg.SessionGraceSec)
	v.SetDefault("MAX_SESSION_DISK_MB", cfg.MaxSessionDiskMB)
	v.SetDefault("STT_CONFIDENCE_THRESHOLD", cfg.STTConfidenceThreshold)
	v.SetDefault("STT_SAMPLE_RATE", cfg.STTSampleRate)
	v.SetDefault("VOICE", cfg.Voice)
	v.SetDefault("LANGUAGE", cfg.Language)
	v.SetDefault("LOG_LEVEL", cfg.LogLevel)
	v.SetDefault("STT_PROVIDER", cfg.STTProvider)
	v.SetDefault("LLM_PROVIDER", cfg.LLMProvider)
	v.SetDefault("TTS_FORMAT", cfg.TTSFormat)
	v.SetDefault("MAX_CONTEXT_MESSAGES", cfg.MaxContextMessages)
	v.SetDefault("EVENT_LOG_CAPACITY", cfg.EventLogCapacity)
	v.SetDefault("ACK_EVERY_N_CHUNKS", cfg.AckEveryNChunks)
	v.SetDefault("SEQ_GAP_TOLERANCE", cfg.SeqGapTolerance)
	v.SetDefault("MAX_RECORDING_BYTES", cfg.MaxRecordingBytes)
	v.SetDefault("COLLABORATOR_TIMEOUT_SEC", cfg.CollaboratorTimeoutSec)

	for _, key := range []string{
		"WS_TOKEN", "GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"GOOGLE_API_KEY", "DEEPGRAM_API_KEY", "ASSEMBLYAI_API_KEY", "LOKUTOR_API_KEY",
	} {
		_ = v.BindEnv(key)
	}
}
