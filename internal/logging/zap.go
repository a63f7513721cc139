// Package logging provides the production implementation of
// orchestrator.Logger. The teacher's adapters and orchestrator only ever
// depend on the narrow Logger interface, so this package is the single
// place go.uber.org/zap is imported (grounded on iamprashant-voice-ai's
// go.mod, which lists zap for exactly this role).
package logging

import (
	"go.uber.org/zap"

	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

// ZapLogger adapts a *zap.SugaredLogger to orchestrator.Logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ orchestrator.Logger = (*ZapLogger)(nil)

// New builds a ZapLogger at the given level ("debug", "info", "warn",
// "error"). An unrecognized level falls back to info.
func New(level string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()

	parsed, err := zap.ParseAtomicLevel(level)
	if err == nil {
		cfg.Level = parsed
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &ZapLogger{sugar: logger.Sugar()}, nil
}

// NewDevelopment builds a ZapLogger tuned for local runs: colorized,
// human-readable console output instead of JSON.
func NewDevelopment() (*ZapLogger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: logger.Sugar()}, nil
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) { z.sugar.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...interface{})  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...interface{})  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...interface{}) { z.sugar.Errorw(msg, args...) }

// Sync flushes any buffered log entries. Call it once during shutdown.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
