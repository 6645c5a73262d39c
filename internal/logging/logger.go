// Package logging builds the process zap logger and the field conventions
// shared by every component.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is attached to every entry as the "service" field.
const Service = "websum"

// New builds a zap.Logger configured for development or production. Both use
// "ts" as the time key.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.InitialFields = map[string]any{"service": Service}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger (development=%t): %w", development, err)
	}
	return logger, nil
}

// ForJob scopes logger to one job.
func ForJob(logger *zap.Logger, jobID, conversationKey, url string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := []zap.Field{zap.String("job_id", jobID)}
	if conversationKey != "" {
		fields = append(fields, zap.String("conversation_key", conversationKey))
	}
	if url != "" {
		fields = append(fields, zap.String("url", url))
	}
	return logger.With(fields...)
}
