package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the encoder provider.
	FieldProvider = "embedding_provider"
	// FieldModel is the structured log field key for the encoder model.
	FieldModel = "embedding_model"
	// FieldRequestID is the structured log field key for the HTTP request id.
	FieldRequestID = "request_id"
)

// WithFields attaches the provided fields to the logger, defaulting to a
// no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// EncoderFields describes the encoder in use. Empty values are omitted.
func EncoderFields(provider, model string) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if v := strings.TrimSpace(provider); v != "" {
		fields = append(fields, zap.String(FieldProvider, v))
	}
	if v := strings.TrimSpace(model); v != "" {
		fields = append(fields, zap.String(FieldModel, v))
	}
	return fields
}

// WithEncoder attaches the encoder fields to the provided logger.
func WithEncoder(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, EncoderFields(provider, model)...)
}
