package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLoggerWithTrace_StampsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	ctx := WithRequestID(context.Background(), "req-123")
	LoggerWithTrace(ctx).Info().Msg("test")

	var v map[string]any
	if err := json.Unmarshal(buf.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v["request_id"] != "req-123" {
		t.Errorf("expected request_id field, got %v", v["request_id"])
	}
}

func TestLoggerWithTrace_NoRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	LoggerWithTrace(context.Background()).Info().Msg("test")

	var v map[string]any
	if err := json.Unmarshal(buf.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := v["request_id"]; ok {
		t.Errorf("expected no request_id field, got %v", v["request_id"])
	}
}

func TestRequestIDFromContext_AbsentAndNil(t *testing.T) {
	if _, ok := RequestIDFromContext(context.Background()); ok {
		t.Errorf("expected no request id on a plain context")
	}
	if _, ok := RequestIDFromContext(nil); ok {
		t.Errorf("expected no request id on a nil context")
	}
}

func TestLoggerWithTrace_NilContext(t *testing.T) {
	l := LoggerWithTrace(nil)
	if l == nil {
		t.Fatal("expected a non-nil logger for nil context")
	}
}
