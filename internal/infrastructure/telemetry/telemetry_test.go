package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTracer_DisabledReturnsNoop(t *testing.T) {
	tracer := NewTracer(false)
	require.NotNil(t, tracer)

	ctx, span := StartDispatch(context.Background(), tracer, "openai")
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	RecordAttempt(span, 1, "anthropic", "claude-sonnet-4-20250514")
	End(span, nil)
	End(span, errors.New("boom"))
}

func TestNewProvider_RegistersGlobalTracerProvider(t *testing.T) {
	tp := NewProvider("relay-test")
	require.NotNil(t, tp)
	require.NoError(t, tp.Shutdown(context.Background()))
}
