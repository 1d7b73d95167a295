package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init("predict-test", false, nil)
	require.NoError(t, err)

	_, span := otel.Tracer("t").Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}

func TestInit_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init("predict-test", true, &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = Init("predict-test", false, nil) })

	_, span := otel.Tracer("t").Start(context.Background(), "remote.submit")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	require.Contains(t, buf.String(), "remote.submit")
	require.Contains(t, buf.String(), "predict-test")
}
