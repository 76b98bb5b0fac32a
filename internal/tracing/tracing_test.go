// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{Enabled: true, Writer: &buf, RunID: "run-1"}, nil)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "epoch")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	assert.Contains(t, buf.String(), `"Name": "epoch"`)
	assert.Contains(t, buf.String(), "run-1")
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, span := otel.Tracer("test").Start(context.Background(), "epoch")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"}, nil)
	assert.Error(t, err)
}

func TestInitOTLP(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: true, Exporter: "otlp", Endpoint: "127.0.0.1:4317"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, otel.GetTextMapPropagator())
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}
