// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestStartAction(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartAction(context.Background(), "slack", "send_message")
	End(span, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "action: slack.send_message", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestEndRecordsError(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartDelivery(context.Background(), "wh-1", "workflow.completed")
	End(span, errors.New("gave up after 4 attempts"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "gave up after 4 attempts", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
}

func TestEndWithStatus(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartRefresh(context.Background(), "github", "conn-1")
	EndWithStatus(span, false, "reconnect required")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestNewProvider(t *testing.T) {
	disabled, err := NewProvider(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, disabled.Shutdown(context.Background()))

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	p, err := NewProvider(context.Background(), Config{
		Enabled:     true,
		Exporter:    "stdout",
		ServiceName: "switchboard",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := StartAction(context.Background(), "github", "create_issue")
	End(span, nil)

	require.NoError(t, p.ForceFlush(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "action: github.create_issue")

	_, err = NewProvider(context.Background(), Config{Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}
