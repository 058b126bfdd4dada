package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/guillermoBallester/querygate/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordingInst struct {
	port.NoopInstrumentation
	toolCalls int
}

func (r *recordingInst) RecordToolDuration(context.Context, float64) { r.toolCalls++ }

func lastLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var rec map[string]any
	for i := len(lines) - 1; i >= 0; i-- {
		require.NoError(t, json.Unmarshal([]byte(lines[i]), &rec))
		if rec["msg"] == "tool call" {
			return rec
		}
	}
	t.Fatal("no tool call log line")
	return nil
}

func TestToolCallHooks(t *testing.T) {
	tests := map[string]struct {
		sql       string
		execErr   error
		wantLevel string
		wantErr   bool
	}{
		"accepted": {sql: "SELECT id FROM student", wantLevel: "INFO"},
		"rejected": {sql: "DROP TABLE student", wantLevel: "WARN", wantErr: true},
		"failed":   {sql: "SELECT id FROM student", execErr: fmt.Errorf("boom"), wantLevel: "ERROR", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			exporter := tracetest.NewInMemoryExporter()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
			defer func() { _ = tp.Shutdown(context.Background()) }()
			inst := &recordingInst{}

			deps := newDeps(&mockSchemas{schema: schoolSchema()}, &mockExecutor{result: &port.QueryResult{}, err: tt.execErr}, nil)
			deps.Logger = logger
			s := NewServer("test", deps, tp.Tracer("test"), inst)

			callTool(t, s, "query", map[string]any{"sql": tt.sql, "database": "school"})

			rec := lastLogLine(t, &buf)
			assert.Equal(t, tt.wantLevel, rec["level"])
			assert.Equal(t, "query", rec["mcp.tool"])
			assert.Equal(t, tt.wantErr, rec["error"])
			assert.Equal(t, 1, inst.toolCalls)

			spans := exporter.GetSpans()
			require.NotEmpty(t, spans)
			var found bool
			for _, span := range spans {
				if span.Name != "mcp.tool.call" {
					continue
				}
				found = true
				if tt.wantErr {
					assert.Equal(t, codes.Error, span.Status.Code)
				} else {
					assert.Equal(t, codes.Unset, span.Status.Code)
				}
			}
			assert.True(t, found, "mcp.tool.call span recorded")
		})
	}
}
