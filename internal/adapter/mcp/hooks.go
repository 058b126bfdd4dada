package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/guillermoBallester/querygate/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// callState holds per-request timing and span data.
type callState struct {
	start time.Time
	span  trace.Span
}

// outcome classifies a finished tool call for logging.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeRejected
	outcomeError
)

func classify(result any) (outcome, string) {
	r, ok := result.(*mcp.CallToolResult)
	if !ok || !r.IsError {
		return outcomeOK, ""
	}
	text := ""
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			text = tc.Text
		}
	}
	if strings.HasPrefix(text, domain.ErrRejected.Error()) {
		return outcomeRejected, text
	}
	return outcomeError, text
}

// ToolCallHooks creates MCP hooks that log tool calls and optionally record OTel spans/metrics.
// Gatekeeper rejections are logged at WARN; other tool errors at ERROR.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	hooks := &server.Hooks{}
	var calls sync.Map // id -> *callState

	finish := func(id any) (time.Duration, trace.Span) {
		v, ok := calls.LoadAndDelete(id)
		if !ok {
			return 0, nil
		}
		state := v.(*callState)
		return time.Since(state.start), state.span
	}

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		state := &callState{start: time.Now()}

		if tracer != nil {
			_, span := tracer.Start(ctx, "mcp.tool.call",
				trace.WithAttributes(
					attribute.String("mcp.tool", req.Params.Name),
					attribute.String("db.namespace", req.GetString("database", "")),
				),
			)
			state.span = span
		}

		calls.Store(id, state)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		duration, span := finish(id)
		kind, text := classify(result)

		level := slog.LevelInfo
		switch kind {
		case outcomeRejected:
			level = slog.LevelWarn
		case outcomeError:
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("rpc.method", "tools/call"),
			slog.String("mcp.tool", req.Params.Name),
			slog.Duration("duration", duration),
			slog.Bool("error", kind != outcomeOK),
		}
		if text != "" {
			attrs = append(attrs, slog.String("error.message", text))
		}
		logger.LogAttrs(ctx, level, "tool call", attrs...)

		if inst != nil {
			inst.RecordToolDuration(ctx, float64(duration.Milliseconds()))
		}

		if span != nil {
			if kind != outcomeOK {
				span.SetStatus(codes.Error, "tool returned error")
				span.RecordError(fmt.Errorf("tool %s returned error: %s", req.Params.Name, text))
			}
			span.End()
		}
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		duration, span := finish(id)

		if req, ok := message.(*mcp.CallToolRequest); ok {
			logger.LogAttrs(ctx, slog.LevelError, "tool call",
				slog.String("rpc.method", string(method)),
				slog.String("mcp.tool", req.Params.Name),
				slog.Duration("duration", duration),
				slog.Bool("error", true),
				slog.String("error.message", err.Error()),
			)
		}

		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
		}
	})

	return hooks
}
