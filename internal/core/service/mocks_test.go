package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/guillermoBallester/querygate/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func studentSchema() domain.SchemaSnapshot {
	return domain.SchemaSnapshot{
		"student": {{Name: "id", Type: "int"}, {Name: "name", Type: "varchar"}},
	}
}

// --- mock SchemaProvider ---

type mockSchemas struct {
	schema    domain.SchemaSnapshot
	err       error
	calls     int
	databases []string
	comments  map[string]string
}

func (m *mockSchemas) Snapshot(_ context.Context, _ string) (domain.SchemaSnapshot, error) {
	m.calls++
	return m.schema, m.err
}

func (m *mockSchemas) ListDatabases(context.Context) ([]string, error) { return m.databases, m.err }
func (m *mockSchemas) Ping(context.Context) error                      { return m.err }

func (m *mockSchemas) TableComments(context.Context, string) (map[string]string, error) {
	return m.comments, nil
}

// --- mock QueryExecutor ---

type mockExecutor struct {
	calls   []string
	results []*port.QueryResult
	errs    []error
	lastDB  string
}

func (m *mockExecutor) Execute(_ context.Context, database, sql string) (*port.QueryResult, error) {
	i := len(m.calls)
	m.calls = append(m.calls, sql)
	m.lastDB = database
	var res *port.QueryResult
	var err error
	if i < len(m.results) {
		res = m.results[i]
	} else if len(m.results) > 0 {
		res = m.results[len(m.results)-1]
	}
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return res, err
}

// --- recording QueryAuditor ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) Close() error { return nil }

// --- recording Instrumentation ---

type recordingInst struct {
	port.NoopInstrumentation
	decisions []string
	errors    int
	count     int
}

func (r *recordingInst) RecordDecision(_ context.Context, reason string) {
	r.decisions = append(r.decisions, reason)
}
func (r *recordingInst) IncrementQueryErrors(context.Context) { r.errors++ }
func (r *recordingInst) IncrementQueryCount(context.Context)  { r.count++ }

// --- mock SQLGenerator ---

type mockGenerator struct {
	outputs  []string
	err      error
	requests []port.GenerationRequest
}

func (m *mockGenerator) Generate(_ context.Context, req port.GenerationRequest) (string, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	i := min(len(m.requests)-1, len(m.outputs)-1)
	return m.outputs[i], nil
}

// --- in-memory GenerationCache ---

type memCache struct {
	data   map[string]string
	getErr error
	ttl    time.Duration
}

func newMemCache() *memCache { return &memCache{data: map[string]string{}} }

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key, sql string, ttl time.Duration) error {
	c.data[key] = sql
	c.ttl = ttl
	return nil
}
