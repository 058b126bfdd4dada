package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/guillermoBallester/querygate/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAskService(exec *mockExecutor, gen port.SQLGenerator, cache port.GenerationCache, opts AskOptions) *AskService {
	schemas := &mockSchemas{schema: studentSchema(), comments: map[string]string{"student": "enrolled students"}}
	qs := newTestQueryService(schemas, exec, &recordingAuditor{}, nil)
	return NewAskService(qs, gen, cache, testLogger(), opts, nil)
}

func TestAskService_GeneratesAndExecutes(t *testing.T) {
	exec := &mockExecutor{results: []*port.QueryResult{{Columns: []string{"n"}, Rows: []map[string]any{{"n": 3}}}}}
	gen := &mockGenerator{outputs: []string{"```sql\nSELECT count(*) AS n FROM student\n```"}}
	cache := newMemCache()
	svc := newTestAskService(exec, gen, cache, AskOptions{CacheTTL: time.Minute})

	out, err := svc.Ask(context.Background(), "school", "How many students are there?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) AS n FROM student", out.GeneratedSQL)
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, out.CacheHit)
	assert.Equal(t, 3, out.Result.Rows[0]["n"])

	require.Len(t, gen.requests, 1)
	assert.Equal(t, "How many students are there?", gen.requests[0].Question)
	assert.Equal(t, studentSchema(), gen.requests[0].Schema)
	assert.Equal(t, "enrolled students", gen.requests[0].TableDescriptions["student"])

	assert.Len(t, cache.data, 1)
	assert.Equal(t, time.Minute, cache.ttl)
}

func TestAskService_CacheHitSkipsGenerator(t *testing.T) {
	exec := &mockExecutor{results: []*port.QueryResult{{}}}
	gen := &mockGenerator{outputs: []string{"SELECT * FROM student"}}
	cache := newMemCache()
	svc := newTestAskService(exec, gen, cache, AskOptions{})

	_, err := svc.Ask(context.Background(), "", "list students")
	require.NoError(t, err)
	out, err := svc.Ask(context.Background(), "", "  List Students ")
	require.NoError(t, err)

	assert.True(t, out.CacheHit)
	assert.Len(t, gen.requests, 1)
	assert.Len(t, exec.calls, 2)
}

func TestAskService_CachedSQLStillGated(t *testing.T) {
	exec := &mockExecutor{}
	cache := newMemCache()
	cache.data[cacheKey("", "list students", studentSchema())] = "DELETE FROM student"
	svc := newTestAskService(exec, &mockGenerator{outputs: []string{"SELECT 1"}}, cache, AskOptions{})

	_, err := svc.Ask(context.Background(), "", "list students")
	assert.ErrorIs(t, err, domain.ErrRejected)
	assert.Empty(t, exec.calls)
}

func TestAskService_CacheReadErrorFallsBackToGenerator(t *testing.T) {
	exec := &mockExecutor{results: []*port.QueryResult{{}}}
	gen := &mockGenerator{outputs: []string{"SELECT * FROM student"}}
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	svc := newTestAskService(exec, gen, cache, AskOptions{})

	out, err := svc.Ask(context.Background(), "", "list students")
	require.NoError(t, err)
	assert.False(t, out.CacheHit)
	assert.Len(t, gen.requests, 1)
}

func TestAskService_RetriesOnDatabaseError(t *testing.T) {
	exec := &mockExecutor{
		results: []*port.QueryResult{nil, {Columns: []string{"name"}}},
		errs:    []error{errors.New("Unknown column 'nme'")},
	}
	gen := &mockGenerator{outputs: []string{"SELECT nme FROM student", "SELECT name FROM student"}}
	svc := newTestAskService(exec, gen, newMemCache(), AskOptions{MaxAttempts: 2})

	out, err := svc.Ask(context.Background(), "", "student names")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "SELECT name FROM student", out.GeneratedSQL)

	require.Len(t, gen.requests, 2)
	assert.Equal(t, "SELECT nme FROM student", gen.requests[1].PreviousSQL)
	assert.Contains(t, gen.requests[1].PreviousError, "Unknown column")
}

func TestAskService_GivesUpAfterMaxAttempts(t *testing.T) {
	dbErr := errors.New("syntax error")
	exec := &mockExecutor{errs: []error{dbErr, dbErr, dbErr}}
	gen := &mockGenerator{outputs: []string{"SELECT x FROM student"}}
	cache := newMemCache()
	svc := newTestAskService(exec, gen, cache, AskOptions{MaxAttempts: 3})

	out, err := svc.Ask(context.Background(), "", "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, 3, out.Attempts)
	assert.Len(t, exec.calls, 3)
	assert.Empty(t, cache.data, "failed SQL must not be cached")
}

func TestAskService_RejectionIsTerminal(t *testing.T) {
	exec := &mockExecutor{}
	gen := &mockGenerator{outputs: []string{"SELECT password FROM student"}}
	svc := newTestAskService(exec, gen, newMemCache(), AskOptions{MaxAttempts: 3})

	out, err := svc.Ask(context.Background(), "", "show me passwords")
	reason, ok := domain.RejectionReason(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonSensitiveField, reason)
	assert.Equal(t, 1, out.Attempts)
	assert.Len(t, gen.requests, 1)
	assert.Empty(t, exec.calls)
}

func TestAskService_InvalidQuestion(t *testing.T) {
	gen := &mockGenerator{outputs: []string{"SELECT 1"}}
	svc := newTestAskService(&mockExecutor{}, gen, nil, AskOptions{MaxQuestionLength: 10})

	_, err := svc.Ask(context.Background(), "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidQuestion)
	_, err = svc.Ask(context.Background(), "", strings.Repeat("a", 11))
	assert.ErrorIs(t, err, domain.ErrInvalidQuestion)
	assert.Empty(t, gen.requests)
}

func TestAskService_GeneratorError(t *testing.T) {
	genErr := errors.New("rate limited")
	svc := newTestAskService(&mockExecutor{}, &mockGenerator{err: genErr}, nil, AskOptions{})

	_, err := svc.Ask(context.Background(), "", "list students")
	assert.ErrorIs(t, err, genErr)
}

func TestAskService_NoGenerator(t *testing.T) {
	svc := newTestAskService(&mockExecutor{}, nil, nil, AskOptions{})

	_, err := svc.Ask(context.Background(), "", "list students")
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
}

func TestCacheKey(t *testing.T) {
	base := cacheKey("school", "How many?", studentSchema())
	assert.True(t, strings.HasPrefix(base, "querygate:sql:"))
	assert.Equal(t, base, cacheKey("school", " how many? ", studentSchema()))
	assert.NotEqual(t, base, cacheKey("other", "How many?", studentSchema()))

	changed := studentSchema()
	changed["student"] = append(changed["student"], domain.Column{Name: "age", Type: "int"})
	assert.NotEqual(t, base, cacheKey("school", "How many?", changed))
}
