package port

import (
	"context"
	"time"
)

// GenerationCache stores generated SQL by key. Get reports a miss with ok=false
// and a nil error.
type GenerationCache interface {
	Get(ctx context.Context, key string) (sql string, ok bool, err error)
	Set(ctx context.Context, key, sql string, ttl time.Duration) error
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (string, bool, error)        { return "", false, nil }
func (NoopCache) Set(context.Context, string, string, time.Duration) error { return nil }
