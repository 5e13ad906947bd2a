package memory

import (
	"context"
	"time"

	"github.com/uniqa-cloud/uniqa/internal/llm"
)

// Store is the consumer interface for session persistence (ISP).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Summarizer folds old turns into a running summary.
type Summarizer interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (llm.Generation, error)
}
