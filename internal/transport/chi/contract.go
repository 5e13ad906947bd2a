package chi

import (
	"context"

	"github.com/uniqa-cloud/uniqa/internal/domain"
	healthuc "github.com/uniqa-cloud/uniqa/internal/usecase/health"
)

// Resolver answers user queries.
type Resolver interface {
	Resolve(ctx context.Context, raw, sessionID string) (domain.ResolutionResult, error)
}

// Ingestor applies knowledge base changes.
type Ingestor interface {
	UpsertChunks(ctx context.Context, batch []domain.KnowledgeChunk) (created, updated int, err error)
	DeleteSource(ctx context.Context, sourceID string) (int, error)
	Invalidate(ctx context.Context, chunkIDs []string) (int, error)
}

// SessionStore clears conversation sessions.
type SessionStore interface {
	Clear(ctx context.Context, sessionID string) error
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
