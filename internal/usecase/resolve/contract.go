package resolve

import (
	"context"

	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/domain/intent"
)

// Cache is the response cache contract.
type Cache interface {
	LookupExact(ctx context.Context, fingerprint string) (domain.CacheEntry, bool)
	LookupSimilar(ctx context.Context, embedding []float32, it intent.Intent, threshold float64) (domain.CacheEntry, bool)
	Store(ctx context.Context, e domain.CacheEntry) error
}

// Memory is the conversation memory contract.
type Memory interface {
	Snapshot(ctx context.Context, sessionID string) (domain.MemorySnapshot, error)
	Append(ctx context.Context, sessionID string, turn domain.Turn) error
	HasGreeted(ctx context.Context, sessionID string) (bool, error)
	MarkGreeted(ctx context.Context, sessionID string) error
	ResolveReferences(ctx context.Context, sessionID, text string) (string, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// RAGResolver answers from retrieved knowledge.
type RAGResolver interface {
	Answer(ctx context.Context, q domain.Query, queryVec []float32, snap domain.MemorySnapshot) (domain.ResolutionResult, error)
}

// AgentResolver answers by orchestrating tools.
type AgentResolver interface {
	Answer(ctx context.Context, q domain.Query, snap domain.MemorySnapshot) (domain.ResolutionResult, error)
}
