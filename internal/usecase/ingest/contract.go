package ingest

import (
	"context"

	"github.com/uniqa-cloud/uniqa/internal/domain"
)

// ChunkRepo is the chunk persistence contract.
type ChunkRepo interface {
	Upsert(ctx context.Context, chunk domain.KnowledgeChunk) (bool, error)
	DeleteBySource(ctx context.Context, sourceID string) ([]string, error)
	All(ctx context.Context) ([]domain.KnowledgeChunk, error)
}

// Index rebuilds the embedding index from the chunk store.
type Index interface {
	Rebuild(ctx context.Context, chunks []domain.KnowledgeChunk) error
	Size() int
}

// Cache receives invalidation when underlying knowledge changes.
type Cache interface {
	InvalidateByChunks(ctx context.Context, chunkIDs []string) int
	Clear(ctx context.Context) error
}
