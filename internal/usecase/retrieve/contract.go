package retrieve

import (
	"context"

	"github.com/uniqa-cloud/uniqa/internal/domain"
)

// Index serves nearest-neighbour search over the knowledge base.
type Index interface {
	Search(queryVec []float32, k int) []domain.ScoredChunk
	Size() int
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
