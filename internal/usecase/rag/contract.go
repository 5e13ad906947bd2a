package rag

import (
	"context"

	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/llm"
)

// Retriever finds knowledge chunks relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, queryVec []float32, boost []string) ([]domain.ScoredChunk, error)
}

// Generator produces answers through the LLM gateway.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (llm.Generation, error)
}
