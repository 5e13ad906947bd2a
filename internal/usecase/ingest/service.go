package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/logger"
	"github.com/uniqa-cloud/uniqa/internal/metrics"
)

// Service applies knowledge changes: it persists chunks, rebuilds the
// index snapshot and invalidates cached answers that cite what changed.
// Readers keep serving the previous snapshot during a rebuild.
type Service struct {
	chunks ChunkRepo
	index  Index
	cache  Cache
}

// New creates an ingestion service.
func New(chunks ChunkRepo, index Index, cache Cache) *Service {
	return &Service{chunks: chunks, index: index, cache: cache}
}

// UpsertChunks stores a batch of chunks, rebuilds the index and drops
// cached answers citing any updated chunk. Returns created and updated
// counts.
func (s *Service) UpsertChunks(ctx context.Context, batch []domain.KnowledgeChunk) (created, updated int, err error) {
	if len(batch) == 0 {
		return 0, 0, fmt.Errorf("empty chunk batch: %w", domain.ErrValidation)
	}

	var touched []string
	for _, c := range batch {
		if strings.TrimSpace(c.Text) == "" {
			return 0, 0, fmt.Errorf("chunk %q has empty text: %w", c.ID, domain.ErrValidation)
		}
		isNew, uerr := s.chunks.Upsert(ctx, c)
		if uerr != nil {
			return 0, 0, fmt.Errorf("upsert chunk %s: %w", c.ID, uerr)
		}
		if isNew {
			created++
		} else {
			updated++
			touched = append(touched, c.ID)
		}
	}

	if err := s.rebuild(ctx); err != nil {
		return created, updated, err
	}

	invalidated := s.cache.InvalidateByChunks(ctx, touched)
	logger.FromContext(ctx).Info("Knowledge batch ingested",
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("cache_invalidated", invalidated),
	)
	return created, updated, nil
}

// DeleteSource removes every chunk of a source document and drops the
// cached answers citing them.
func (s *Service) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	if strings.TrimSpace(sourceID) == "" {
		return 0, fmt.Errorf("source id is empty: %w", domain.ErrValidation)
	}

	removed, err := s.chunks.DeleteBySource(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete source %s: %w", sourceID, err)
	}
	if len(removed) == 0 {
		return 0, nil
	}

	if err := s.rebuild(ctx); err != nil {
		return len(removed), err
	}
	s.cache.InvalidateByChunks(ctx, removed)
	return len(removed), nil
}

// Invalidate drops cached answers citing the given chunks. With no
// ids it clears the whole cache, which bulk imports use where
// per-chunk invalidation would touch everything anyway.
func (s *Service) Invalidate(ctx context.Context, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		if err := s.cache.Clear(ctx); err != nil {
			return 0, fmt.Errorf("clear cache: %w", err)
		}
		return 0, nil
	}
	return s.cache.InvalidateByChunks(ctx, chunkIDs), nil
}

// Reload rebuilds the index from the chunk store. Called at startup.
func (s *Service) Reload(ctx context.Context) error {
	return s.rebuild(ctx)
}

func (s *Service) rebuild(ctx context.Context) error {
	all, err := s.chunks.All(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if err := s.index.Rebuild(ctx, all); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	metrics.IndexChunks.Set(float64(s.index.Size()))
	return nil
}
