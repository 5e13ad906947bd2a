package chunks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/uniqa-cloud/uniqa/internal/db"
	"github.com/uniqa-cloud/uniqa/internal/domain"
)

var chunkKeyPrefix = domain.KeyPrefix + "chunk:"

// store is the consumer interface for chunk persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo persists knowledge chunks in the key-value store.
type Repo struct {
	store store
}

// New creates a chunk repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Upsert creates or updates a chunk. Returns true if created.
func (r *Repo) Upsert(ctx context.Context, chunk domain.KnowledgeChunk) (bool, error) {
	if chunk.ID == "" {
		return false, fmt.Errorf("chunk id is empty: %w", domain.ErrValidation)
	}
	key := chunkKey(chunk.ID)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check exists %s: %w", key, err)
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return false, fmt.Errorf("marshal chunk: %w", err)
	}
	if err := r.store.Set(ctx, key, data); err != nil {
		return false, fmt.Errorf("set %s: %w", key, err)
	}
	return !exists, nil
}

// Get returns a chunk by ID.
func (r *Repo) Get(ctx context.Context, id string) (domain.KnowledgeChunk, error) {
	raw, err := r.store.Get(ctx, chunkKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.KnowledgeChunk{}, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
		}
		return domain.KnowledgeChunk{}, fmt.Errorf("get chunk %s: %w", id, err)
	}

	var chunk domain.KnowledgeChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return domain.KnowledgeChunk{}, fmt.Errorf("unmarshal chunk %s: %w", id, err)
	}
	return chunk, nil
}

// Delete removes a chunk.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := chunkKey(id)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
	}
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// DeleteBySource removes every chunk belonging to a source document.
// Returns the IDs of the removed chunks.
func (r *Repo) DeleteBySource(ctx context.Context, sourceID string) ([]string, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	var keys []string
	for _, c := range all {
		if c.SourceID == sourceID {
			removed = append(removed, c.ID)
			keys = append(keys, chunkKey(c.ID))
		}
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return nil, fmt.Errorf("del source %s chunks: %w", sourceID, err)
	}
	return removed, nil
}

// All returns every stored chunk ordered by ID. The deterministic order
// makes index rebuilds reproducible.
func (r *Repo) All(ctx context.Context) ([]domain.KnowledgeChunk, error) {
	keys, err := r.store.Scan(ctx, chunkKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	sort.Strings(keys)

	out := make([]domain.KnowledgeChunk, 0, len(keys))
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				continue // deleted between scan and get
			}
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		var chunk domain.KnowledgeChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", key, err)
		}
		out = append(out, chunk)
	}
	return out, nil
}

func chunkKey(id string) string {
	return chunkKeyPrefix + id
}
