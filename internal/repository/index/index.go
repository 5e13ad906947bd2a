package index

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/uniqa-cloud/uniqa/internal/db"
	"github.com/uniqa-cloud/uniqa/internal/domain"
)

var vecKeyPrefix = domain.KeyPrefix + "vec:"

// store is the consumer interface for vector persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// snapshot is an immutable view of the index. Readers grab the pointer
// once and never see a partially rebuilt state.
type snapshot struct {
	entries []entry
	builtAt time.Time
}

type entry struct {
	chunk  domain.KnowledgeChunk
	vector []float32
}

// Index serves nearest-neighbour search over knowledge chunk
// embeddings. Rebuilds construct a fresh snapshot and swap it in
// atomically; searches against the old snapshot keep working meanwhile.
// Vectors are persisted content-addressed (hash of the chunk text), so
// a rebuild only embeds chunks whose text actually changed.
type Index struct {
	snap     atomic.Pointer[snapshot]
	store    store
	embedder domain.Embedder
	logger   *zap.Logger
}

// New creates an empty index. Search before the first rebuild returns
// no results rather than an error.
func New(s store, embedder domain.Embedder, logger *zap.Logger) *Index {
	idx := &Index{store: s, embedder: embedder, logger: logger}
	idx.snap.Store(&snapshot{})
	return idx
}

// Size returns the number of chunks in the active snapshot.
func (idx *Index) Size() int {
	return len(idx.snap.Load().entries)
}

// BuiltAt returns when the active snapshot was constructed.
func (idx *Index) BuiltAt() time.Time {
	return idx.snap.Load().builtAt
}

// Search returns the top-k chunks by cosine similarity to the query
// vector, highest first. Equal scores tie-break on ascending chunk ID
// so results are stable across runs.
func (idx *Index) Search(queryVec []float32, k int) []domain.ScoredChunk {
	snap := idx.snap.Load()
	if len(snap.entries) == 0 || k <= 0 {
		return nil
	}

	scored := make([]domain.ScoredChunk, 0, len(snap.entries))
	for _, e := range snap.entries {
		scored = append(scored, domain.ScoredChunk{
			Chunk: e.chunk,
			Score: domain.CosineSimilarity(queryVec, e.vector),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// Rebuild embeds the given chunks and swaps in a new snapshot. Chunks
// whose text is unchanged reuse their persisted vector. A chunk that
// fails to embed aborts the rebuild; the previous snapshot stays live.
func (idx *Index) Rebuild(ctx context.Context, chunks []domain.KnowledgeChunk) error {
	entries := make([]entry, 0, len(chunks))
	embedded := 0
	for _, chunk := range chunks {
		vec, fresh, err := idx.vectorFor(ctx, chunk.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
		}
		if fresh {
			embedded++
		}
		entries = append(entries, entry{chunk: chunk, vector: vec})
	}

	idx.snap.Store(&snapshot{entries: entries, builtAt: time.Now()})
	idx.logger.Info("Index rebuilt",
		zap.Int("chunks", len(entries)),
		zap.Int("embedded", embedded),
		zap.Int("reused", len(entries)-embedded),
	)
	return nil
}

// vectorFor returns the embedding for a text, preferring the persisted
// copy. fresh reports whether the embedder was called.
func (idx *Index) vectorFor(ctx context.Context, text string) ([]float32, bool, error) {
	key := vecKey(text)

	data, err := idx.store.Get(ctx, key)
	if err == nil {
		vec, perr := bytesToVector(data)
		if perr == nil {
			return vec, false, nil
		}
		idx.logger.Warn("Failed to parse persisted vector", zap.String("key", key), zap.Error(perr))
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		idx.logger.Warn("Failed to load persisted vector", zap.String("key", key), zap.Error(err))
	}

	result, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, false, err
	}

	if err := idx.store.Set(ctx, key, vectorToBytes(result.Embedding)); err != nil {
		idx.logger.Warn("Failed to persist vector", zap.String("key", key), zap.Error(err))
	}
	return result.Embedding, true, nil
}

func vecKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return vecKeyPrefix + hex.EncodeToString(h[:])
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
