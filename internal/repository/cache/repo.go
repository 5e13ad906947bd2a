package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/uniqa-cloud/uniqa/internal/db"
	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/domain/intent"
)

var respKeyPrefix = domain.KeyPrefix + "resp:"

// store is the consumer interface for cache persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo is the response cache: an in-memory table for lookups with
// write-through persistence, so entries survive restarts up to their
// TTL. The store owns hard expiry; the in-memory side checks TTL
// lazily and drops stale entries as it meets them.
type Repo struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry

	store    store
	ttl      time.Duration
	entGauge prometheus.Gauge
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a response cache. entGauge may be nil.
func New(s store, ttl time.Duration, entGauge prometheus.Gauge, logger *zap.Logger) *Repo {
	return &Repo{
		entries:  make(map[string]domain.CacheEntry),
		store:    s,
		ttl:      ttl,
		entGauge: entGauge,
		logger:   logger,
		now:      time.Now,
	}
}

// Load warms the in-memory table from persisted entries. Entries that
// fail to decode are skipped, not fatal.
func (r *Repo) Load(ctx context.Context) error {
	keys, err := r.store.Scan(ctx, respKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("scan cache entries: %w", err)
	}

	loaded := 0
	r.mu.Lock()
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, db.ErrKeyNotFound) {
				r.logger.Warn("Failed to load cache entry", zap.String("key", key), zap.Error(err))
			}
			continue
		}
		var e domain.CacheEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			r.logger.Warn("Failed to decode cache entry", zap.String("key", key), zap.Error(err))
			continue
		}
		if e.Expired(r.now(), r.ttl) {
			continue
		}
		r.entries[e.Fingerprint] = e
		loaded++
	}
	r.mu.Unlock()

	r.setGauge()
	r.logger.Info("Response cache warmed", zap.Int("entries", loaded))
	return nil
}

// LookupExact returns the entry with the given fingerprint if present
// and fresh. A stale entry is evicted on the spot.
func (r *Repo) LookupExact(ctx context.Context, fingerprint string) (domain.CacheEntry, bool) {
	r.mu.RLock()
	e, ok := r.entries[fingerprint]
	r.mu.RUnlock()
	if !ok {
		return domain.CacheEntry{}, false
	}
	if e.Expired(r.now(), r.ttl) {
		r.evict(ctx, fingerprint)
		return domain.CacheEntry{}, false
	}
	r.touch(fingerprint)
	return e, true
}

// LookupSimilar returns the best fresh entry whose stored query
// embedding is within threshold cosine similarity of the given one.
// Only entries with the same classified intent are eligible; a
// near-identical phrasing of a different kind of question must not
// reuse the answer. Score ties break on ascending fingerprint.
func (r *Repo) LookupSimilar(ctx context.Context, embedding []float32, it intent.Intent, threshold float64) (domain.CacheEntry, bool) {
	now := r.now()

	var best domain.CacheEntry
	var bestScore float64
	var stale []string
	found := false

	r.mu.RLock()
	for fp, e := range r.entries {
		if e.Expired(now, r.ttl) {
			stale = append(stale, fp)
			continue
		}
		if e.Intent != it {
			continue
		}
		score := domain.CosineSimilarity(embedding, e.Embedding)
		if score < threshold {
			continue
		}
		if !found || score > bestScore || (score == bestScore && fp < best.Fingerprint) {
			best, bestScore, found = e, score, true
		}
	}
	r.mu.RUnlock()

	for _, fp := range stale {
		r.evict(ctx, fp)
	}
	if !found {
		return domain.CacheEntry{}, false
	}
	r.touch(best.Fingerprint)
	return best, true
}

// Store writes an entry to the table and through to the store with the
// cache TTL. A persistence failure is logged, not returned: the
// in-memory entry still serves until restart.
func (r *Repo) Store(ctx context.Context, e domain.CacheEntry) error {
	if e.Fingerprint == "" {
		return fmt.Errorf("cache entry fingerprint is empty: %w", domain.ErrValidation)
	}

	r.mu.Lock()
	r.entries[e.Fingerprint] = e
	r.mu.Unlock()
	r.setGauge()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := r.store.SetWithTTL(ctx, respKey(e.Fingerprint), data, r.ttl); err != nil {
		r.logger.Warn("Failed to persist cache entry", zap.String("fingerprint", e.Fingerprint), zap.Error(err))
	}
	return nil
}

// InvalidateByChunks removes every entry citing any of the given chunk
// IDs. Returns the number of entries removed.
func (r *Repo) InvalidateByChunks(ctx context.Context, chunkIDs []string) int {
	if len(chunkIDs) == 0 {
		return 0
	}
	ids := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		ids[id] = struct{}{}
	}

	r.mu.RLock()
	var doomed []string
	for fp, e := range r.entries {
		if e.Cites(ids) {
			doomed = append(doomed, fp)
		}
	}
	r.mu.RUnlock()

	for _, fp := range doomed {
		r.evict(ctx, fp)
	}
	return len(doomed)
}

// Clear drops every entry, in memory and persisted.
func (r *Repo) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.entries = make(map[string]domain.CacheEntry)
	r.mu.Unlock()
	r.setGauge()

	keys, err := r.store.Scan(ctx, respKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("scan cache entries: %w", err)
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("clear cache entries: %w", err)
	}
	return nil
}

// Len returns the number of in-memory entries, including any not yet
// lazily expired.
func (r *Repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Repo) touch(fingerprint string) {
	r.mu.Lock()
	if e, ok := r.entries[fingerprint]; ok {
		e.HitCount++
		r.entries[fingerprint] = e
	}
	r.mu.Unlock()
}

func (r *Repo) evict(ctx context.Context, fingerprint string) {
	r.mu.Lock()
	delete(r.entries, fingerprint)
	r.mu.Unlock()
	r.setGauge()

	if err := r.store.Del(ctx, respKey(fingerprint)); err != nil {
		r.logger.Warn("Failed to delete cache entry", zap.String("fingerprint", fingerprint), zap.Error(err))
	}
}

func (r *Repo) setGauge() {
	if r.entGauge != nil {
		r.entGauge.Set(float64(r.Len()))
	}
}

func respKey(fingerprint string) string {
	return respKeyPrefix + fingerprint
}
