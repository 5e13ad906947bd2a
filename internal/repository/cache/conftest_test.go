package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uniqa-cloud/uniqa/internal/db"
	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/domain/intent"
)

// memStore is a map-backed store for tests. TTLs are recorded, not
// enforced; expiry behaviour is driven through the repo clock.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func newTestRepo(ttl time.Duration) (*Repo, *memStore) {
	ms := newMemStore()
	return New(ms, ttl, nil, zap.NewNop()), ms
}

func entry(fp string, it intent.Intent, emb []float32, citations ...string) domain.CacheEntry {
	return domain.CacheEntry{
		Fingerprint: fp,
		Embedding:   emb,
		Answer:      "answer for " + fp,
		Confidence:  0.8,
		Intent:      it,
		Citations:   citations,
		Source:      domain.SourceRAG,
		CreatedAt:   time.Now(),
	}
}
