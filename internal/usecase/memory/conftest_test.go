package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uniqa-cloud/uniqa/internal/config"
	"github.com/uniqa-cloud/uniqa/internal/db"
	"github.com/uniqa-cloud/uniqa/internal/llm"
)

// memStore is a map-backed store for tests.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
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

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
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

// mockSummarizer returns a fixed summary or an error.
type mockSummarizer struct {
	text  string
	err   error
	calls int
}

func (m *mockSummarizer) Generate(_ context.Context, _ llm.GenerateRequest) (llm.Generation, error) {
	m.calls++
	if m.err != nil {
		return llm.Generation{}, m.err
	}
	return llm.Generation{Text: m.text}, nil
}

func newTestService(window int, gen Summarizer) *Service {
	cfg := config.MemoryConfig{Window: window, SessionTTLSec: 3600, MaxSummaryChars: 4000}
	return New(newMemStore(), gen, cfg, zap.NewNop())
}
