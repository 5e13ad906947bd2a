package resolve

import (
	"context"

	"github.com/uniqa-cloud/uniqa/internal/config"
	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/domain/intent"
)

type mockCache struct {
	exact   map[string]domain.CacheEntry
	similar *domain.CacheEntry
	stored  []domain.CacheEntry

	exactCalls   int
	similarCalls int
}

func newMockCache() *mockCache {
	return &mockCache{exact: make(map[string]domain.CacheEntry)}
}

func (m *mockCache) LookupExact(_ context.Context, fp string) (domain.CacheEntry, bool) {
	m.exactCalls++
	e, ok := m.exact[fp]
	return e, ok
}

func (m *mockCache) LookupSimilar(_ context.Context, _ []float32, _ intent.Intent, _ float64) (domain.CacheEntry, bool) {
	m.similarCalls++
	if m.similar != nil {
		return *m.similar, true
	}
	return domain.CacheEntry{}, false
}

func (m *mockCache) Store(_ context.Context, e domain.CacheEntry) error {
	m.stored = append(m.stored, e)
	return nil
}

type mockMemory struct {
	greeted   map[string]bool
	turns     []domain.Turn
	rewritten string
	snap      domain.MemorySnapshot
}

func newMockMemory() *mockMemory {
	return &mockMemory{greeted: make(map[string]bool)}
}

func (m *mockMemory) Snapshot(_ context.Context, _ string) (domain.MemorySnapshot, error) {
	return m.snap, nil
}

func (m *mockMemory) Append(_ context.Context, _ string, t domain.Turn) error {
	m.turns = append(m.turns, t)
	return nil
}

func (m *mockMemory) HasGreeted(_ context.Context, id string) (bool, error) {
	return m.greeted[id], nil
}

func (m *mockMemory) MarkGreeted(_ context.Context, id string) error {
	m.greeted[id] = true
	return nil
}

func (m *mockMemory) ResolveReferences(_ context.Context, _, text string) (string, error) {
	if m.rewritten != "" {
		return m.rewritten, nil
	}
	return text, nil
}

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

type mockResolver struct {
	res   domain.ResolutionResult
	err   error
	calls int
	lastQ domain.Query
}

func (m *mockResolver) Answer(_ context.Context, q domain.Query, _ []float32, _ domain.MemorySnapshot) (domain.ResolutionResult, error) {
	m.calls++
	m.lastQ = q
	return m.res, m.err
}

type mockAgent struct {
	res   domain.ResolutionResult
	err   error
	calls int
}

func (m *mockAgent) Answer(_ context.Context, _ domain.Query, _ domain.MemorySnapshot) (domain.ResolutionResult, error) {
	m.calls++
	return m.res, m.err
}

type fixture struct {
	cache  *mockCache
	memory *mockMemory
	embed  *mockEmbedder
	rag    *mockResolver
	agent  *mockAgent
	svc    *Service
}

func newFixture(agentEnabled bool) *fixture {
	f := &fixture{
		cache:  newMockCache(),
		memory: newMockMemory(),
		embed:  &mockEmbedder{vec: []float32{1, 0}},
		rag:    &mockResolver{},
		agent:  &mockAgent{},
	}
	f.svc = New(
		f.cache, f.memory, f.embed, f.rag, f.agent,
		config.CacheConfig{TTLSec: 300, SimilarityThreshold: 0.92, MinConfidence: 0.6, MinAnswerLen: 10},
		config.AgentConfig{Enabled: agentEnabled, MaxIterations: 6, ToolTimeoutSec: 15},
		config.ResolverConfig{WallClockBudgetSec: 60},
	)
	return f
}
