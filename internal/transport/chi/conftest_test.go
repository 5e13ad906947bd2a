package chi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/tools"
	healthuc "github.com/uniqa-cloud/uniqa/internal/usecase/health"
)

type mockResolver struct {
	res       domain.ResolutionResult
	err       error
	lastQuery string
	lastSess  string
	lastToken string
}

func (m *mockResolver) Resolve(ctx context.Context, raw, sessionID string) (domain.ResolutionResult, error) {
	m.lastQuery = raw
	m.lastSess = sessionID
	m.lastToken = tools.StudentTokenFromContext(ctx)
	return m.res, m.err
}

type mockIngestor struct {
	created, updated int
	removed          int
	invalidated      int
	err              error
	lastBatch        []domain.KnowledgeChunk
	lastSource       string
	lastInvalidation []string
	cleared          bool
}

func (m *mockIngestor) UpsertChunks(_ context.Context, batch []domain.KnowledgeChunk) (int, int, error) {
	m.lastBatch = batch
	return m.created, m.updated, m.err
}

func (m *mockIngestor) DeleteSource(_ context.Context, sourceID string) (int, error) {
	m.lastSource = sourceID
	return m.removed, m.err
}

func (m *mockIngestor) Invalidate(_ context.Context, chunkIDs []string) (int, error) {
	m.lastInvalidation = chunkIDs
	if len(chunkIDs) == 0 {
		m.cleared = true
	}
	return m.invalidated, m.err
}

type mockSessions struct {
	cleared []string
	err     error
}

func (m *mockSessions) Clear(_ context.Context, sessionID string) error {
	m.cleared = append(m.cleared, sessionID)
	return m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

type fixture struct {
	resolver *mockResolver
	ingest   *mockIngestor
	sessions *mockSessions
	health   *mockHealth
	handler  http.Handler
}

func newFixture(apiKeys []string) *fixture {
	f := &fixture{
		resolver: &mockResolver{},
		ingest:   &mockIngestor{},
		sessions: &mockSessions{},
		health: &mockHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
		}},
	}
	srv := NewServer(f.resolver, f.ingest, f.sessions, f.health, zap.NewNop())
	f.handler = srv.Router(apiKeys)
	return f
}
