package resolve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/uniqa-cloud/uniqa/internal/domain"
)

func ragAnswer(text string, confidence float64) domain.ResolutionResult {
	return domain.ResolutionResult{
		Answer:     text,
		Source:     domain.SourceRAG,
		Confidence: confidence,
		Citations:  []string{"c1"},
	}
}

func TestResolve_ValidationErrorSurfaces(t *testing.T) {
	f := newFixture(false)

	_, err := f.svc.Resolve(context.Background(), "   ", "s1")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	_, err = f.svc.Resolve(context.Background(), "câu hỏi", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty session, got %v", err)
	}
}

func TestResolve_GreetingOncePerSession(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	first, err := f.svc.Resolve(ctx, "xin chào", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Answer != greetingAnswer {
		t.Fatalf("first greeting = %q", first.Answer)
	}

	second, err := f.svc.Resolve(ctx, "chào bạn", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Answer != greetingRepeatAnswer {
		t.Fatalf("repeat greeting = %q, want the non-greeting fallback", second.Answer)
	}

	// A different session greets fresh.
	other, err := f.svc.Resolve(ctx, "xin chào", "s2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Answer != greetingAnswer {
		t.Fatal("greeting flag leaked across sessions")
	}

	if f.rag.calls != 0 {
		t.Fatal("greetings must not reach the resolver")
	}
}

func TestResolve_CacheExactHitSkipsResolver(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	f.rag.res = ragAnswer("Học phí học kỳ một là 12 triệu đồng.", 0.9)

	if _, err := f.svc.Resolve(ctx, "học phí bao nhiêu", "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.rag.calls != 1 {
		t.Fatalf("first resolve should call the resolver once, got %d", f.rag.calls)
	}

	// Seed the mock's exact table from what was stored.
	if len(f.cache.stored) != 1 {
		t.Fatalf("expected one cache write, got %d", len(f.cache.stored))
	}
	if got, want := f.cache.stored[0].Fingerprint, domain.Fingerprint("học phí bao nhiêu"); got != want {
		t.Fatalf("stored fingerprint = %q, want the normalized-query fingerprint %q", got, want)
	}
	f.cache.exact[f.cache.stored[0].Fingerprint] = f.cache.stored[0]

	res, err := f.svc.Resolve(ctx, "học phí bao nhiêu", "s2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != domain.SourceCache {
		t.Fatalf("source = %s, want cache", res.Source)
	}
	if f.rag.calls != 1 {
		t.Fatal("cache hit must not invoke the resolver")
	}
}

func TestResolve_FingerprintIgnoresDiacriticsAndSpacing(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	f.rag.res = ragAnswer("Học phí học kỳ một là 12 triệu đồng.", 0.9)
	if _, err := f.svc.Resolve(ctx, "học phí bao nhiêu", "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.cache.exact[f.cache.stored[0].Fingerprint] = f.cache.stored[0]

	// Same query, stripped diacritics and extra whitespace.
	res, err := f.svc.Resolve(ctx, "  HOC  PHI bao nhieu ", "s2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != domain.SourceCache {
		t.Fatalf("folded variant missed the cache, source = %s", res.Source)
	}
}

func TestResolve_SemanticHit(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	f.cache.similar = &domain.CacheEntry{
		Fingerprint: "other",
		Answer:      "Học phí học kỳ một là 12 triệu đồng.",
		Confidence:  0.9,
	}

	res, err := f.svc.Resolve(ctx, "chi phí học tập một kỳ", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != domain.SourceCache {
		t.Fatalf("source = %s, want cache", res.Source)
	}
	if f.rag.calls != 0 {
		t.Fatal("semantic hit must not invoke the resolver")
	}
}

func TestResolve_PersonalQueryBypassesCache(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	f.rag.res = ragAnswer("Điểm trung bình của bạn là 8.2, rất tốt.", 0.9)

	res, err := f.svc.Resolve(ctx, "điểm của tôi học kỳ này", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != domain.SourceRAG {
		t.Fatalf("source = %s, want rag", res.Source)
	}
	if f.cache.exactCalls != 0 || f.cache.similarCalls != 0 {
		t.Fatal("personal queries must not consult the cache")
	}
	if len(f.cache.stored) != 0 {
		t.Fatal("personal answers must never be cached")
	}
}

func TestResolve_LowConfidenceNotCached(t *testing.T) {
	f := newFixture(false)
	f.rag.res = ragAnswer("Có thể là như vậy nhưng tôi không chắc chắn lắm.", 0.3)

	if _, err := f.svc.Resolve(context.Background(), "quy chế tốt nghiệp", "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.cache.stored) != 0 {
		t.Fatal("low-confidence answers must not be cached")
	}
}

func TestResolve_TruncatedAgentAnswerNotCached(t *testing.T) {
	f := newFixture(true)
	f.agent.res = domain.ResolutionResult{
		Answer:     "Đây là những gì tôi tìm được cho câu hỏi của bạn.",
		Source:     domain.SourceAgent,
		Confidence: 0.8,
		Truncated:  true,
	}

	if _, err := f.svc.Resolve(context.Background(), "quy chế thi học kỳ", "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.cache.stored) != 0 {
		t.Fatal("truncated agent answers must not be cached")
	}
}

func TestResolve_AgentModeRoutesToAgent(t *testing.T) {
	f := newFixture(true)
	f.agent.res = domain.ResolutionResult{
		Answer:     "Tuần sau bạn học Toán cao cấp vào thứ hai.",
		Source:     domain.SourceAgent,
		Confidence: 0.8,
	}

	res, err := f.svc.Resolve(context.Background(), "quy định đăng ký môn học của trường", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.agent.calls != 1 || f.rag.calls != 0 {
		t.Fatalf("routing = agent %d, rag %d; want agent only", f.agent.calls, f.rag.calls)
	}
	if res.Source != domain.SourceAgent {
		t.Fatalf("source = %s, want agent", res.Source)
	}
	if len(f.cache.stored) != 1 {
		t.Fatal("confident agent answer should be cached")
	}
}

func TestResolve_ResolverFailureDegrades(t *testing.T) {
	f := newFixture(false)
	f.rag.err = domain.ErrProviderUnavailable

	res, err := f.svc.Resolve(context.Background(), "học phí học kỳ này", "s1")
	if err != nil {
		t.Fatalf("resolver failure must not surface, got %v", err)
	}
	if res.Source != domain.SourceError {
		t.Fatalf("source = %s, want error", res.Source)
	}
	if res.Answer != cannotAnswer {
		t.Fatalf("degraded answer = %q", res.Answer)
	}
	if len(f.cache.stored) != 0 {
		t.Fatal("degraded answers must not be cached")
	}
}

func TestResolve_TimeoutDegradesWithTimeoutAnswer(t *testing.T) {
	f := newFixture(false)
	f.rag.err = domain.ErrTimeoutExceeded

	res, err := f.svc.Resolve(context.Background(), "học phí học kỳ này", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Answer != timeoutAnswer {
		t.Fatalf("answer = %q, want timeout wording", res.Answer)
	}
	if res.Source != domain.SourceError {
		t.Fatalf("source = %s, want error", res.Source)
	}
}

func TestResolve_PronounRewriteReachesResolver(t *testing.T) {
	f := newFixture(false)
	f.memory.rewritten = "thầy Hiệp dạy môn gì của trường"
	f.rag.res = ragAnswer("Thầy Hiệp dạy môn Toán cao cấp ở trường.", 0.9)

	if _, err := f.svc.Resolve(context.Background(), "ông ấy dạy môn gì của trường", "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(f.rag.lastQ.Raw, "Hiệp") {
		t.Fatalf("resolver saw %q, want the rewritten query", f.rag.lastQ.Raw)
	}
}

func TestResolve_ExchangeAppendedToMemory(t *testing.T) {
	f := newFixture(false)
	f.rag.res = ragAnswer("Học phí học kỳ một là 12 triệu đồng.", 0.9)

	if _, err := f.svc.Resolve(context.Background(), "học phí bao nhiêu", "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.memory.turns) != 2 {
		t.Fatalf("memory got %d turns, want user + assistant", len(f.memory.turns))
	}
	if f.memory.turns[0].Role != domain.RoleUser || f.memory.turns[1].Role != domain.RoleAssistant {
		t.Fatalf("turn roles = %s, %s", f.memory.turns[0].Role, f.memory.turns[1].Role)
	}
}

func TestResolve_OutOfDomain(t *testing.T) {
	f := newFixture(false)

	res, err := f.svc.Resolve(context.Background(), "giá vàng thế giới đang tăng", "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Answer != outOfDomainAnswer {
		t.Fatalf("answer = %q", res.Answer)
	}
	if f.rag.calls != 0 {
		t.Fatal("out-of-domain queries must not reach the resolver")
	}
}
