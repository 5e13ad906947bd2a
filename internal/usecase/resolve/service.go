package resolve

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/uniqa-cloud/uniqa/internal/config"
	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/domain/intent"
	"github.com/uniqa-cloud/uniqa/internal/logger"
	"github.com/uniqa-cloud/uniqa/internal/metrics"
)

// Canned responses for short-circuited intents.
const (
	greetingAnswer = "Xin chào! Tôi là trợ lý ảo của trường. " +
		"Tôi có thể giúp bạn tra cứu lịch học, lịch thi, học phí và các quy định của trường."
	greetingRepeatAnswer = "Tôi có thể giúp gì thêm cho bạn?"
	outOfDomainAnswer    = "Xin lỗi, tôi chỉ hỗ trợ các câu hỏi liên quan đến trường. " +
		"Bạn có thể hỏi về lịch học, lịch thi, học phí hoặc quy định đào tạo."
	cannotAnswer = "Xin lỗi, hiện tại tôi không thể trả lời câu hỏi này. " +
		"Bạn vui lòng thử lại sau."
	timeoutAnswer = "Xin lỗi, câu hỏi này mất quá nhiều thời gian xử lý. " +
		"Bạn vui lòng thử lại sau."
)

// Service is the decision engine: it classifies each query, consults
// the cache, routes misses to the configured resolver and gates cache
// write-back on confidence. Resolver failures degrade into a canned
// answer; only validation errors surface to the caller.
type Service struct {
	cache  Cache
	memory Memory
	embed  Embedder
	rag    RAGResolver
	agent  AgentResolver

	agentEnabled  bool
	threshold     float64
	minConfidence float64
	minAnswerLen  int
	wallBudget    time.Duration
	now           func() time.Time
}

// New creates the decision engine. agent may be nil when agent mode is
// disabled.
func New(
	cache Cache,
	memory Memory,
	embed Embedder,
	rag RAGResolver,
	agent AgentResolver,
	cacheCfg config.CacheConfig,
	agentCfg config.AgentConfig,
	resolverCfg config.ResolverConfig,
) *Service {
	return &Service{
		cache:         cache,
		memory:        memory,
		embed:         embed,
		rag:           rag,
		agent:         agent,
		agentEnabled:  agentCfg.Enabled && agent != nil,
		threshold:     cacheCfg.SimilarityThreshold,
		minConfidence: cacheCfg.MinConfidence,
		minAnswerLen:  cacheCfg.MinAnswerLen,
		wallBudget:    time.Duration(resolverCfg.WallClockBudgetSec) * time.Second,
		now:           time.Now,
	}
}

// Resolve answers one query end to end under the wall-clock budget.
func (s *Service) Resolve(ctx context.Context, raw, sessionID string) (domain.ResolutionResult, error) {
	q, err := domain.NewQuery(raw, sessionID, s.now())
	if err != nil {
		return domain.ResolutionResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.wallBudget)
	defer cancel()

	log := logger.FromContext(ctx)
	it := intent.Classify(q.Normalized)
	start := s.now()

	res := s.resolve(ctx, log, q, it)

	metrics.ResolutionsTotal.WithLabelValues(string(res.Source), string(it)).Inc()
	metrics.ResolutionDuration.WithLabelValues(string(res.Source)).Observe(time.Since(start).Seconds())

	s.remember(ctx, log, q, res)
	return res, nil
}

func (s *Service) resolve(ctx context.Context, log *zap.Logger, q domain.Query, it intent.Intent) domain.ResolutionResult {
	switch it {
	case intent.Greeting:
		return s.greet(ctx, log, q.SessionID)
	case intent.OutOfDomain:
		metrics.CacheLookupsTotal.WithLabelValues("bypass").Inc()
		return domain.ResolutionResult{
			Answer:     outOfDomainAnswer,
			Source:     domain.SourceCache,
			Confidence: 1,
		}
	}

	// Rewrite pronouns against tracked entities before anything keyed
	// on the query text happens, so "Ông ấy" and the explicit name
	// resolve identically.
	if rewritten, err := s.memory.ResolveReferences(ctx, q.SessionID, q.Raw); err == nil && rewritten != q.Raw {
		if rq, qerr := domain.NewQuery(rewritten, q.SessionID, q.ReceivedAt); qerr == nil {
			q = rq
		}
	}

	personal := it == intent.Personal

	var queryVec []float32
	if !personal {
		if emb, err := s.embed.Embed(ctx, q.Normalized); err == nil {
			queryVec = emb.Embedding
		} else {
			log.Warn("Query embedding failed, semantic cache lookup skipped", zap.Error(err))
		}

		if entry, ok := s.cache.LookupExact(ctx, domain.Fingerprint(q.Normalized)); ok {
			metrics.CacheLookupsTotal.WithLabelValues("hit_exact").Inc()
			return cachedResult(entry)
		}
		if queryVec != nil {
			if entry, ok := s.cache.LookupSimilar(ctx, queryVec, it, s.threshold); ok {
				metrics.CacheLookupsTotal.WithLabelValues("hit_semantic").Inc()
				return cachedResult(entry)
			}
		}
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.CacheLookupsTotal.WithLabelValues("bypass").Inc()
	}

	snap, err := s.memory.Snapshot(ctx, q.SessionID)
	if err != nil {
		log.Warn("Memory snapshot failed, resolving without context", zap.Error(err))
		snap = domain.MemorySnapshot{}
	}

	var res domain.ResolutionResult
	if s.agentEnabled {
		res, err = s.agent.Answer(ctx, q, snap)
	} else {
		res, err = s.rag.Answer(ctx, q, queryVec, snap)
	}
	if err != nil {
		return s.degrade(ctx, log, err)
	}

	if s.cacheable(res, personal, queryVec) {
		entry := domain.CacheEntry{
			Fingerprint: domain.Fingerprint(q.Normalized),
			Embedding:   queryVec,
			Answer:      res.Answer,
			Confidence:  res.Confidence,
			Intent:      it,
			Citations:   res.Citations,
			Source:      res.Source,
			CreatedAt:   s.now(),
		}
		if err := s.cache.Store(ctx, entry); err != nil {
			log.Warn("Cache write-back failed", zap.Error(err))
		}
	}
	return res
}

// greet short-circuits greeting intent. The first greeting in a
// session gets the full introduction; later ones a neutral prompt, and
// the flag is never cleared.
func (s *Service) greet(ctx context.Context, log *zap.Logger, sessionID string) domain.ResolutionResult {
	greeted, err := s.memory.HasGreeted(ctx, sessionID)
	if err != nil {
		log.Warn("Greeting flag read failed", zap.Error(err))
	}

	answer := greetingAnswer
	if greeted {
		answer = greetingRepeatAnswer
	} else if err := s.memory.MarkGreeted(ctx, sessionID); err != nil {
		log.Warn("Greeting flag write failed", zap.Error(err))
	}

	metrics.CacheLookupsTotal.WithLabelValues("bypass").Inc()
	return domain.ResolutionResult{
		Answer:     answer,
		Source:     domain.SourceCache,
		Confidence: 1,
	}
}

// degrade converts a resolver failure into a canned user-visible
// answer. The raw error never crosses the boundary.
func (s *Service) degrade(ctx context.Context, log *zap.Logger, err error) domain.ResolutionResult {
	answer := cannotAnswer
	if errors.Is(err, domain.ErrTimeoutExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		answer = timeoutAnswer
	}
	log.Error("Resolution degraded", zap.Error(err))
	return domain.ResolutionResult{
		Answer: answer,
		Source: domain.SourceError,
	}
}

// cacheable gates write-back: only confident, non-personal,
// non-truncated resolver answers with a query embedding are cached.
func (s *Service) cacheable(res domain.ResolutionResult, personal bool, queryVec []float32) bool {
	return !personal &&
		queryVec != nil &&
		!res.Truncated &&
		res.Source != domain.SourceError &&
		res.Confidence >= s.minConfidence &&
		len([]rune(res.Answer)) >= s.minAnswerLen
}

// remember appends the exchange to conversation memory. Best effort:
// memory failures never fail the resolution.
func (s *Service) remember(ctx context.Context, log *zap.Logger, q domain.Query, res domain.ResolutionResult) {
	now := s.now()
	turns := []domain.Turn{
		{Role: domain.RoleUser, Text: q.Raw, At: q.ReceivedAt},
		{Role: domain.RoleAssistant, Text: res.Answer, At: now},
	}
	for _, t := range turns {
		if err := s.memory.Append(ctx, q.SessionID, t); err != nil {
			log.Warn("Memory append failed", zap.Error(err))
			return
		}
	}
}

func cachedResult(e domain.CacheEntry) domain.ResolutionResult {
	return domain.ResolutionResult{
		Answer:     e.Answer,
		Source:     domain.SourceCache,
		Confidence: e.Confidence,
		Citations:  e.Citations,
	}
}
