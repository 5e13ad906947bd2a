package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/uniqa-cloud/uniqa/internal/config"
	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/domain/intent"
	"github.com/uniqa-cloud/uniqa/internal/metrics"
)

// candidateFactor widens the KNN pass so keyword re-ranking has
// something to promote beyond the raw semantic top-k.
const candidateFactor = 4

// Service retrieves knowledge chunks by combining semantic similarity
// with keyword overlap.
type Service struct {
	index Index
	embed Embedder

	topK     int
	minScore float64
	semW     float64
	kwW      float64
}

// New creates a retriever.
func New(index Index, embed Embedder, cfg config.RetrieverConfig) *Service {
	return &Service{
		index:    index,
		embed:    embed,
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
		semW:     cfg.SemanticWeight,
		kwW:      cfg.KeywordWeight,
	}
}

// Search returns the top-k chunks for a query, ordered by combined
// score descending with ties broken by chunk ID. boost terms (context
// keywords from conversation memory) participate in keyword matching
// but do not change the query embedding. An absent or empty index
// yields an empty result, not an error.
func (s *Service) Search(ctx context.Context, query string, queryVec []float32, boost []string) ([]domain.ScoredChunk, error) {
	if s.index.Size() == 0 {
		return nil, nil
	}
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	}()

	if queryVec == nil {
		res, err := s.embed.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w: %w", domain.ErrRetrievalUnavailable, err)
		}
		queryVec = res.Embedding
	}

	candidates := s.index.Search(queryVec, s.topK*candidateFactor)
	if len(candidates) == 0 {
		return nil, nil
	}

	queryTerms := terms(query)
	boostTerms := make(map[string]struct{})
	for _, b := range boost {
		for t := range terms(b) {
			boostTerms[t] = struct{}{}
		}
	}

	rescored := make([]domain.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		kw := keywordOverlap(queryTerms, boostTerms, c.Chunk)
		rescored = append(rescored, domain.ScoredChunk{
			Chunk: c.Chunk,
			Score: s.semW*c.Score + s.kwW*kw,
		})
	}
	sort.Slice(rescored, func(i, j int) bool {
		if rescored[i].Score != rescored[j].Score {
			return rescored[i].Score > rescored[j].Score
		}
		return rescored[i].Chunk.ID < rescored[j].Chunk.ID
	})

	out := rescored[:0]
	for _, c := range rescored {
		if c.Score < s.minScore {
			continue
		}
		out = append(out, c)
		if len(out) == s.topK {
			break
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// keywordOverlap scores how much of the query vocabulary a chunk
// covers, in [0, 1], plus a bonus of up to 0.5 for covering context
// keywords carried over from earlier turns.
func keywordOverlap(queryTerms map[string]struct{}, boostTerms map[string]struct{}, chunk domain.KnowledgeChunk) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	chunkTerms := terms(chunk.Text + " " + chunk.Title + " " + strings.Join(chunk.Tags, " "))

	matched := 0
	for t := range queryTerms {
		if _, ok := chunkTerms[t]; ok {
			matched++
		}
	}
	score := float64(matched) / float64(len(queryTerms))

	if len(boostTerms) > 0 {
		boosted := 0
		for t := range boostTerms {
			if _, inQuery := queryTerms[t]; inQuery {
				continue
			}
			if _, ok := chunkTerms[t]; ok {
				boosted++
			}
		}
		score += 0.5 * float64(boosted) / float64(len(boostTerms))
	}
	return score
}

// terms tokenizes text into a folded lowercase term set. Single-letter
// tokens carry no signal and are dropped.
func terms(text string) map[string]struct{} {
	folded := intent.Fold(strings.ToLower(text))
	out := make(map[string]struct{})
	for _, t := range strings.FieldsFunc(folded, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(t) < 2 {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}
