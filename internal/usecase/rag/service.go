package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/llm"
	"github.com/uniqa-cloud/uniqa/internal/usecase/memory"
)

const answerSystem = "Bạn là trợ lý ảo của trường đại học, trả lời sinh viên và cán bộ bằng tiếng Việt. " +
	"Chỉ dùng thông tin trong phần TÀI LIỆU dưới đây. Nếu tài liệu không đủ để trả lời, " +
	"hãy nói rõ là bạn không tìm thấy thông tin, tuyệt đối không bịa."

// InsufficientKnowledgeAnswer is returned when retrieval finds nothing
// relevant enough to ground an answer on.
const InsufficientKnowledgeAnswer = "Xin lỗi, tôi không tìm thấy thông tin về câu hỏi này " +
	"trong tài liệu của trường. Bạn có thể hỏi lại cụ thể hơn hoặc liên hệ phòng đào tạo."

// insufficientConfidence is deliberately below any cache gate so the
// fallback answer is never cached.
const insufficientConfidence = 0.2

// Service answers queries by grounding generation on retrieved chunks.
type Service struct {
	retriever Retriever
	gen       Generator
}

// New creates a RAG resolver.
func New(retriever Retriever, gen Generator) *Service {
	return &Service{retriever: retriever, gen: gen}
}

// Answer retrieves context for the query and routes on the retrieval
// confidence tier. Zero relevant chunks or a very-low best score
// produce the fixed insufficient-knowledge answer; a high-tier hit on a
// curated QA chunk answers directly from that chunk; everything in
// between generates a grounded answer with citations for the chunks it
// actually draws on.
func (s *Service) Answer(ctx context.Context, q domain.Query, queryVec []float32, snap domain.MemorySnapshot) (domain.ResolutionResult, error) {
	chunks, err := s.retriever.Search(ctx, q.Normalized, queryVec, memory.ContextKeywords(snap))
	if err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("retrieve: %w", err)
	}

	if len(chunks) == 0 {
		return domain.ResolutionResult{
			Answer:     InsufficientKnowledgeAnswer,
			Source:     domain.SourceRAG,
			Confidence: insufficientConfidence,
		}, nil
	}

	best := chunks[0]
	switch llm.TierOf(best.Score) {
	case llm.TierVeryLow:
		return domain.ResolutionResult{
			Answer:     InsufficientKnowledgeAnswer,
			Source:     domain.SourceRAG,
			Confidence: insufficientConfidence,
		}, nil
	case llm.TierHigh, llm.TierVeryHigh:
		if isQAPair(best.Chunk) {
			return domain.ResolutionResult{
				Answer:     best.Chunk.Text,
				Source:     domain.SourceRAG,
				Confidence: best.Score,
				Citations:  []string{best.Chunk.ID},
			}, nil
		}
	}

	gen, err := s.gen.Generate(ctx, llm.GenerateRequest{
		System:   answerSystem,
		Messages: buildMessages(q, snap, chunks),
	})
	if err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("generate: %w", err)
	}

	citations := citedChunks(gen.Text, chunks)
	return domain.ResolutionResult{
		Answer:     gen.Text,
		Source:     domain.SourceRAG,
		Confidence: llm.ScoreAnswer(gen.Text, len(citations) > 0),
		Citations:  citations,
	}, nil
}

// qaTag marks chunks that are curated question-answer pairs. Their
// text is already a complete answer, so a high-confidence retrieval
// hit can skip generation entirely.
const qaTag = "qa"

func isQAPair(c domain.KnowledgeChunk) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, qaTag) {
			return true
		}
	}
	return false
}

// buildMessages lays out the prompt: summary, verbatim turns, the
// retrieved documents and finally the question.
func buildMessages(q domain.Query, snap domain.MemorySnapshot, chunks []domain.ScoredChunk) []llm.Message {
	var msgs []llm.Message

	if snap.Summary != "" {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Tóm tắt hội thoại trước đó: " + snap.Summary,
		})
	}
	for _, t := range snap.Turns {
		role := llm.RoleUser
		if t.Role == domain.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}

	var doc strings.Builder
	doc.WriteString("TÀI LIỆU:\n")
	for i, c := range chunks {
		fmt.Fprintf(&doc, "[%d] %s\n%s\n\n", i+1, c.Chunk.Title, c.Chunk.Text)
	}
	doc.WriteString("CÂU HỎI: ")
	doc.WriteString(q.Raw)

	return append(msgs, llm.Message{Role: llm.RoleUser, Content: doc.String()})
}

// citedChunks reports which chunks the answer plausibly draws on, by
// token overlap between the answer and each chunk. Best effort: an
// empty result only means no overlap was detectable, not that the
// answer is ungrounded.
func citedChunks(answer string, chunks []domain.ScoredChunk) []string {
	answerTerms := tokenSet(answer)
	var cited []string
	for _, c := range chunks {
		chunkTerms := tokenSet(c.Chunk.Text)
		if len(chunkTerms) == 0 {
			continue
		}
		overlap := 0
		for t := range chunkTerms {
			if _, ok := answerTerms[t]; ok {
				overlap++
			}
		}
		// At least a fifth of the chunk's vocabulary shows up.
		if overlap*5 >= len(chunkTerms) {
			cited = append(cited, c.Chunk.ID)
		}
	}
	return cited
}

func tokenSet(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(text)) {
		t = strings.Trim(t, ".,!?;:()\"'")
		if len(t) < 2 {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}
