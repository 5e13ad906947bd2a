package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/uniqa-cloud/uniqa/internal/domain"
)

// Retriever is the retrieval capability the knowledge tool wraps.
type Retriever interface {
	Search(ctx context.Context, query string, queryVec []float32, boost []string) ([]domain.ScoredChunk, error)
}

// KnowledgeSearch exposes the RAG retriever as an agent tool, so the
// agent can consult institutional documents mid-run.
type KnowledgeSearch struct {
	retriever Retriever
}

// NewKnowledgeSearch creates the knowledge search tool.
func NewKnowledgeSearch(retriever Retriever) *KnowledgeSearch {
	return &KnowledgeSearch{retriever: retriever}
}

func (t *KnowledgeSearch) Name() string { return "tra_cuu_tai_lieu" }

func (t *KnowledgeSearch) Description() string {
	return "Tìm kiếm trong tài liệu, quy chế và thông báo của trường. " +
		"Dùng khi câu hỏi liên quan đến quy định, thủ tục, thông tin chung."
}

func (t *KnowledgeSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Câu truy vấn tiếng Việt"}
		},
		"required": ["query"]
	}`)
}

// Execute runs a retrieval and renders the chunks with their IDs in
// brackets, so the agent's citations can be recovered from the output.
func (t *KnowledgeSearch) Execute(ctx context.Context, args string) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("query is empty")
	}

	chunks, err := t.retriever.Search(ctx, in.Query, nil, nil)
	if err != nil {
		return "", fmt.Errorf("search knowledge: %w", err)
	}
	if len(chunks) == 0 {
		return "Không tìm thấy tài liệu liên quan.", nil
	}

	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "[%s] %s\n", c.Chunk.ID, c.Chunk.Text)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
