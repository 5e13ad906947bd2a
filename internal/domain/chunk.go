package domain

// KnowledgeChunk is one indexed unit of institutional knowledge.
// Chunks are produced by the out-of-scope ingestion pipeline and are
// read-only to the resolution core.
type KnowledgeChunk struct {
	ID       string   `json:"id"`
	SourceID string   `json:"source_id"`
	Text     string   `json:"text"`
	Title    string   `json:"title,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ScoredChunk is a retrieval hit with its combined relevance score.
type ScoredChunk struct {
	Chunk KnowledgeChunk
	Score float64
}
