package domain

import "time"

// Source tells which resolution path produced an answer.
type Source string

const (
	SourceCache Source = "cache"
	SourceRAG   Source = "rag"
	SourceAgent Source = "agent"
	SourceError Source = "error"
)

// ToolInvocation is an immutable audit record of one tool call during an
// agent run.
type ToolInvocation struct {
	Tool    string        `json:"tool"`
	Input   string        `json:"input"`
	Output  string        `json:"output,omitempty"`
	Err     string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
	At      time.Time     `json:"at"`
}

// AgentTrace is the ordered sequence of tool invocations of one agent run.
type AgentTrace struct {
	RunID       string           `json:"run_id"`
	Invocations []ToolInvocation `json:"invocations"`
	Iterations  int              `json:"iterations"`
	Truncated   bool             `json:"truncated"`
}

// ResolutionResult is the only value returned across the core's boundary.
type ResolutionResult struct {
	Answer     string      `json:"answer"`
	Source     Source      `json:"source"`
	Confidence float64     `json:"confidence"`
	Citations  []string    `json:"citations,omitempty"`
	Truncated  bool        `json:"truncated,omitempty"`
	Trace      *AgentTrace `json:"trace,omitempty"`
}
