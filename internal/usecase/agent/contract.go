package agent

import (
	"context"

	"github.com/uniqa-cloud/uniqa/internal/llm"
	"github.com/uniqa-cloud/uniqa/internal/tools"
)

// Generator produces tool selections and answers through the LLM
// gateway.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (llm.Generation, error)
}

// ToolProvider exposes the registered tools.
type ToolProvider interface {
	Get(name string) (tools.Tool, bool)
	All() []tools.Tool
}
