package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniqa-cloud/uniqa/internal/config"
	"github.com/uniqa-cloud/uniqa/internal/domain"
	"github.com/uniqa-cloud/uniqa/internal/llm"
	"github.com/uniqa-cloud/uniqa/internal/logger"
	"github.com/uniqa-cloud/uniqa/internal/metrics"
)

const agentSystem = "Bạn là trợ lý ảo của trường đại học. Trả lời bằng tiếng Việt. " +
	"Dùng các công cụ được cung cấp để tra cứu thông tin trước khi trả lời; " +
	"khi đã đủ thông tin thì trả lời thẳng, không gọi thêm công cụ."

// truncatedAnswer closes a run that hit the iteration budget without a
// final answer from the model.
const truncatedAnswer = "Xin lỗi, tôi chưa thể trả lời trọn vẹn câu hỏi này. " +
	"Dưới đây là những gì tôi đã tra cứu được:\n"

// chunkRefRe recovers chunk IDs from knowledge tool observations.
var chunkRefRe = regexp.MustCompile(`\[([A-Za-z0-9._-]+)\]`)

// Service runs the multi-tool agent: a bounded loop of tool selection,
// invocation and observation until the model emits a final answer.
type Service struct {
	gen   Generator
	tools ToolProvider

	maxIterations int
	toolTimeout   time.Duration
}

// New creates an agent resolver.
func New(gen Generator, tools ToolProvider, cfg config.AgentConfig) *Service {
	return &Service{
		gen:           gen,
		tools:         tools,
		maxIterations: cfg.MaxIterations,
		toolTimeout:   time.Duration(cfg.ToolTimeoutSec) * time.Second,
	}
}

// Answer resolves a query by letting the model orchestrate tools. Tool
// failures become observations the model can route around; only LLM
// failures abort the run. Exceeding the iteration budget forces a
// best-effort answer flagged truncated.
func (s *Service) Answer(ctx context.Context, q domain.Query, snap domain.MemorySnapshot) (domain.ResolutionResult, error) {
	log := logger.FromContext(ctx)
	trace := &domain.AgentTrace{RunID: uuid.NewString()}

	specs := s.toolSpecs()
	msgs := historyMessages(snap)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: q.Raw})

	var lastText string
	for trace.Iterations = 1; trace.Iterations <= s.maxIterations; trace.Iterations++ {
		gen, err := s.gen.Generate(ctx, llm.GenerateRequest{
			System:   agentSystem,
			Messages: msgs,
			Tools:    specs,
		})
		if err != nil {
			return domain.ResolutionResult{}, fmt.Errorf("agent iteration %d: %w", trace.Iterations, err)
		}

		if len(gen.ToolCalls) == 0 {
			return s.finish(trace, gen.Text, false), nil
		}
		if gen.Text != "" {
			lastText = gen.Text
		}

		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   gen.Text,
			ToolCalls: gen.ToolCalls,
		})
		for _, call := range gen.ToolCalls {
			observation := s.invoke(ctx, trace, call)
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    observation,
			})
		}
	}
	trace.Iterations = s.maxIterations

	log.Warn("Agent run hit iteration budget",
		zap.String("run_id", trace.RunID),
		zap.Int("iterations", s.maxIterations),
	)
	if lastText == "" {
		lastText = truncatedAnswer + observationDigest(trace)
	}
	return s.finish(trace, lastText, true), nil
}

// invoke executes one tool call under the per-call timeout and records
// the invocation in the trace. An error becomes the observation text,
// never a run failure.
func (s *Service) invoke(ctx context.Context, trace *domain.AgentTrace, call llm.ToolCall) string {
	inv := domain.ToolInvocation{
		Tool:  call.Name,
		Input: call.Arguments,
		At:    time.Now(),
	}
	defer func() {
		inv.Latency = time.Since(inv.At)
		trace.Invocations = append(trace.Invocations, inv)
	}()

	tool, ok := s.tools.Get(call.Name)
	if !ok {
		inv.Err = fmt.Sprintf("unknown tool %q", call.Name)
		metrics.ToolInvocationsTotal.WithLabelValues(call.Name, "unknown").Inc()
		return "Lỗi: không có công cụ tên " + call.Name
	}

	tctx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()

	out, err := tool.Execute(tctx, call.Arguments)
	if err != nil {
		terr := domain.NewToolError(call.Name, err)
		inv.Err = terr.Error()
		metrics.ToolInvocationsTotal.WithLabelValues(call.Name, "error").Inc()
		return "Lỗi khi chạy công cụ: " + err.Error()
	}

	inv.Output = out
	metrics.ToolInvocationsTotal.WithLabelValues(call.Name, "ok").Inc()
	return out
}

// finish assembles the result. Citations come from chunk references in
// knowledge tool observations; confidence treats any completed tool
// run as grounding.
func (s *Service) finish(trace *domain.AgentTrace, answer string, truncated bool) domain.ResolutionResult {
	grounded := false
	var citations []string
	seen := make(map[string]struct{})
	for _, inv := range trace.Invocations {
		if inv.Err != "" {
			continue
		}
		grounded = true
		for _, m := range chunkRefRe.FindAllStringSubmatch(inv.Output, -1) {
			if _, ok := seen[m[1]]; !ok {
				seen[m[1]] = struct{}{}
				citations = append(citations, m[1])
			}
		}
	}

	confidence := llm.ScoreAnswer(answer, grounded)
	if truncated && confidence > 0.5 {
		confidence = 0.5
	}
	return domain.ResolutionResult{
		Answer:     answer,
		Source:     domain.SourceAgent,
		Confidence: confidence,
		Citations:  citations,
		Truncated:  truncated,
		Trace:      trace,
	}
}

func (s *Service) toolSpecs() []llm.ToolSpec {
	all := s.tools.All()
	specs := make([]llm.ToolSpec, 0, len(all))
	for _, t := range all {
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return specs
}

func historyMessages(snap domain.MemorySnapshot) []llm.Message {
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
	return msgs
}

func observationDigest(trace *domain.AgentTrace) string {
	var b strings.Builder
	for _, inv := range trace.Invocations {
		if inv.Err != "" || inv.Output == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(inv.Output)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "- (không có kết quả tra cứu nào)"
	}
	return strings.TrimRight(b.String(), "\n")
}
