package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/uniqa-cloud/uniqa/internal/config"
	"github.com/uniqa-cloud/uniqa/internal/domain"
)

// Message is one turn of a chat prompt.
type Message struct {
	Role    string
	Content string
	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string
	ToolCalls  []ToolCall
}

// Chat roles understood by the gateway.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
	RoleTool      = openai.ChatMessageRoleTool
)

// ToolSpec describes a callable tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// GenerateRequest is a chat completion request.
type GenerateRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float32
	MaxTokens   int
}

// Generation is the model's reply.
type Generation struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	PromptTokens int
	TotalTokens  int
}

// Recorder receives gateway telemetry. Implemented by internal/metrics.
type Recorder interface {
	RecordLLMRequest(provider, op, status string, duration time.Duration)
	RecordKeyRotation(provider string)
}

type nopRecorder struct{}

func (nopRecorder) RecordLLMRequest(string, string, string, time.Duration) {}
func (nopRecorder) RecordKeyRotation(string)                               {}

// completer is the slice of the OpenAI-compatible client the gateway
// uses. *openai.Client satisfies it; tests substitute stubs.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// endpoint is one provider with its credential pool. Each key gets its
// own client because the client binds the auth token at construction.
type endpoint struct {
	name    string
	model   string
	pool    *keyPool
	clients []completer
	limiter *rate.Limiter
}

// Gateway is the single entry point to LLM providers. It owns key
// rotation, bounded retry with exponential backoff, per-provider rate
// limiting and prompt token budgeting.
type Gateway struct {
	generate *endpoint
	embed    *endpoint

	embedModel     string
	embedDims      int
	maxAttempts    int
	backoffInitial time.Duration
	backoffMax     time.Duration
	tokenBudget    int
	temperature    float32
	requestTimeout time.Duration

	rec   Recorder
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway builds a gateway from config. The recorder may be nil.
func NewGateway(cfg config.LLMConfig, rec Recorder) (*Gateway, error) {
	if rec == nil {
		rec = nopRecorder{}
	}

	cooldown := time.Duration(cfg.KeyCooldownSec) * time.Second

	build := func(name string) (*endpoint, error) {
		p, ok := cfg.Providers[name]
		if !ok {
			return nil, fmt.Errorf("llm provider %q is not defined", name)
		}
		ep := &endpoint{
			name:  name,
			model: p.Model,
			pool:  newKeyPool(p.Keys, cooldown),
		}
		for _, key := range p.Keys {
			cc := openai.DefaultConfig(key)
			cc.BaseURL = p.Endpoint
			ep.clients = append(ep.clients, openai.NewClientWithConfig(cc))
		}
		if p.RPMLimit > 0 {
			ep.limiter = rate.NewLimiter(rate.Limit(float64(p.RPMLimit)/60.0), p.RPMLimit)
		}
		return ep, nil
	}

	gen, err := build(cfg.GenerateProvider)
	if err != nil {
		return nil, err
	}
	emb := gen
	if cfg.EmbedProvider != cfg.GenerateProvider {
		emb, err = build(cfg.EmbedProvider)
		if err != nil {
			return nil, err
		}
	}

	return &Gateway{
		generate:       gen,
		embed:          emb,
		embedModel:     cfg.EmbedModel,
		embedDims:      cfg.EmbedDimensions,
		maxAttempts:    cfg.MaxAttempts,
		backoffInitial: time.Duration(cfg.BackoffInitialMS) * time.Millisecond,
		backoffMax:     time.Duration(cfg.BackoffMaxMS) * time.Millisecond,
		tokenBudget:    cfg.TokenBudget,
		temperature:    cfg.Temperature,
		requestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		rec:            rec,
		sleep:          sleepCtx,
	}, nil
}

// Generate runs a chat completion with rotation and retry. Conversation
// history is truncated oldest-first to the configured token budget
// before the first attempt, so every retry sends the same prompt.
func (g *Gateway) Generate(ctx context.Context, req GenerateRequest) (Generation, error) {
	msgs := TruncateMessages(req.Messages, g.tokenBudget)

	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if req.System != "" {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{
			Role:    RoleSystem,
			Content: req.System,
		})
	}
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		oaMsgs = append(oaMsgs, om)
	}

	ccr := openai.ChatCompletionRequest{
		Model:       g.generate.model,
		Messages:    oaMsgs,
		Temperature: g.temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.Temperature > 0 {
		ccr.Temperature = req.Temperature
	}
	for _, t := range req.Tools {
		var params any
		if len(t.Parameters) > 0 {
			params = t.Parameters
		}
		ccr.Tools = append(ccr.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	var gen Generation
	err := g.call(ctx, g.generate, "generate", func(ctx context.Context, c completer) error {
		resp, err := c.CreateChatCompletion(ctx, ccr)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("provider returned no choices")
		}
		choice := resp.Choices[0]
		gen = Generation{
			Text:         choice.Message.Content,
			FinishReason: string(choice.FinishReason),
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
		for _, tc := range choice.Message.ToolCalls {
			gen.ToolCalls = append(gen.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return nil
	})
	if err != nil {
		return Generation{}, err
	}
	return gen, nil
}

// Embed computes an embedding for a single text.
func (g *Gateway) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(g.embedModel),
		Dimensions: g.embedDims,
	}

	var res domain.EmbeddingResult
	err := g.call(ctx, g.embed, "embed", func(ctx context.Context, c completer) error {
		resp, err := c.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("provider returned no embeddings")
		}
		res = domain.EmbeddingResult{
			Embedding:    resp.Data[0].Embedding,
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
		return nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return res, nil
}

// call runs fn against the endpoint with credential rotation and
// bounded retry. A rate-limited key is sidelined and the next key tried
// immediately without consuming an attempt; transient errors back off
// exponentially; non-retryable errors return at once. An exhausted pool
// maps to domain.ErrProviderUnavailable.
func (g *Gateway) call(ctx context.Context, ep *endpoint, op string, fn func(context.Context, completer) error) error {
	var lastErr error
	attempt := 1
	for {
		idx, ok := ep.pool.next()
		if !ok {
			if lastErr != nil {
				return fmt.Errorf("%s %s: all credentials cooling down: %w: %w", ep.name, op, domain.ErrProviderUnavailable, lastErr)
			}
			return fmt.Errorf("%s %s: all credentials cooling down: %w", ep.name, op, domain.ErrProviderUnavailable)
		}

		if ep.limiter != nil {
			if err := ep.limiter.Wait(ctx); err != nil {
				return g.wrapCtxErr(op, err)
			}
		}

		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, g.requestTimeout)
		err := fn(cctx, ep.clients[idx])
		cancel()
		if err == nil {
			g.rec.RecordLLMRequest(ep.name, op, "ok", time.Since(start))
			return nil
		}
		lastErr = err

		switch {
		case isRateLimited(err):
			g.rec.RecordLLMRequest(ep.name, op, "rate_limited", time.Since(start))
			g.rec.RecordKeyRotation(ep.name)
			ep.pool.reportLimited(idx)
			// Rotation does not consume a retry attempt.
			continue
		case !isRetryable(err):
			g.rec.RecordLLMRequest(ep.name, op, "error", time.Since(start))
			if ctx.Err() != nil {
				return g.wrapCtxErr(op, err)
			}
			return fmt.Errorf("%s %s: %w", ep.name, op, err)
		}

		g.rec.RecordLLMRequest(ep.name, op, "error", time.Since(start))
		if attempt >= g.maxAttempts {
			return fmt.Errorf("%s %s failed after %d attempts: %w: %w", ep.name, op, g.maxAttempts, domain.ErrProviderUnavailable, lastErr)
		}
		if err := g.sleep(ctx, g.backoff(attempt)); err != nil {
			return g.wrapCtxErr(op, err)
		}
		attempt++
	}
}

// backoff returns the delay before the given retry attempt, doubling
// from the initial delay and capped at the maximum.
func (g *Gateway) backoff(attempt int) time.Duration {
	d := g.backoffInitial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= g.backoffMax {
			return g.backoffMax
		}
	}
	if d > g.backoffMax {
		return g.backoffMax
	}
	return d
}

func (g *Gateway) wrapCtxErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTimeoutExceeded, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
