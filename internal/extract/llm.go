package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/pkg/anthropic"
	"github.com/sells-group/enrich-cli/pkg/openrouter"
)

// Request is one prompt sent to a language model.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Entity labels cost logging only.
	Entity string
}

// Response is the text completion of a Request.
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// LLM completes prompts. Implementations make a single call; retry and
// timeouts belong to the Engine.
type LLM interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Anthropic adapts the Anthropic Messages client to LLM.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic-backed LLM for model.
func NewAnthropic(client anthropic.Client, model string) *Anthropic {
	return &Anthropic{client: client, model: model}
}

func (a *Anthropic) Name() string { return "anthropic" }

// Complete sends the prompt as a single user message.
func (a *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	temp := req.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   int64(req.MaxTokens),
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(a.model, req.Entity)
	model := resp.Model
	if model == "" {
		model = a.model
	}
	return &Response{
		Text:         resp.Text(),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// OpenRouter adapts the OpenRouter chat completions client to LLM.
type OpenRouter struct {
	client openrouter.Client
	model  string
}

// NewOpenRouter creates an OpenRouter-backed LLM for model.
func NewOpenRouter(client openrouter.Client, model string) *OpenRouter {
	return &OpenRouter{client: client, model: model}
}

func (o *OpenRouter) Name() string { return "openrouter" }

// Complete requests a JSON-mode completion.
func (o *OpenRouter) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := o.client.Complete(ctx, openrouter.CompletionRequest{
		Model:       o.model,
		System:      req.System,
		User:        req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("llm usage",
		zap.String("model", resp.Model),
		zap.String("entity", req.Entity),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
	)
	return &Response{
		Text:         resp.Text,
		Model:        resp.Model,
		InputTokens:  int64(resp.InputTokens),
		OutputTokens: int64(resp.OutputTokens),
	}, nil
}

// NewLLM builds the provider named by name.
func NewLLM(name, model string, ac anthropic.Client, oc openrouter.Client) (LLM, error) {
	switch name {
	case "", "anthropic":
		if ac == nil {
			return nil, eris.New("extract: anthropic client not configured")
		}
		return NewAnthropic(ac, model), nil
	case "openrouter":
		if oc == nil {
			return nil, eris.New("extract: openrouter client not configured")
		}
		return NewOpenRouter(oc, model), nil
	default:
		return nil, eris.Errorf("extract: unknown llm provider %q", name)
	}
}
