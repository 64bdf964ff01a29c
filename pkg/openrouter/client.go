// Package openrouter wraps the OpenRouter chat completions API as an
// alternative extraction model provider.
package openrouter

import (
	"context"
	"errors"
	"fmt"

	or "github.com/revrost/go-openrouter"
	"github.com/rotisserie/eris"
)

// Client defines the OpenRouter operations used by the extraction engine.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is a system plus user prompt sent to one model.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float32
	JSONMode    bool
}

// CompletionResponse holds the first choice of a completion.
type CompletionResponse struct {
	Model        string
	Text         string
	InputTokens  int
	OutputTokens int
}

// APIError is a non-2xx response from OpenRouter.
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openrouter: status %d: %v", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatusCode returns the HTTP status of the failed call.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// Option configures the OpenRouter client.
type Option func(*or.ClientConfig)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *or.ClientConfig) {
		c.BaseURL = url
	}
}

type sdkClient struct {
	client *or.Client
}

// NewClient creates an OpenRouter client.
func NewClient(apiKey string, opts ...Option) Client {
	cfg := or.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(cfg)
	}
	return &sdkClient{client: or.NewClientWithConfig(*cfg)}
}

func (c *sdkClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	request := or.ChatCompletionRequest{
		Model: req.Model,
		Messages: []or.ChatCompletionMessage{
			{Role: or.ChatMessageRoleSystem, Content: or.Content{Text: req.System}},
			{Role: or.ChatMessageRoleUser, Content: or.Content{Text: req.User}},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		request.ResponseFormat = &or.ChatCompletionResponseFormat{
			Type: or.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		if code := statusOf(err); code != 0 {
			return nil, &APIError{StatusCode: code, Err: err}
		}
		return nil, eris.Wrap(err, "openrouter: create completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openrouter: no completion choices returned")
	}

	return &CompletionResponse{
		Model:        resp.Model,
		Text:         resp.Choices[0].Message.Content.Text,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func statusOf(err error) int {
	var apiErr *or.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *or.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
