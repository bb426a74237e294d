// Package chat wraps the OpenAI chat-completion API behind a small interface
// so orchestrators can be tested against doubles.
package chat

import (
	"context"
	"errors"
	"time"

	obsmetrics "github.com/kaimoapp/kaimo/internal/observability/metrics"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrEmptyCompletion means the upstream answered with no content.
	ErrEmptyCompletion = errors.New("empty chat completion")
	// ErrDeadline means the call exceeded its caller-imposed budget.
	ErrDeadline = errors.New("chat call deadline exceeded")
)

// Request is one chat-completion exchange.
type Request struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	JSONMode    bool
}

// Completer performs one chat completion and returns the raw text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAICompleter implements Completer over the OpenAI API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

func NewOpenAICompleter(apiKey, model string, log *zap.Logger) *OpenAICompleter {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log.Named("chat"),
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()

	apiReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, apiReq)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		obsmetrics.App().ObserveUpstreamCall(obsmetrics.UpstreamChat, obsmetrics.OutcomeDeadline, elapsed)
		c.log.Warn("completion timed out", zap.Duration("elapsed", elapsed))
		return "", ErrDeadline
	case err != nil:
		obsmetrics.App().ObserveUpstreamCall(obsmetrics.UpstreamChat, obsmetrics.OutcomeError, elapsed)
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		obsmetrics.App().ObserveUpstreamCall(obsmetrics.UpstreamChat, obsmetrics.OutcomeError, elapsed)
		return "", ErrEmptyCompletion
	}

	obsmetrics.App().ObserveUpstreamCall(obsmetrics.UpstreamChat, obsmetrics.OutcomeOK, elapsed)
	return resp.Choices[0].Message.Content, nil
}
