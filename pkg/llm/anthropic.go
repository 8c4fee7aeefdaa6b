package llm

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// AnthropicProvider implements Provider over the official anthropic-sdk-go.
// SDK-internal retries are disabled so the resilient Client owns retry
// policy and the concurrency queue.
type AnthropicProvider struct {
	apiKey string
	client sdk.Client
}

// NewAnthropicProvider creates an Anthropic-backed provider. An empty apiKey
// is tolerated here; Complete reports it as a config error before any
// network attempt.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey: apiKey,
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
	}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if p.apiKey == "" {
		return nil, &ClientError{Kind: KindConfig, Err: eris.New("anthropic api key is not configured")}
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    toSDKMessages(req.Messages),
		Temperature: sdk.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifySDKError(err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &Response{
		Content:      content,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			out[i] = sdk.NewAssistantMessage(block)
		default:
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}

// classifySDKError maps SDK failures onto the client error taxonomy using
// the HTTP status when the API responded, transport classification otherwise.
func classifySDKError(err error) *ClientError {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		retryAfter := ""
		if apierr.Response != nil {
			retryAfter = apierr.Response.Header.Get("Retry-After")
		}
		return errFromStatus(apierr.StatusCode, retryAfter, err)
	}
	return errFromTransport(err)
}
