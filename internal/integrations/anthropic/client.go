// Package anthropic adapts the Anthropic Messages API to the plain
// system+user completion call used by the classifier.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 1024

// KeySource resolves the API key on demand.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

type messageCreator interface {
	New(ctx context.Context, body anthropicsdk.MessageNewParams, opts ...option.RequestOption) (*anthropicsdk.Message, error)
}

type Client struct {
	messages  messageCreator
	keys      KeySource
	model     string
	maxTokens int64
}

func NewClient(keys KeySource, model string) (*Client, error) {
	if keys == nil {
		return nil, errors.New("anthropic: key source must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("anthropic: model must not be empty")
	}
	sdk := anthropicsdk.NewClient()
	return &Client{messages: &sdk.Messages, keys: keys, model: model, maxTokens: defaultMaxTokens}, nil
}

// Complete sends one deterministic request and returns the first text block.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("anthropic: resolve API key: %w", err)
	}

	message, err := c.messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropicsdk.Float(0),
		System: []anthropicsdk.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(user)),
		},
	}, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("anthropic: messages: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("anthropic: no text content in response")
}
