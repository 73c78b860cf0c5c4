package classify

import (
	"context"
	"errors"
	"strings"

	"support-router/internal/domain"
	"support-router/internal/integrations/openai"
)

// ChatClient is the subset of the OpenAI client used for classification.
type ChatClient interface {
	Chat(ctx context.Context, in openai.ChatRequest) (string, error)
}

// OpenAIBackend requests schema-constrained output at temperature 0.
type OpenAIBackend struct {
	client ChatClient
	model  string
}

func NewOpenAIBackend(client ChatClient, model string) (*OpenAIBackend, error) {
	if client == nil {
		return nil, errors.New("classify: chat client must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("classify: model must not be empty")
	}
	return &OpenAIBackend{client: client, model: model}, nil
}

func (b *OpenAIBackend) Complete(ctx context.Context, system, user string) (string, error) {
	temperature := 0.0
	return b.client.Chat(ctx, openai.ChatRequest{
		Model: b.model,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    &temperature,
		ResponseFormat: openai.StrictSchema("ticket_classification", schema),
	})
}
