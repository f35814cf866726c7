// Package llm adapts external completion and embedding providers to the core
// interfaces, mapping each provider's failures onto the typed completion
// errors the orchestrator expects.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/murshid-ai/murshid/internal/core"
)

const (
	defaultOpenAIChatModel      = "gpt-4o-mini"
	defaultOpenAIEmbeddingModel = openai.SmallEmbedding3
)

// OpenAIClient implements core.CompletionClient and core.EmbeddingClient on
// the OpenAI API.
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
}

func NewOpenAIClient(apiKey, chatModel string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if chatModel == "" {
		chatModel = defaultOpenAIChatModel
	}
	return &OpenAIClient{
		client:         openai.NewClient(apiKey),
		chatModel:      chatModel,
		embeddingModel: defaultOpenAIEmbeddingModel,
	}, nil
}

func (c *OpenAIClient) Name() string {
	return "openai/" + string(c.embeddingModel)
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: c.embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embedding data")
	}
	return resp.Data[0].Embedding, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt string, history []core.ChatTurn, userMessage string) (*core.CompletionResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: messages,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &core.CompletionError{Kind: core.CompletionGeneric,
			Err: fmt.Errorf("openai returned no completion choices")}
	}
	return &core.CompletionResult{
		Text:        resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

func classifyOpenAIError(err error) *core.CompletionError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.CompletionError{Kind: core.CompletionTimeout, Err: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &core.CompletionError{Kind: core.CompletionAuth, Err: err}
		case http.StatusTooManyRequests:
			return &core.CompletionError{Kind: core.CompletionRateLimited, Err: err}
		}
	}
	return &core.CompletionError{Kind: core.CompletionGeneric, Err: err}
}
