package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/murshid-ai/murshid/internal/core"
)

const (
	defaultGeminiChatModel      = "gemini-1.5-flash-latest"
	defaultGeminiEmbeddingModel = "text-embedding-004"
)

// GeminiClient implements core.CompletionClient and core.EmbeddingClient on
// the Gemini API.
type GeminiClient struct {
	client    *genai.Client
	chatModel string
}

func NewGeminiClient(ctx context.Context, apiKey, chatModel string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if chatModel == "" {
		chatModel = defaultGeminiChatModel
	}
	return &GeminiClient{client: client, chatModel: chatModel}, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) Name() string {
	return "gemini/" + defaultGeminiEmbeddingModel
}

func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	em := c.client.EmbeddingModel(defaultGeminiEmbeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (c *GeminiClient) Complete(ctx context.Context, systemPrompt string, history []core.ChatTurn, userMessage string) (*core.CompletionResult, error) {
	model := c.client.GenerativeModel(c.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	session := model.StartChat()
	for _, turn := range history {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(userMessage))
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &core.CompletionError{Kind: core.CompletionGeneric,
			Err: fmt.Errorf("gemini returned no candidates")}
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if text.Len() == 0 {
		return nil, &core.CompletionError{Kind: core.CompletionGeneric,
			Err: fmt.Errorf("gemini returned a non-text response")}
	}

	result := &core.CompletionResult{Text: text.String()}
	if resp.UsageMetadata != nil {
		result.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return result, nil
}

func classifyGeminiError(err error) *core.CompletionError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.CompletionError{Kind: core.CompletionTimeout, Err: err}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &core.CompletionError{Kind: core.CompletionAuth, Err: err}
		case http.StatusTooManyRequests:
			return &core.CompletionError{Kind: core.CompletionRateLimited, Err: err}
		}
	}
	return &core.CompletionError{Kind: core.CompletionGeneric, Err: err}
}
