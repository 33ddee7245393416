package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/paperlens/paperlens/internal/domain/analysis"
	"github.com/paperlens/paperlens/internal/infra/ai/prompt"
	"github.com/paperlens/paperlens/internal/infra/pdftext"
)

const maxTokens = 4096

// Client implements analysis.Analyzer against the OpenAI chat API. The model
// cannot ingest PDF bytes directly, so the paper text is extracted locally
// and sent inline.
type Client struct {
	*openai.Client
	Model  string
	apiKey string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model, apiKey: apiKey}
}

func (c *Client) Analyze(ctx context.Context, document []byte) (*analysis.Record, error) {
	if c.apiKey == "" {
		return nil, analysis.ErrMissingCredential
	}

	text, err := pdftext.Extract(document)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrUpstream, err)
	}

	return c.complete(ctx, prompt.GetAnalyzeTextPrompt(text))
}

func (c *Client) Translate(ctx context.Context, record *analysis.Record, targetLanguage string) (*analysis.Record, error) {
	if c.apiKey == "" {
		return nil, analysis.ErrMissingCredential
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	return c.complete(ctx, prompt.GetTranslatePrompt(string(recordJSON), targetLanguage))
}

func (c *Client) complete(ctx context.Context, userPrompt string) (*analysis.Record, error) {
	model := c.Model
	if model == "" {
		model = "gpt-4o-2024-08-06"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrUpstream, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: empty completion", analysis.ErrUpstream)
	}

	return analysis.ParseRecord(resp.Choices[0].Message.Content)
}
