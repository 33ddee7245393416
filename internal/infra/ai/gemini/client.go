package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/paperlens/paperlens/internal/domain/analysis"
	"github.com/paperlens/paperlens/internal/infra/ai/prompt"
)

// Client implements analysis.Analyzer against the Gemini API. The PDF bytes
// go to the model inline and the five-field schema is enforced server-side
// through structured output.
type Client struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Client{apiKey: apiKey, model: model}
}

// getClient initializes the genai client on first use. The credential check
// happens here, before any request is built.
func (c *Client) getClient(ctx context.Context) (*genai.Client, error) {
	if c.apiKey == "" {
		return nil, analysis.ErrMissingCredential
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *Client) Analyze(ctx context.Context, document []byte) (*analysis.Record, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromBytes(document, "application/pdf"),
			genai.NewPartFromText(prompt.GetAnalyzeUserPrompt()),
		},
	}}

	return c.generate(ctx, client, contents)
}

func (c *Client) Translate(ctx context.Context, record *analysis.Record, targetLanguage string) (*analysis.Record, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromText(prompt.GetTranslatePrompt(string(recordJSON), targetLanguage)),
		},
	}}

	return c.generate(ctx, client, contents)
}

func (c *Client) generate(ctx context.Context, client *genai.Client, contents []*genai.Content) (*analysis.Record, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.GetSystemPrompt(), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    recordSchema(),
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrUpstream, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty response", analysis.ErrUpstream)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty text in response", analysis.ErrUpstream)
	}

	// Schema enforcement is a request parameter, not a guarantee; validate
	// locally the same way as any other provider payload.
	return analysis.ParseRecord(text)
}

// recordSchema mirrors the five mandatory fields of analysis.Record.
func recordSchema() *genai.Schema {
	stringArray := func(desc string) *genai.Schema {
		return &genai.Schema{
			Type:        genai.TypeArray,
			Description: desc,
			Items:       &genai.Schema{Type: genai.TypeString},
		}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"problem_solved": {
				Type:        genai.TypeString,
				Description: "The concrete problem the paper sets out to solve",
			},
			"innovations":        stringArray("Key innovations, most important first"),
			"comparison_methods": stringArray("Baseline or state-of-the-art methods compared against"),
			"limitations":        stringArray("Limitations acknowledged or apparent"),
			"summary": {
				Type:        genai.TypeString,
				Description: "Concise overall summary of the paper",
			},
		},
		Required: []string{
			"problem_solved", "innovations", "comparison_methods", "limitations", "summary",
		},
	}
}
