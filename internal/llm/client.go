// Package llm adapts hosted chat models to narrative.Generator.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/cognicore/navrag/pkg/navrag/narrative"
)

// SystemPrompt frames every narrative request.
const SystemPrompt = "You are a maritime navigation safety expert. Assess collision risk " +
	"strictly from the COLREGs rules and tribunal precedents provided, cite them by id, " +
	"and keep the analysis concise."

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	client *openai.Client
	model  string
}

var _ narrative.Generator = (*Client)(nil)

// NewClient creates a chat client. An empty baseURL uses the OpenAI API; a
// nil httpClient uses the library default.
func NewClient(apiKey, baseURL, model string, httpClient *http.Client) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &Client{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name identifies the backing model.
func (c *Client) Name() string { return "openai:" + c.model }

// Generate implements narrative.Generator.
func (c *Client) Generate(ctx context.Context, prompt string, p narrative.Params) (string, error) {
	if c.model == "" {
		return "", fmt.Errorf("llm: model required")
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
