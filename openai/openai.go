package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/AniketPatel148/CivicLens/llm"
	"github.com/AniketPatel148/CivicLens/parser"
)

const classifyPrompt = `Classify this photo into exactly ONE category:
- pothole (road damage, cracks, holes in pavement)
- trash (litter, overflowing bins, illegal dumping)
- graffiti (spray paint, vandalism, tagging)
- streetlight (broken or flickering lights, damaged poles)
- other (none of the above)

Respond with JSON only: {"issueType": "<category>", "confidence": <0.0-1.0>}`

type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ImageContent struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

type ChatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content any `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client is a Classifier speaking the OpenAI chat completions protocol.
// It targets any compatible endpoint, Featherless in production.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ llm.Classifier = (*Client)(nil)

// NewClient creates a classifier client. baseURL is the API root, e.g.
// https://api.featherless.ai/v1.
func NewClient(apiKey, baseURL, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (c *Client) SourceName() string {
	return "Featherless"
}

// imageURL returns a URL the remote model can load: the bytes re-encoded
// as a data URL when inline, the stored reference otherwise.
func imageURL(img llm.Image) string {
	if !img.Inline() {
		return img.Ref
	}
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(img.Data))
}

// Classify asks the model for the issue category of the photo.
func (c *Client) Classify(ctx context.Context, img llm.Image) (*parser.Classification, error) {
	if c.apiKey == "" || c.baseURL == "" {
		return nil, llm.ErrNotConfigured
	}
	url := imageURL(img)
	if url == "" {
		return nil, llm.ErrUnsupportedImage
	}

	reqBody := ChatRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role: "user",
				Content: []any{
					TextContent{Type: "text", Text: classifyPrompt},
					ImageContent{Type: "image_url", ImageURL: ImageURL{URL: url}},
				},
			},
		},
		MaxTokens: 100,
	}

	text, err := c.complete(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	result, err := parser.ParseClassification(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse classification: %w", err)
	}
	return result, nil
}

func (c *Client) complete(ctx context.Context, reqBody ChatRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := chatResp.Choices[0].Message.Content
	if contentStr, ok := content.(string); ok {
		return contentStr, nil
	}

	// If content is not a string, try to marshal it back to JSON
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to marshal content: %w", err)
	}
	return string(contentJSON), nil
}
