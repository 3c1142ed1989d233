package gemini

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
	"github.com/AniketPatel148/CivicLens/models"
	"github.com/AniketPatel148/CivicLens/parser"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

const promptTemplate = `
You are the analyst of a city's neighborhood issue reporting service.

A resident submitted the attached photo of a local problem.
Resident's description: "%s"
%s
Return a single JSON object with exactly these fields:

{
  "issueType":  "<pothole | trash | graffiti | streetlight | other>",
  "confidence": <0.0-1.0>,
  "summary":    "<1-2 plain sentences for residents: what is visible, where, and the likely impact>",
  "severity":   <integer 1-5>,
  "department": "<public_works | sanitation | parks | utilities | police_non_emergency | general>",
  "reason":     "<1 sentence on why this department should handle it>"
}

ISSUE TYPES
- pothole: road damage, cracks, holes in pavement, broken sidewalks
- trash: litter, overflowing bins, illegal dumping
- graffiti: spray paint, tags, vandalism on surfaces
- streetlight: broken or flickering lights, damaged poles, dark streets
- other: anything else

SEVERITY
1 = cosmetic, no safety concern
2 = nuisance, not urgent
3 = should be fixed within a week
4 = potential safety hazard
5 = immediate danger to the public

ROUTING
- public_works: roads, sidewalks, potholes, streetlights, traffic signals
- sanitation: trash, dumping, bins
- parks: park damage, fallen trees, playgrounds
- utilities: water leaks, exposed wiring, manhole covers
- police_non_emergency: graffiti, vandalism, abandoned vehicles
- general: unclear or several departments

Keep the summary under 50 words. Output JSON only, no markdown.
`

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"response_mime_type,omitempty"`
}

type geminiRequest struct {
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
	Contents         []content        `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Client is the Enricher backed by the Gemini generateContent REST API.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

var _ llm.Enricher = (*Client)(nil)

func NewClient(apiKey, baseURL, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{},
	}
}

func (c *Client) SourceName() string {
	return "Gemini"
}

func buildPrompt(description string, hint models.IssueType) string {
	if strings.TrimSpace(description) == "" {
		description = "None provided"
	}
	hintLine := ""
	if hint != "" {
		hintLine = fmt.Sprintf("A first-pass image classifier suggested the issue type %q. Keep it or override it based on the photo.\n", hint)
	}
	return fmt.Sprintf(promptTemplate, description, hintLine)
}

// Enrich analyzes an inline image together with the resident's description.
func (c *Client) Enrich(ctx context.Context, img llm.Image, description string, hint models.IssueType) (*parser.Enrichment, error) {
	if c.apiKey == "" || c.baseURL == "" {
		return nil, llm.ErrNotConfigured
	}
	if !img.Inline() {
		return nil, llm.ErrUnsupportedImage
	}

	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	reqBody := geminiRequest{
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
		Contents: []content{
			{
				Role: "user",
				Parts: []part{
					{
						InlineData: &inlineData{
							MimeType: mimeType,
							Data:     base64.StdEncoding.EncodeToString(img.Data),
						},
					},
					{Text: buildPrompt(description, hint)},
				},
			},
		},
	}

	text, err := c.generateContent(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	result, err := parser.ParseEnrichment(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse enrichment: %w", err)
	}
	return result, nil
}

func (c *Client) generateContent(ctx context.Context, body geminiRequest) (string, error) {
	// try v1beta first, then v1
	endpoints := []string{
		fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model),
		fmt.Sprintf("%s/v1/models/%s:generateContent", c.baseURL, c.model),
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for _, ep := range endpoints {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		text, err := c.post(ctx, ep, data)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) post(ctx context.Context, endpoint string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The key stays out of the URL so transport errors never carry it.
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var gr geminiResponse
	if err := json.Unmarshal(bodyBytes, &gr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	// find first text part
	for _, p := range gr.Candidates[0].Content.Parts {
		if p.Text != "" {
			return p.Text, nil
		}
	}
	return "", fmt.Errorf("no text part in response")
}
