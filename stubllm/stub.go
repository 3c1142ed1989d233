package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/AniketPatel148/CivicLens/llm"
	"github.com/AniketPatel148/CivicLens/models"
	"github.com/AniketPatel148/CivicLens/parser"
)

// Client is a deterministic, no-network provider for CI and local runs.
// It emits provider-shaped JSON so the parse and sanitize path is exercised.
type Client struct{}

var (
	_ llm.Classifier = (*Client)(nil)
	_ llm.Enricher   = (*Client)(nil)
)

func NewClient() *Client { return &Client{} }

func (c *Client) SourceName() string { return "Stub" }

var routing = map[models.IssueType]models.Department{
	models.IssueTypePothole:     models.DepartmentPublicWorks,
	models.IssueTypeStreetlight: models.DepartmentPublicWorks,
	models.IssueTypeTrash:       models.DepartmentSanitation,
	models.IssueTypeGraffiti:    models.DepartmentPoliceNonEmergency,
	models.IssueTypeOther:       models.DepartmentGeneral,
}

func digest(img llm.Image, extra string) uint64 {
	h := sha256.New()
	h.Write([]byte(img.Ref))
	h.Write(img.Data)
	h.Write([]byte(extra))
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// Classify picks a category from a hash of the image.
func (c *Client) Classify(ctx context.Context, img llm.Image) (*parser.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := digest(img, "")
	out := map[string]any{
		"issueType":  string(models.IssueTypes[sum%uint64(len(models.IssueTypes))]),
		"confidence": 0.5 + float64(sum%50)/100,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return parser.ParseClassification(string(b))
}

// Enrich derives the category from the hint, else from the description.
func (c *Client) Enrich(ctx context.Context, img llm.Image, description string, hint models.IssueType) (*parser.Enrichment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	issueType := hint
	if issueType == "" {
		issueType = parser.NormalizeIssueType(description)
	}
	sum := digest(img, description)

	out := map[string]any{
		"issueType":  string(issueType),
		"confidence": 0.8,
		"summary":    fmt.Sprintf("Stubbed analysis (%016x) for: %s", sum, parser.Truncate(description, 120)),
		"severity":   1 + sum%5,
		"department": string(routing[parser.NormalizeIssueType(string(issueType))]),
		"reason":     "Routed by the stub provider.",
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return parser.ParseEnrichment(string(b))
}
