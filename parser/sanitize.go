package parser

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/AniketPatel148/CivicLens/models"
)

const (
	MaxSummaryLength = 500
	MaxReasonLength  = 200

	DefaultSeverity                 = 3
	DefaultClassificationConfidence = 0.0
	DefaultEnrichmentConfidence     = 0.8

	FallbackSummary = "Thank you for your report. Our team will review this issue and route it to the appropriate department."
	FallbackReason  = "Automatic classification unavailable. Report queued for manual review."
)

// Classification is a sanitized image classification.
type Classification struct {
	IssueType  models.IssueType `json:"issueType"`
	Confidence float64          `json:"confidence"`
}

// Enrichment is a sanitized full analysis of a report.
type Enrichment struct {
	IssueType  models.IssueType  `json:"issueType"`
	Confidence float64           `json:"confidence"`
	Summary    string            `json:"summary"`
	Severity   int               `json:"severity"`
	Department models.Department `json:"department"`
	Reason     string            `json:"reason"`
}

var issueTypeAliases = map[string]models.IssueType{
	"road_damage":     models.IssueTypePothole,
	"crack":           models.IssueTypePothole,
	"pavement":        models.IssueTypePothole,
	"sidewalk":        models.IssueTypePothole,
	"litter":          models.IssueTypeTrash,
	"garbage":         models.IssueTypeTrash,
	"rubbish":         models.IssueTypeTrash,
	"dumping":         models.IssueTypeTrash,
	"illegal_dumping": models.IssueTypeTrash,
	"debris":          models.IssueTypeTrash,
	"vandalism":       models.IssueTypeGraffiti,
	"spray_paint":     models.IssueTypeGraffiti,
	"tagging":         models.IssueTypeGraffiti,
	"broken_light":    models.IssueTypeStreetlight,
	"street_light":    models.IssueTypeStreetlight,
	"streetlamp":      models.IssueTypeStreetlight,
	"lamp":            models.IssueTypeStreetlight,
	"light":           models.IssueTypeStreetlight,
}

// containmentKeys are matched longest first so that e.g. "streetlight"
// wins over "light".
var containmentKeys = buildContainmentKeys()

func buildContainmentKeys() []string {
	keys := make([]string, 0, len(issueTypeAliases)+len(models.IssueTypes))
	for k := range issueTypeAliases {
		keys = append(keys, k)
	}
	for _, t := range models.IssueTypes {
		if t != models.IssueTypeOther {
			keys = append(keys, string(t))
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func canonicalToken(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func lookupIssueType(key string) (models.IssueType, bool) {
	if t := models.IssueType(key); t.Valid() {
		return t, true
	}
	if t, ok := issueTypeAliases[key]; ok {
		return t, true
	}
	if t, ok := issueTypeAliases[strings.ReplaceAll(key, "_", "")]; ok {
		return t, true
	}
	return "", false
}

// NormalizeIssueType maps free provider text onto the closed issue type set.
func NormalizeIssueType(raw string) models.IssueType {
	key := canonicalToken(raw)
	if key == "" {
		return models.IssueTypeOther
	}
	if t, ok := lookupIssueType(key); ok {
		return t
	}
	for _, k := range containmentKeys {
		if strings.Contains(key, k) {
			t, _ := lookupIssueType(k)
			return t
		}
	}
	return models.IssueTypeOther
}

// NormalizeDepartment returns the department if it is a closed set member, general otherwise.
func NormalizeDepartment(raw string) models.Department {
	d := models.Department(canonicalToken(raw))
	if d.Valid() {
		return d
	}
	return models.DepartmentGeneral
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// SanitizeConfidence clamps v into [0,1]; unparsable values yield def.
func SanitizeConfidence(v any, def float64) float64 {
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return math.Min(1, math.Max(0, f))
}

// SanitizeSeverity truncates v to an integer in [1,5]; unparsable values yield DefaultSeverity.
func SanitizeSeverity(v any) int {
	f, ok := toFloat(v)
	if !ok {
		return DefaultSeverity
	}
	f = math.Trunc(math.Min(5, math.Max(1, f)))
	return int(f)
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func stringField(obj map[string]any, key string) (string, bool) {
	s, ok := obj[key].(string)
	return s, ok
}

// ParseClassification parses a classifier response.
func ParseClassification(response string) (*Classification, error) {
	obj, err := decodeObject(response)
	if err != nil {
		return nil, err
	}
	issueType, _ := stringField(obj, "issueType")
	return &Classification{
		IssueType:  NormalizeIssueType(issueType),
		Confidence: SanitizeConfidence(obj["confidence"], DefaultClassificationConfidence),
	}, nil
}

// ParseEnrichment parses an enricher response. Any recoverable JSON object
// produces a complete record; missing fields take their defaults.
func ParseEnrichment(response string) (*Enrichment, error) {
	obj, err := decodeObject(response)
	if err != nil {
		return nil, err
	}

	issueType, _ := stringField(obj, "issueType")
	department, _ := stringField(obj, "department")

	summary := FallbackSummary
	if s, ok := stringField(obj, "summary"); ok && strings.TrimSpace(s) != "" {
		summary = Truncate(strings.TrimSpace(s), MaxSummaryLength)
	}
	reason := ""
	if s, ok := stringField(obj, "reason"); ok {
		reason = Truncate(strings.TrimSpace(s), MaxReasonLength)
	}

	return &Enrichment{
		IssueType:  NormalizeIssueType(issueType),
		Confidence: SanitizeConfidence(obj["confidence"], DefaultEnrichmentConfidence),
		Summary:    summary,
		Severity:   SanitizeSeverity(obj["severity"]),
		Department: NormalizeDepartment(department),
		Reason:     reason,
	}, nil
}
