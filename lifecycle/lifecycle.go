// Package lifecycle holds the report state machine: zipcode derivation at
// creation and the status transition that sets resolution metrics.
package lifecycle

import (
	"math"
	"regexp"
	"time"

	"github.com/AniketPatel148/CivicLens/models"
)

var zipcodePattern = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)

// ExtractZipcode returns the first 5-digit run of address (a ZIP+4 keeps
// only its 5-digit part), or "" when there is none.
func ExtractZipcode(address string) string {
	m := zipcodePattern.FindStringSubmatch(address)
	if m == nil {
		return ""
	}
	return m[1]
}

// NewReport builds a pending report from a submission and its enrichment.
func NewReport(id string, req models.Report, enrichment models.EnrichmentRecord, now time.Time) models.Report {
	return models.Report{
		ID:                   id,
		ImageRef:             req.ImageRef,
		Description:          req.Description,
		Location:             req.Location,
		Address:              req.Address,
		Zipcode:              ExtractZipcode(req.Address),
		IssueType:            enrichment.IssueType,
		Confidence:           enrichment.Confidence,
		Summary:              enrichment.Summary,
		Severity:             enrichment.Severity,
		Department:           enrichment.Department,
		Reason:               enrichment.Reason,
		Status:               models.StatusPending,
		ClassificationFailed: enrichment.ClassificationFailed,
		EnrichmentFailed:     enrichment.EnrichmentFailed,
		EnrichmentSource:     enrichment.Source,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// ParseStatus validates a requested status.
func ParseStatus(raw string) (models.Status, error) {
	s := models.Status(raw)
	if !s.Valid() {
		return "", models.NewValidationError("status", "must be one of pending, acknowledged, in_progress, resolved")
	}
	return s, nil
}

// ResolutionHours is the elapsed time between creation and resolution,
// rounded to the nearest hour.
func ResolutionHours(createdAt, resolvedAt time.Time) int {
	return int(math.Round(resolvedAt.Sub(createdAt).Hours()))
}

// Apply moves r to status at now. The first transition to resolved sets
// ResolvedAt and ResolutionTimeHours; they are never recomputed or cleared
// afterwards. Callers must run Apply and persist its result atomically.
func Apply(r models.Report, status models.Status, now time.Time) models.Report {
	r.Status = status
	r.UpdatedAt = now
	if status == models.StatusResolved && r.ResolvedAt == nil {
		resolvedAt := now
		hours := ResolutionHours(r.CreatedAt, resolvedAt)
		r.ResolvedAt = &resolvedAt
		r.ResolutionTimeHours = &hours
	}
	return r
}

// Update projects the fields returned by a status change.
func Update(r models.Report) models.StatusUpdate {
	return models.StatusUpdate{
		ID:                  r.ID,
		Status:              r.Status,
		ResolvedAt:          r.ResolvedAt,
		ResolutionTimeHours: r.ResolutionTimeHours,
		UpdatedAt:           r.UpdatedAt,
	}
}
