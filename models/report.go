package models

import (
	"time"
)

// IssueType is the closed category of a reported problem.
type IssueType string

const (
	IssueTypePothole     IssueType = "pothole"
	IssueTypeTrash       IssueType = "trash"
	IssueTypeGraffiti    IssueType = "graffiti"
	IssueTypeStreetlight IssueType = "streetlight"
	IssueTypeOther       IssueType = "other"
)

// IssueTypes lists every valid issue type.
var IssueTypes = []IssueType{
	IssueTypePothole,
	IssueTypeTrash,
	IssueTypeGraffiti,
	IssueTypeStreetlight,
	IssueTypeOther,
}

func (t IssueType) Valid() bool {
	for _, v := range IssueTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Department is the municipal unit a report is routed to.
type Department string

const (
	DepartmentPublicWorks        Department = "public_works"
	DepartmentSanitation         Department = "sanitation"
	DepartmentParks              Department = "parks"
	DepartmentUtilities          Department = "utilities"
	DepartmentPoliceNonEmergency Department = "police_non_emergency"
	DepartmentGeneral            Department = "general"
)

var Departments = []Department{
	DepartmentPublicWorks,
	DepartmentSanitation,
	DepartmentParks,
	DepartmentUtilities,
	DepartmentPoliceNonEmergency,
	DepartmentGeneral,
}

func (d Department) Valid() bool {
	for _, v := range Departments {
		if d == v {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a report.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
	StatusInProgress   Status = "in_progress"
	StatusResolved     Status = "resolved"
)

var Statuses = []Status{
	StatusPending,
	StatusAcknowledged,
	StatusInProgress,
	StatusResolved,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Location is a WGS84 point.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Report is a citizen submitted issue report with its enrichment.
type Report struct {
	ID                   string     `json:"id"`
	ImageRef             string     `json:"imageRef,omitempty"`
	Description          string     `json:"description"`
	Location             Location   `json:"location"`
	Address              string     `json:"address"`
	Zipcode              string     `json:"zipcode"`
	IssueType            IssueType  `json:"issueType"`
	Confidence           float64    `json:"confidence"`
	Summary              string     `json:"summary"`
	Severity             int        `json:"severity"`
	Department           Department `json:"department"`
	Reason               string     `json:"reason"`
	Status               Status     `json:"status"`
	ClassificationFailed bool       `json:"classificationFailed"`
	EnrichmentFailed     bool       `json:"enrichmentFailed"`
	EnrichmentSource     string     `json:"enrichmentSource"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	ResolvedAt           *time.Time `json:"resolvedAt"`
	ResolutionTimeHours  *int       `json:"resolutionTimeHours"`
}

// Lite returns a copy of the report without the image payload.
func (r Report) Lite() Report {
	r.ImageRef = ""
	return r
}

// EnrichmentRecord is the sanitized output of the enrichment pipeline.
// Every field is safe to persist as-is.
type EnrichmentRecord struct {
	IssueType            IssueType
	Confidence           float64
	Summary              string
	Severity             int
	Department           Department
	Reason               string
	ClassificationFailed bool
	EnrichmentFailed     bool
	Source               string
}

// NearbyReport is a report paired with its great-circle distance to a query center.
type NearbyReport struct {
	Report     Report  `json:"report"`
	DistanceKm float64 `json:"distanceKm"`
}

// StatusUpdate is the result of a status transition.
type StatusUpdate struct {
	ID                  string     `json:"id"`
	Status              Status     `json:"status"`
	ResolvedAt          *time.Time `json:"resolvedAt"`
	ResolutionTimeHours *int       `json:"resolutionTimeHours"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// StatRow is the lean projection used by aggregations.
type StatRow struct {
	Zipcode             string
	Department          Department
	Status              Status
	ResolutionTimeHours *int
}

// ReportFilter restricts list queries.
type ReportFilter struct {
	BBox   *BBox
	Status Status
	Limit  int
}

// BBox is an axis aligned rectangle in degrees. SWLng > NELng means the
// box crosses the antimeridian.
type BBox struct {
	SWLng float64 `json:"swLng"`
	SWLat float64 `json:"swLat"`
	NELng float64 `json:"neLng"`
	NELat float64 `json:"neLat"`
}
