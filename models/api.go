package models

import "time"

// CreateReportRequest is the body of POST /api/reports. ImageBase64 is
// accepted as an alias of ImageRef.
type CreateReportRequest struct {
	ImageRef    string   `json:"imageRef"`
	ImageBase64 string   `json:"imageBase64"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// ReportEvent is published to the message bus and the live feed.
type ReportEvent struct {
	Type      string    `json:"type"`
	Report    Report    `json:"report"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventReportCreated       = "report.created"
	EventReportStatusChanged = "report.status_changed"
)
