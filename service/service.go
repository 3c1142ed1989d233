// Package service implements the report use cases on top of the store, the
// enrichment pipeline and the geospatial and aggregation engines.
package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/AniketPatel148/CivicLens/cache"
	"github.com/AniketPatel148/CivicLens/enrichment"
	"github.com/AniketPatel148/CivicLens/geoquery"
	"github.com/AniketPatel148/CivicLens/imaging"
	"github.com/AniketPatel148/CivicLens/lifecycle"
	"github.com/AniketPatel148/CivicLens/metrics"
	"github.com/AniketPatel148/CivicLens/models"
	"github.com/AniketPatel148/CivicLens/stats"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000

	eventTimeout = 5 * time.Second
)

var zipcodePattern = regexp.MustCompile(`^\d{5}$`)

// Store persists reports. SetStatus must apply lifecycle.Apply atomically.
type Store interface {
	Ping(ctx context.Context) error
	CreateReport(ctx context.Context, r models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListReports(ctx context.Context, filter models.ReportFilter) ([]models.Report, error)
	SetStatus(ctx context.Context, id string, status models.Status, now time.Time) (*models.Report, error)
	ListStatRows(ctx context.Context, zipcode string) ([]models.StatRow, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.ReportEvent) error
}

type Broadcaster interface {
	Broadcast(event models.ReportEvent)
}

type Service struct {
	store        Store
	images       *imaging.Processor
	orchestrator *enrichment.Orchestrator
	stats        *cache.StatsCache

	publisher EventPublisher
	feed      Broadcaster

	now   func() time.Time
	newID func() string
}

type Option func(*Service)

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithFeed(b Broadcaster) Option {
	return func(s *Service) { s.feed = b }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, images *imaging.Processor, orchestrator *enrichment.Orchestrator, statsCache *cache.StatsCache, opts ...Option) *Service {
	s := &Service{
		store:        store,
		images:       images,
		orchestrator: orchestrator,
		stats:        statsCache,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = cache.NewStatsCache(nil, 0)
	}
	return s
}

// Health checks the store connection.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SubmitReport validates a submission, enriches it and persists it as pending.
// Enrichment failures never fail the submission.
func (s *Service) SubmitReport(ctx context.Context, req models.CreateReportRequest) (*models.Report, error) {
	ref := req.ImageRef
	if strings.TrimSpace(ref) == "" {
		ref = req.ImageBase64
	}
	if strings.TrimSpace(ref) == "" {
		return nil, models.NewValidationError("imageRef", "is required")
	}
	if req.Lat == nil || req.Lng == nil {
		return nil, models.NewValidationError("location", "lat and lng are required")
	}
	loc := models.Location{Lat: *req.Lat, Lng: *req.Lng}
	if !geoquery.ValidLocation(loc) {
		return nil, models.NewValidationError("location", "lat must be within [-90,90] and lng within [-180,180]")
	}

	img, err := s.images.Prepare(ref)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(req.Description)
	record := s.orchestrator.Enrich(ctx, img, description)

	report := lifecycle.NewReport(s.newID(), models.Report{
		ImageRef:    img.Ref,
		Description: description,
		Location:    loc,
		Address:     strings.TrimSpace(req.Address),
	}, record, s.now().UTC())

	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	metrics.ReportsCreatedTotal.Inc()

	log.WithFields(log.Fields{
		"id":         report.ID,
		"issueType":  report.IssueType,
		"department": report.Department,
		"source":     report.EnrichmentSource,
	}).Info("report created")

	s.afterWrite(ctx, models.EventReportCreated, report.Lite())
	return &report, nil
}

func (s *Service) GetReport(ctx context.Context, id string) (*models.Report, error) {
	return s.store.GetReport(ctx, id)
}

// ListQuery carries the raw list parameters of a request.
type ListQuery struct {
	BBox   string
	Status string
	Limit  string
}

// ListReports returns reports inside an optional bounding box, newest first.
// An absent bbox lists every report.
func (s *Service) ListReports(ctx context.Context, q ListQuery) ([]models.Report, error) {
	filter, err := parseFilter(q.Status, q.Limit)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.BBox) != "" {
		box, err := geoquery.ParseBBox(q.BBox)
		if err != nil {
			return nil, err
		}
		filter.BBox = &box
	}

	reports, err := s.store.ListReports(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// NearbyQuery carries the raw nearby parameters of a request.
type NearbyQuery struct {
	Lat      string
	Lng      string
	RadiusKm string
	Status   string
	Limit    string
}

// Nearby returns reports within the radius of a point, closest first.
func (s *Service) Nearby(ctx context.Context, q NearbyQuery) ([]models.NearbyReport, error) {
	lat, err := parseFloat("lat", q.Lat)
	if err != nil {
		return nil, err
	}
	lng, err := parseFloat("lng", q.Lng)
	if err != nil {
		return nil, err
	}
	center := models.Location{Lat: lat, Lng: lng}
	if !geoquery.ValidLocation(center) {
		return nil, models.NewValidationError("location", "lat must be within [-90,90] and lng within [-180,180]")
	}

	radius := geoquery.DefaultRadiusKm
	if strings.TrimSpace(q.RadiusKm) != "" {
		if radius, err = parseFloat("radiusKm", q.RadiusKm); err != nil {
			return nil, err
		}
		if radius <= 0 {
			return nil, models.NewValidationError("radiusKm", "must be positive")
		}
	}

	filter, err := parseFilter(q.Status, q.Limit)
	if err != nil {
		return nil, err
	}
	limit := filter.Limit

	box := geoquery.BBoxAround(center, radius)
	filter.BBox = &box
	filter.Limit = 0
	candidates, err := s.store.ListReports(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list nearby candidates: %w", err)
	}

	nearby := geoquery.FindNearby(center, radius, candidates)
	if len(nearby) > limit {
		nearby = nearby[:limit]
	}
	return nearby, nil
}

// SetStatus moves a report to a new status. The status is validated before
// the store is touched.
func (s *Service) SetStatus(ctx context.Context, id, rawStatus string) (*models.StatusUpdate, error) {
	status, err := lifecycle.ParseStatus(strings.TrimSpace(rawStatus))
	if err != nil {
		return nil, err
	}

	report, err := s.store.SetStatus(ctx, id, status, s.now().UTC())
	if err != nil {
		return nil, err
	}
	metrics.StatusTransitionsTotal.WithLabelValues(string(status)).Inc()

	s.afterWrite(ctx, models.EventReportStatusChanged, report.Lite())
	update := lifecycle.Update(*report)
	return &update, nil
}

// CitywideSummary aggregates resolution metrics over every report.
func (s *Service) CitywideSummary(ctx context.Context) (*models.CitywideSummary, error) {
	var summary models.CitywideSummary
	if s.stats.Load(ctx, cache.SummaryKey, &summary) {
		return &summary, nil
	}

	gen := s.stats.Generation()
	rows, err := s.store.ListStatRows(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load stat rows: %w", err)
	}
	summary = stats.CitywideSummary(rows)
	s.stats.Store(ctx, cache.SummaryKey, summary, gen)
	return &summary, nil
}

// ZipcodeDetail aggregates resolution metrics per department inside one zipcode.
func (s *Service) ZipcodeDetail(ctx context.Context, zipcode string) (*models.ZipcodeDetail, error) {
	if !zipcodePattern.MatchString(zipcode) {
		return nil, models.NewValidationError("zipcode", "must be 5 digits")
	}

	key := cache.ZipcodeKey(zipcode)
	var detail models.ZipcodeDetail
	if s.stats.Load(ctx, key, &detail) {
		return &detail, nil
	}

	gen := s.stats.Generation()
	rows, err := s.store.ListStatRows(ctx, zipcode)
	if err != nil {
		return nil, fmt.Errorf("load stat rows for %s: %w", zipcode, err)
	}
	detail = stats.ZipcodeDetail(rows, zipcode)
	s.stats.Store(ctx, key, detail, gen)
	return &detail, nil
}

// afterWrite runs the side effects of a committed write. Failures are
// logged and never reach the caller.
func (s *Service) afterWrite(ctx context.Context, eventType string, report models.Report) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	s.stats.Invalidate(ctx, report.Zipcode)

	event := models.ReportEvent{Type: eventType, Report: report, Timestamp: s.now().UTC()}

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, event)
		metrics.RecordPublish(err)
		if err != nil {
			log.WithError(err).WithField("id", report.ID).Warnf("failed to publish %s", eventType)
		}
	}
	if s.feed != nil && eventType == models.EventReportCreated {
		s.feed.Broadcast(event)
	}
}

func parseFilter(rawStatus, rawLimit string) (models.ReportFilter, error) {
	filter := models.ReportFilter{Limit: DefaultLimit}

	if rawStatus = strings.TrimSpace(rawStatus); rawStatus != "" {
		status, err := lifecycle.ParseStatus(rawStatus)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}

	if rawLimit = strings.TrimSpace(rawLimit); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 {
			return filter, models.NewValidationError("limit", "must be a positive integer")
		}
		filter.Limit = min(limit, MaxLimit)
	}
	return filter, nil
}

func parseFloat(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, models.NewValidationError(field, "is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, models.NewValidationError(field, "must be a finite number")
	}
	return v, nil
}
