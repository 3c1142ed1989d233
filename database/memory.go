package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AniketPatel148/CivicLens/geoquery"
	"github.com/AniketPatel148/CivicLens/lifecycle"
	"github.com/AniketPatel148/CivicLens/models"
)

var worldBBox = models.BBox{SWLng: -180, SWLat: -90, NELng: 180, NELat: 90}

// MemoryStore keeps reports in process memory. It backs local runs
// without MySQL and the service tests.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]models.Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string]models.Report)}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateReport(_ context.Context, r models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[r.ID]; ok {
		return fmt.Errorf("report %s already exists", r.ID)
	}
	m.reports[r.ID] = r
	return nil
}

func (m *MemoryStore) GetReport(_ context.Context, id string) (*models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) ListReports(_ context.Context, filter models.ReportFilter) ([]models.Report, error) {
	m.mu.RLock()
	all := make([]models.Report, 0, len(m.reports))
	for _, r := range m.reports {
		all = append(all, r)
	}
	m.mu.RUnlock()

	b := worldBBox
	if filter.BBox != nil {
		b = *filter.BBox
	}
	return geoquery.FindInBBox(all, b, filter.Status, filter.Limit), nil
}

// SetStatus applies the transition under the write lock.
func (m *MemoryStore) SetStatus(_ context.Context, id string, status models.Status, now time.Time) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	next := lifecycle.Apply(r, status, now)
	m.reports[id] = next
	lite := next.Lite()
	return &lite, nil
}

func (m *MemoryStore) ListStatRows(_ context.Context, zipcode string) ([]models.StatRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.StatRow, 0, len(m.reports))
	for _, r := range m.reports {
		if zipcode != "" && r.Zipcode != zipcode {
			continue
		}
		out = append(out, models.StatRow{
			Zipcode:             r.Zipcode,
			Department:          r.Department,
			Status:              r.Status,
			ResolutionTimeHours: r.ResolutionTimeHours,
		})
	}
	return out, nil
}
