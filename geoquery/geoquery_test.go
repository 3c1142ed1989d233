package geoquery

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniketPatel148/CivicLens/models"
)

// kmToLatDegrees converts a meridian distance to degrees of latitude.
func kmToLatDegrees(km float64) float64 {
	return km / EarthRadiusKm * 180 / math.Pi
}

func report(id string, lat, lng float64, created time.Time) models.Report {
	return models.Report{
		ID:        id,
		ImageRef:  "data:image/jpeg;base64,AA==",
		Location:  models.Location{Lat: lat, Lng: lng},
		Status:    models.StatusPending,
		CreatedAt: created,
	}
}

func TestParseBBox(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", "-95.5,29.6,-95.2,29.9", false},
		{"spaces", " -95.5 , 29.6 , -95.2 , 29.9 ", false},
		{"antimeridian", "170,-10,-170,10", false},
		{"too few parts", "-95.5,29.6,-95.2", true},
		{"not a number", "a,29.6,-95.2,29.9", true},
		{"NaN", "NaN,29.6,-95.2,29.9", true},
		{"infinite", "-95.5,29.6,Inf,29.9", true},
		{"latitude out of range", "-95.5,-91,-95.2,29.9", true},
		{"south above north", "-95.5,30,-95.2,29.9", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBBox(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, models.IsValidation(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestContainsBoundaryInclusive(t *testing.T) {
	b, err := NewBBox(-95.5, 29.6, -95.2, 29.9)
	require.NoError(t, err)

	assert.True(t, Contains(b, models.Location{Lat: 29.6, Lng: -95.5}), "SW corner")
	assert.True(t, Contains(b, models.Location{Lat: 29.9, Lng: -95.2}), "NE corner")
	assert.True(t, Contains(b, models.Location{Lat: 29.75, Lng: -95.2}), "east edge")
	assert.True(t, Contains(b, models.Location{Lat: 29.6, Lng: -95.3}), "south edge")
	assert.True(t, Contains(b, models.Location{Lat: 29.7604, Lng: -95.3698}))
	assert.False(t, Contains(b, models.Location{Lat: 29.5999, Lng: -95.3}))
	assert.False(t, Contains(b, models.Location{Lat: 29.7, Lng: -95.1999}))
}

func TestContainsAntimeridian(t *testing.T) {
	b, err := NewBBox(170, -10, -170, 10)
	require.NoError(t, err)

	assert.True(t, Contains(b, models.Location{Lat: 0, Lng: 175}))
	assert.True(t, Contains(b, models.Location{Lat: 0, Lng: -175}))
	assert.True(t, Contains(b, models.Location{Lat: 0, Lng: 180}))
	assert.True(t, Contains(b, models.Location{Lat: 0, Lng: -180}))
	assert.False(t, Contains(b, models.Location{Lat: 0, Lng: 0}))

	world, err := NewBBox(-180, -90, 180, 90)
	require.NoError(t, err)
	assert.True(t, Contains(world, models.Location{Lat: 0, Lng: -180}))
	assert.True(t, Contains(world, models.Location{Lat: 45, Lng: 12}))
}

func TestFindInBBox(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	resolved := report("r", 29.7, -95.3, base.Add(3*time.Hour))
	resolved.Status = models.StatusResolved
	reports := []models.Report{
		report("a", 29.7, -95.3, base),
		report("b", 29.9, -95.2, base.Add(time.Hour)),
		report("out", 30.5, -95.3, base.Add(2*time.Hour)),
		resolved,
	}
	b, err := NewBBox(-95.5, 29.6, -95.2, 29.9)
	require.NoError(t, err)

	all := FindInBBox(reports, b, "", 100)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"r", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	for _, r := range all {
		assert.Empty(t, r.ImageRef)
	}

	pending := FindInBBox(reports, b, models.StatusPending, 100)
	assert.Len(t, pending, 2)

	limited := FindInBBox(reports, b, "", 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "r", limited[0].ID)

	assert.NotEmpty(t, reports[0].ImageRef, "input must not be modified")
}

func TestFindNearbyRadius(t *testing.T) {
	now := time.Now()
	center := models.Location{Lat: 0, Lng: 0}
	near := report("near", kmToLatDegrees(5), 0, now)
	far := report("far", kmToLatDegrees(15), 0, now)

	got := FindNearby(center, DefaultRadiusKm, []models.Report{far, near})
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].Report.ID)
	assert.InDelta(t, 5.0, got[0].DistanceKm, 1e-6)
}

func TestFindNearbyOrdering(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	center := models.Location{Lat: 29.7604, Lng: -95.3698}
	reports := []models.Report{
		report("old", 29.77, -95.37, base),
		report("new", 29.77, -95.37, base.Add(time.Hour)),
		report("closest", 29.7605, -95.3698, base),
		report("b-tie", 29.78, -95.37, base),
		report("a-tie", 29.78, -95.37, base),
	}

	got := FindNearby(center, 10, reports)
	ids := make([]string, len(got))
	for i, n := range got {
		ids[i] = n.Report.ID
	}
	assert.Equal(t, []string{"closest", "new", "old", "a-tie", "b-tie"}, ids)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].DistanceKm, got[i].DistanceKm)
	}
}

func TestDistanceKm(t *testing.T) {
	// Houston to Dallas, roughly 362 km.
	d := DistanceKm(models.Location{Lat: 29.7604, Lng: -95.3698}, models.Location{Lat: 32.7767, Lng: -96.7970})
	assert.InDelta(t, 362, d, 2)
	assert.Equal(t, 0.0, DistanceKm(models.Location{Lat: 10, Lng: 10}, models.Location{Lat: 10, Lng: 10}))
}

func TestBBoxAround(t *testing.T) {
	center := models.Location{Lat: 0, Lng: 0}
	b := BBoxAround(center, 10)
	assert.InDelta(t, -kmToLatDegrees(10), b.SWLat, 1e-6)
	assert.InDelta(t, kmToLatDegrees(10), b.NELat, 1e-6)
	assert.True(t, Contains(b, models.Location{Lat: kmToLatDegrees(9.99), Lng: 0}))

	crossing := BBoxAround(models.Location{Lat: 0, Lng: 179.95}, 20)
	assert.Greater(t, crossing.SWLng, crossing.NELng)
	assert.True(t, Contains(crossing, models.Location{Lat: 0, Lng: -179.99}))

	polar := BBoxAround(models.Location{Lat: 89.99, Lng: 0}, 50)
	assert.Equal(t, -180.0, polar.SWLng)
	assert.Equal(t, 180.0, polar.NELng)
	assert.InDelta(t, 90.0, polar.NELat, 1e-9)
}

func TestValidLocation(t *testing.T) {
	assert.True(t, ValidLocation(models.Location{Lat: 90, Lng: -180}))
	assert.False(t, ValidLocation(models.Location{Lat: 90.1, Lng: 0}))
	assert.False(t, ValidLocation(models.Location{Lat: 0, Lng: math.NaN()}))
}

func TestFeatureCollection(t *testing.T) {
	r := report("a", 29.76, -95.37, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	r.IssueType = models.IssueTypePothole

	data, err := json.Marshal(FeatureCollection([]models.Report{r.Lite()}))
	require.NoError(t, err)

	var decoded struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "FeatureCollection", decoded.Type)
	require.Len(t, decoded.Features, 1)
	assert.Equal(t, "a", decoded.Features[0].ID)
	assert.Equal(t, []float64{-95.37, 29.76}, decoded.Features[0].Geometry.Coordinates)
	assert.Equal(t, "pothole", decoded.Features[0].Properties["issueType"])
}
