// Package geoquery implements bounding box containment and radius queries
// over report locations.
package geoquery

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/AniketPatel148/CivicLens/models"
)

const (
	EarthRadiusKm   = 6371.0
	DefaultRadiusKm = 10.0
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// NewBBox validates the four bounds. A box whose SW longitude is greater
// than its NE longitude crosses the antimeridian.
func NewBBox(swLng, swLat, neLng, neLat float64) (models.BBox, error) {
	for _, v := range []float64{swLng, swLat, neLng, neLat} {
		if !finite(v) {
			return models.BBox{}, models.NewValidationError("bbox", "bounds must be finite numbers")
		}
	}
	if math.Abs(swLat) > 90 || math.Abs(neLat) > 90 {
		return models.BBox{}, models.NewValidationError("bbox", "latitude must be within [-90, 90]")
	}
	if math.Abs(swLng) > 180 || math.Abs(neLng) > 180 {
		return models.BBox{}, models.NewValidationError("bbox", "longitude must be within [-180, 180]")
	}
	if swLat > neLat {
		return models.BBox{}, models.NewValidationError("bbox", "south latitude is greater than north latitude")
	}
	return models.BBox{SWLng: swLng, SWLat: swLat, NELng: neLng, NELat: neLat}, nil
}

// ParseBBox parses "swLng,swLat,neLng,neLat".
func ParseBBox(raw string) (models.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return models.BBox{}, models.NewValidationError("bbox", "expected swLng,swLat,neLng,neLat")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.BBox{}, models.NewValidationError("bbox", "bounds must be finite numbers")
		}
		v[i] = f
	}
	return NewBBox(v[0], v[1], v[2], v[3])
}

// Rect converts b to a spherical rectangle. Corners go through the same
// degree conversion as points so boundary points compare equal.
func Rect(b models.BBox) s2.Rect {
	sw := s2.LatLngFromDegrees(b.SWLat, b.SWLng)
	ne := s2.LatLngFromDegrees(b.NELat, b.NELng)
	return s2.Rect{
		Lat: r1.Interval{Lo: sw.Lat.Radians(), Hi: ne.Lat.Radians()},
		Lng: s1.IntervalFromEndpoints(sw.Lng.Radians(), ne.Lng.Radians()),
	}
}

// Contains reports whether loc lies inside b, boundary included.
func Contains(b models.BBox, loc models.Location) bool {
	return Rect(b).ContainsLatLng(s2.LatLngFromDegrees(loc.Lat, loc.Lng))
}

// FindInBBox filters reports to b and status (empty matches any), newest
// first, at most limit results, without image payloads.
func FindInBBox(reports []models.Report, b models.BBox, status models.Status, limit int) []models.Report {
	rect := Rect(b)
	out := make([]models.Report, 0)
	for _, r := range reports {
		if status != "" && r.Status != status {
			continue
		}
		if !rect.ContainsLatLng(s2.LatLngFromDegrees(r.Location.Lat, r.Location.Lng)) {
			continue
		}
		out = append(out, r.Lite())
	}
	SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SortNewestFirst orders by CreatedAt descending, then ID.
func SortNewestFirst(reports []models.Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].CreatedAt.After(reports[j].CreatedAt)
		}
		return reports[i].ID < reports[j].ID
	})
}

// DistanceKm is the great-circle (Haversine) distance between two points.
func DistanceKm(a, b models.Location) float64 {
	return s2.LatLngFromDegrees(a.Lat, a.Lng).Distance(s2.LatLngFromDegrees(b.Lat, b.Lng)).Radians() * EarthRadiusKm
}

// FindNearby keeps the candidates within radiusKm of center, closest first.
// Equal distances are ordered newest first, then by ID.
func FindNearby(center models.Location, radiusKm float64, candidates []models.Report) []models.NearbyReport {
	out := make([]models.NearbyReport, 0)
	for _, r := range candidates {
		d := DistanceKm(center, r.Location)
		if d <= radiusKm {
			out = append(out, models.NearbyReport{Report: r, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		if !a.Report.CreatedAt.Equal(b.Report.CreatedAt) {
			return a.Report.CreatedAt.After(b.Report.CreatedAt)
		}
		return a.Report.ID < b.Report.ID
	})
	return out
}

// BBoxAround returns a box covering every point within radiusKm of center.
// Near a pole it spans all longitudes; across the antimeridian SWLng > NELng.
func BBoxAround(center models.Location, radiusKm float64) models.BBox {
	angle := s1.Angle(radiusKm/EarthRadiusKm) * s1.Radian
	c := s2.CapFromCenterAngle(s2.PointFromLatLng(s2.LatLngFromDegrees(center.Lat, center.Lng)), angle)
	rect := c.RectBound()
	lo, hi := rect.Lo(), rect.Hi()
	b := models.BBox{
		SWLng: lo.Lng.Degrees(),
		SWLat: lo.Lat.Degrees(),
		NELng: hi.Lng.Degrees(),
		NELat: hi.Lat.Degrees(),
	}
	if rect.Lng.IsFull() {
		b.SWLng, b.NELng = -180, 180
	}
	return b
}

// ValidLocation reports whether loc is a finite WGS84 coordinate.
func ValidLocation(loc models.Location) bool {
	return finite(loc.Lat) && finite(loc.Lng) && math.Abs(loc.Lat) <= 90 && math.Abs(loc.Lng) <= 180
}
