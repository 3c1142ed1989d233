package geoquery

import (
	geojson "github.com/paulmach/go.geojson"

	"github.com/AniketPatel148/CivicLens/models"
)

// FeatureCollection renders reports as GeoJSON points. Coordinates are in
// [lng, lat] order.
func FeatureCollection(reports []models.Report) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range reports {
		f := geojson.NewPointFeature([]float64{r.Location.Lng, r.Location.Lat})
		f.ID = r.ID
		f.SetProperty("issueType", r.IssueType)
		f.SetProperty("severity", r.Severity)
		f.SetProperty("department", r.Department)
		f.SetProperty("status", r.Status)
		f.SetProperty("summary", r.Summary)
		f.SetProperty("zipcode", r.Zipcode)
		f.SetProperty("createdAt", r.CreatedAt)
		fc.AddFeature(f)
	}
	return fc
}
