package stats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniketPatel148/CivicLens/models"
)

func hours(h int) *int { return &h }

func row(zip string, dept models.Department, status models.Status, h *int) models.StatRow {
	return models.StatRow{Zipcode: zip, Department: dept, Status: status, ResolutionTimeHours: h}
}

func TestZipcodeAggregation(t *testing.T) {
	rows := []models.StatRow{
		row("77002", models.DepartmentPublicWorks, models.StatusResolved, hours(24)),
		row("77002", models.DepartmentSanitation, models.StatusResolved, hours(48)),
		row("77002", models.DepartmentSanitation, models.StatusPending, nil),
	}

	summary := CitywideSummary(rows)
	require.Len(t, summary.ByZipcode, 1)
	z := summary.ByZipcode[0]
	assert.Equal(t, "77002", z.Zipcode)
	assert.Equal(t, 3, z.TotalReports)
	assert.Equal(t, 2, z.ResolvedReports)
	assert.Equal(t, 1, z.PendingReports)
	require.NotNil(t, z.AvgResolutionHours)
	assert.Equal(t, 36.0, *z.AvgResolutionHours)
	assert.Equal(t, 1.5, *z.AvgResolutionDays)
	assert.Equal(t, 66.7, z.ResolutionRate)
	assert.Equal(t, models.RatingGood, z.Rating)
}

func TestNullSafety(t *testing.T) {
	rows := []models.StatRow{
		row("77010", models.DepartmentParks, models.StatusPending, nil),
		row("77010", models.DepartmentParks, models.StatusInProgress, nil),
	}

	summary := CitywideSummary(rows)
	z := summary.ByZipcode[0]
	assert.Nil(t, z.AvgResolutionHours)
	assert.Nil(t, z.AvgResolutionDays)
	assert.Equal(t, 0.0, z.ResolutionRate)
	assert.Equal(t, models.RatingNoData, z.Rating)
	assert.Equal(t, 1, z.InProgressReports)

	data, err := json.Marshal(z)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"avgResolutionHours":null`)
	assert.Contains(t, string(data), `"avgResolutionDays":null`)

	empty := CitywideSummary(nil)
	assert.Equal(t, 0, empty.Overall.TotalReports)
	assert.Nil(t, empty.Overall.AvgResolutionHours)
	assert.NotNil(t, empty.ByZipcode)
}

func TestCitywideSummary(t *testing.T) {
	rows := []models.StatRow{
		row("", models.DepartmentGeneral, models.StatusResolved, hours(10)),
		row("77002", models.DepartmentPublicWorks, models.StatusResolved, hours(5)),
		row("77003", models.DepartmentPublicWorks, models.StatusPending, nil),
		row("77003", models.DepartmentPublicWorks, models.StatusPending, nil),
		row("77001", models.DepartmentPublicWorks, models.StatusPending, nil),
	}

	summary := CitywideSummary(rows)

	assert.Equal(t, 5, summary.Overall.TotalReports)
	assert.Equal(t, 2, summary.Overall.ResolvedReports)
	require.NotNil(t, summary.Overall.AvgResolutionHours)
	assert.Equal(t, 7.5, *summary.Overall.AvgResolutionHours)
	assert.Equal(t, 0.3, *summary.Overall.AvgResolutionDays)

	zips := make([]string, len(summary.ByZipcode))
	for i, z := range summary.ByZipcode {
		zips[i] = z.Zipcode
	}
	assert.Equal(t, []string{"77003", "77001", "77002"}, zips, "no empty zipcode group, busiest first, ties by zipcode")
}

func TestZipcodeDetail(t *testing.T) {
	rows := []models.StatRow{
		row("77002", models.DepartmentSanitation, models.StatusResolved, hours(48)),
		row("77002", models.DepartmentPublicWorks, models.StatusResolved, hours(24)),
		row("77002", models.DepartmentPublicWorks, models.StatusResolved, hours(25)),
		row("77002", models.DepartmentParks, models.StatusPending, nil),
		row("77002", models.DepartmentUtilities, models.StatusAcknowledged, nil),
		row("77099", models.DepartmentSanitation, models.StatusResolved, hours(1)),
	}

	detail := ZipcodeDetail(rows, "77002")
	assert.Equal(t, "77002", detail.Zipcode)
	assert.Equal(t, 5, detail.Overall.TotalReports)
	assert.Equal(t, 3, detail.Overall.ResolvedReports)
	assert.Equal(t, 1, detail.Overall.PendingReports)
	require.NotNil(t, detail.Overall.AvgResolutionHours)
	assert.Equal(t, 32.3, *detail.Overall.AvgResolutionHours)

	depts := make([]models.Department, len(detail.ByDepartment))
	for i, d := range detail.ByDepartment {
		depts[i] = d.Department
	}
	assert.Equal(t, []models.Department{
		models.DepartmentPublicWorks,
		models.DepartmentSanitation,
		models.DepartmentParks,
		models.DepartmentUtilities,
	}, depts)
	assert.Equal(t, 24.5, *detail.ByDepartment[0].AvgResolutionHours)
	assert.Nil(t, detail.ByDepartment[2].AvgResolutionHours)

	none := ZipcodeDetail(rows, "10001")
	assert.Equal(t, 0, none.Overall.TotalReports)
	assert.Empty(t, none.ByDepartment)
}

func TestRate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		avg      *float64
		expected models.Rating
	}{
		{nil, models.RatingNoData},
		{f(0), models.RatingExcellent},
		{f(24), models.RatingExcellent},
		{f(24.1), models.RatingGood},
		{f(48), models.RatingGood},
		{f(72), models.RatingAverage},
		{f(168), models.RatingSlow},
		{f(168.1), models.RatingVerySlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Rate(tt.avg))
	}
}
