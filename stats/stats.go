// Package stats aggregates resolution performance over report stat rows.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/AniketPatel148/CivicLens/models"
)

var (
	hoursPerDay = decimal.NewFromInt(24)
	hundred     = decimal.NewFromInt(100)
)

type accumulator struct {
	total      int64
	resolved   int64
	pending    int64
	inProgress int64

	hoursSum   int64
	hoursCount int64
}

func (a *accumulator) add(r models.StatRow) {
	a.total++
	switch r.Status {
	case models.StatusResolved:
		a.resolved++
	case models.StatusPending:
		a.pending++
	case models.StatusInProgress:
		a.inProgress++
	}
	if r.ResolutionTimeHours != nil {
		a.hoursSum += int64(*r.ResolutionTimeHours)
		a.hoursCount++
	}
}

func float(d decimal.Decimal) *float64 {
	f := d.InexactFloat64()
	return &f
}

func (a *accumulator) result() models.ResolutionStats {
	s := models.ResolutionStats{
		TotalReports:      int(a.total),
		ResolvedReports:   int(a.resolved),
		PendingReports:    int(a.pending),
		InProgressReports: int(a.inProgress),
	}
	if a.total > 0 {
		rate := decimal.NewFromInt(a.resolved).Div(decimal.NewFromInt(a.total)).Mul(hundred)
		s.ResolutionRate = rate.Round(1).InexactFloat64()
	}
	if a.hoursCount > 0 {
		avg := decimal.NewFromInt(a.hoursSum).Div(decimal.NewFromInt(a.hoursCount))
		s.AvgResolutionHours = float(avg.Round(1))
		s.AvgResolutionDays = float(avg.Div(hoursPerDay).Round(1))
	}
	s.Rating = Rate(s.AvgResolutionHours)
	return s
}

// Rate buckets an average resolution time. A nil average has no rating.
func Rate(avgHours *float64) models.Rating {
	switch {
	case avgHours == nil:
		return models.RatingNoData
	case *avgHours <= 24:
		return models.RatingExcellent
	case *avgHours <= 48:
		return models.RatingGood
	case *avgHours <= 72:
		return models.RatingAverage
	case *avgHours <= 168:
		return models.RatingSlow
	default:
		return models.RatingVerySlow
	}
}

// CitywideSummary computes overall metrics and a per zipcode breakdown,
// busiest zipcodes first. Reports without a zipcode only count overall.
func CitywideSummary(rows []models.StatRow) models.CitywideSummary {
	var overall accumulator
	byZip := make(map[string]*accumulator)
	for _, r := range rows {
		overall.add(r)
		if r.Zipcode == "" {
			continue
		}
		acc, ok := byZip[r.Zipcode]
		if !ok {
			acc = &accumulator{}
			byZip[r.Zipcode] = acc
		}
		acc.add(r)
	}

	zips := make([]models.ZipcodeStats, 0, len(byZip))
	for zip, acc := range byZip {
		zips = append(zips, models.ZipcodeStats{Zipcode: zip, ResolutionStats: acc.result()})
	}
	sort.Slice(zips, func(i, j int) bool {
		if zips[i].TotalReports != zips[j].TotalReports {
			return zips[i].TotalReports > zips[j].TotalReports
		}
		return zips[i].Zipcode < zips[j].Zipcode
	})

	return models.CitywideSummary{Overall: overall.result(), ByZipcode: zips}
}

// ZipcodeDetail computes metrics for one zipcode and its departments,
// fastest department first and departments without resolutions last.
func ZipcodeDetail(rows []models.StatRow, zipcode string) models.ZipcodeDetail {
	var overall accumulator
	byDept := make(map[models.Department]*accumulator)
	for _, r := range rows {
		if r.Zipcode != zipcode {
			continue
		}
		overall.add(r)
		acc, ok := byDept[r.Department]
		if !ok {
			acc = &accumulator{}
			byDept[r.Department] = acc
		}
		acc.add(r)
	}

	depts := make([]models.DepartmentStats, 0, len(byDept))
	for dept, acc := range byDept {
		depts = append(depts, models.DepartmentStats{Department: dept, ResolutionStats: acc.result()})
	}
	sort.Slice(depts, func(i, j int) bool {
		a, b := depts[i].AvgResolutionHours, depts[j].AvgResolutionHours
		switch {
		case a == nil && b == nil:
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		}
		return depts[i].Department < depts[j].Department
	})

	return models.ZipcodeDetail{Zipcode: zipcode, Overall: overall.result(), ByDepartment: depts}
}
