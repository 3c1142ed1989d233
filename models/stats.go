package models

// Rating buckets an average resolution time.
type Rating string

const (
	RatingNoData    Rating = "no_data"
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingAverage   Rating = "average"
	RatingSlow      Rating = "slow"
	RatingVerySlow  Rating = "very_slow"
)

// ResolutionStats holds the responsiveness metrics of a group of reports.
// Averages are nil when no report in the group has been resolved.
type ResolutionStats struct {
	TotalReports       int      `json:"totalReports"`
	ResolvedReports    int      `json:"resolvedReports"`
	PendingReports     int      `json:"pendingReports"`
	InProgressReports  int      `json:"inProgressReports"`
	AvgResolutionHours *float64 `json:"avgResolutionHours"`
	AvgResolutionDays  *float64 `json:"avgResolutionDays"`
	ResolutionRate     float64  `json:"resolutionRate"`
	Rating             Rating   `json:"rating"`
}

type ZipcodeStats struct {
	Zipcode string `json:"zipcode"`
	ResolutionStats
}

type DepartmentStats struct {
	Department Department `json:"department"`
	ResolutionStats
}

// CitywideSummary is the citywide and per zipcode breakdown.
type CitywideSummary struct {
	Overall   ResolutionStats `json:"overall"`
	ByZipcode []ZipcodeStats  `json:"byZipcode"`
}

// ZipcodeDetail is the per department breakdown inside one zipcode.
type ZipcodeDetail struct {
	Zipcode      string            `json:"zipcode"`
	Overall      ResolutionStats   `json:"overall"`
	ByDepartment []DepartmentStats `json:"byDepartment"`
}
