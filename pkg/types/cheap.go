package types

import (
	"fmt"
	"time"

	"github.com/guregu/null/v6"
)

// CheapPolicy selects how the cheapness threshold is derived.
type CheapPolicy string

const (
	// PolicyAbsolute marks hours priced at or below AcceptablePrice.
	PolicyAbsolute CheapPolicy = "absolute"
	// PolicyRelativeBase marks hours at or below BasePrice or within
	// ThresholdPercent above it.
	PolicyRelativeBase CheapPolicy = "relative_base"
	// PolicyRelativeMin marks hours within ThresholdPercent above the lowest
	// future price.
	PolicyRelativeMin CheapPolicy = "relative_min"
)

// Validate returns an error for unknown policies.
func (p CheapPolicy) Validate() error {
	switch p {
	case PolicyAbsolute, PolicyRelativeBase, PolicyRelativeMin:
		return nil
	default:
		return fmt.Errorf("%w: unknown cheap policy: %q", ErrInvalidConfig, string(p))
	}
}

// CheapRange is a maximal run of contiguous cheap hours.
type CheapRange struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	HourCount int       `json:"hourCount"`
	MinPrice  float64   `json:"minPrice"`
	MaxPrice  float64   `json:"maxPrice"`
	AvgPrice  float64   `json:"avgPrice"`
}

// Contains reports whether t falls within the range.
func (r CheapRange) Contains(t time.Time) bool {
	return !t.Before(r.StartTime) && t.Before(r.EndTime)
}

// AnalysisInfo describes the thresholds a CheapAnalysisResult was computed
// with. Thresholds that do not apply to the policy are null.
type AnalysisInfo struct {
	Policy              CheapPolicy `json:"policy"`
	AcceptablePrice     null.Float  `json:"acceptablePrice"`
	BasePrice           null.Float  `json:"basePrice"`
	ThresholdPercent    null.Float  `json:"thresholdPercent"`
	MinPrice            null.Float  `json:"minPrice"`
	MaxCheapPrice       null.Float  `json:"maxCheapPrice"`
	TotalCheapHours     int         `json:"totalCheapHours"`
	AnalysisPeriodHours int         `json:"analysisPeriodHours"`
}

// CheapAnalysisResult is an immutable analysis snapshot.
type CheapAnalysisResult struct {
	CheapRanges  []CheapRange `json:"cheapRanges"`
	AnalysisInfo AnalysisInfo `json:"analysisInfo"`
	LastUpdate   time.Time    `json:"lastUpdate"`
	TriggerTime  TimeOfDay    `json:"triggerTime"`
}

// ActiveRange returns the range containing t.
func (r CheapAnalysisResult) ActiveRange(t time.Time) (CheapRange, bool) {
	for _, cr := range r.CheapRanges {
		if cr.Contains(t) {
			return cr, true
		}
	}
	return CheapRange{}, false
}

// NextRange returns the first range starting after t.
func (r CheapAnalysisResult) NextRange(t time.Time) (CheapRange, bool) {
	for _, cr := range r.CheapRanges {
		if cr.StartTime.After(t) {
			return cr, true
		}
	}
	return CheapRange{}, false
}
