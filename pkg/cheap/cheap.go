// Package cheap finds contiguous runs of cheap hours in the priced window.
package cheap

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/pricing"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/guregu/null/v6"
	"github.com/samber/lo"
)

// Policy is the cheapness policy and its parameters for one analysis.
type Policy struct {
	Kind             types.CheapPolicy
	AcceptablePrice  float64
	BasePrice        float64
	ThresholdPercent float64
	Precision        int
}

// PolicyFromSettings extracts the policy from settings that already have
// overrides applied.
func PolicyFromSettings(s types.Settings) Policy {
	return Policy{
		Kind:             s.CheapPolicy,
		AcceptablePrice:  s.AcceptablePrice,
		BasePrice:        s.BasePrice,
		ThresholdPercent: s.ThresholdPercent,
		Precision:        s.Components.Precision,
	}
}

type pricedHour struct {
	start time.Time
	end   time.Time
	price float64
}

// accumulator tracks the statistics of the range being extended.
type accumulator struct {
	start time.Time
	end   time.Time
	min   float64
	max   float64
	sum   float64
	count int
}

func (a *accumulator) reset(h pricedHour) {
	*a = accumulator{start: h.start, end: h.end, min: h.price, max: h.price, sum: h.price, count: 1}
}

func (a *accumulator) add(h pricedHour) {
	a.end = h.end
	a.min = math.Min(a.min, h.price)
	a.max = math.Max(a.max, h.price)
	a.sum += h.price
	a.count++
}

func (a *accumulator) emit(precision int) types.CheapRange {
	return types.CheapRange{
		StartTime: a.start,
		EndTime:   a.end,
		HourCount: a.count,
		MinPrice:  pricing.Round(a.min, precision),
		MaxPrice:  pricing.Round(a.max, precision),
		AvgPrice:  pricing.Round(a.sum/float64(a.count), precision),
	}
}

// Analyze returns the cheap ranges among the priced hours of days starting at
// or after the hour containing now. It does not modify days and returns the
// same ranges for the same inputs.
func Analyze(ctx context.Context, days []types.DaySeries, now time.Time, p Policy) types.CheapAnalysisResult {
	cutoff := now.Truncate(time.Hour)

	var future []pricedHour
	for _, d := range days {
		for _, s := range d.HourlyPrices {
			if !s.ConsumerPrice.Valid || s.StartTime.Before(cutoff) {
				continue
			}
			future = append(future, pricedHour{start: s.StartTime, end: s.EndTime, price: s.ConsumerPrice.Float64})
		}
	}
	sort.SliceStable(future, func(i, j int) bool {
		return future[i].start.Before(future[j].start)
	})

	result := types.CheapAnalysisResult{
		CheapRanges: []types.CheapRange{},
		AnalysisInfo: types.AnalysisInfo{
			Policy:              p.Kind,
			AnalysisPeriodHours: len(future),
		},
		LastUpdate: now,
	}
	if len(future) == 0 {
		log.Ctx(ctx).DebugContext(ctx, "no future prices to analyze", slog.Time("now", now))
		return result
	}

	isCheap := threshold(&result.AnalysisInfo, future, p)
	cheap := lo.Filter(future, func(h pricedHour, _ int) bool {
		return isCheap(h.price)
	})

	var acc accumulator
	for i, h := range cheap {
		switch {
		case i == 0:
			acc.reset(h)
		case h.start.Equal(acc.end):
			acc.add(h)
		default:
			result.CheapRanges = append(result.CheapRanges, acc.emit(p.Precision))
			acc.reset(h)
		}
	}
	if len(cheap) > 0 {
		result.CheapRanges = append(result.CheapRanges, acc.emit(p.Precision))
	}
	result.AnalysisInfo.TotalCheapHours = len(cheap)
	return result
}

// threshold records the thresholds of p in info and returns the cheapness test.
// Computed thresholds are rounded to the price precision so they compare
// exactly with the rounded prices.
func threshold(info *types.AnalysisInfo, future []pricedHour, p Policy) func(float64) bool {
	switch p.Kind {
	case types.PolicyRelativeBase:
		band := pricing.Round(p.BasePrice*(1+p.ThresholdPercent/100), p.Precision)
		info.BasePrice = null.FloatFrom(p.BasePrice)
		info.ThresholdPercent = null.FloatFrom(p.ThresholdPercent)
		info.MaxCheapPrice = null.FloatFrom(math.Max(p.BasePrice, band))
		return func(price float64) bool {
			return price <= p.BasePrice || price <= band
		}
	case types.PolicyRelativeMin:
		minPrice := lo.MinBy(future, func(a, b pricedHour) bool { return a.price < b.price }).price
		// a negative minimum moves the threshold below it, leaving nothing cheap
		maxCheap := pricing.Round(minPrice*(1+p.ThresholdPercent/100), p.Precision)
		info.MinPrice = null.FloatFrom(minPrice)
		info.ThresholdPercent = null.FloatFrom(p.ThresholdPercent)
		info.MaxCheapPrice = null.FloatFrom(maxCheap)
		return func(price float64) bool {
			return price <= maxCheap
		}
	default:
		info.AcceptablePrice = null.FloatFrom(p.AcceptablePrice)
		info.MaxCheapPrice = null.FloatFrom(p.AcceptablePrice)
		return func(price float64) bool {
			return price <= p.AcceptablePrice
		}
	}
}
