package pricing

import (
	"time"

	"github.com/bitosome/real-electricity-price/pkg/types"
)

// SampleAt returns the sample whose hour contains t.
func SampleAt(days []types.DaySeries, t time.Time) (types.HourlyPriceSample, bool) {
	for _, d := range days {
		for _, s := range d.HourlyPrices {
			if s.Contains(t) {
				return s, true
			}
		}
	}
	return types.HourlyPriceSample{}, false
}

// CurrentAt returns the consumer price and tariff at t. The price is null when
// t is outside the window or its hour has no data.
func CurrentAt(days []types.DaySeries, t time.Time) types.CurrentPrice {
	cur := types.CurrentPrice{Time: t}
	if s, ok := SampleAt(days, t); ok {
		cur.ConsumerPrice = s.ConsumerPrice
		cur.Tariff = s.Tariff
	}
	return cur
}
