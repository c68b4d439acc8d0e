// Package pricing layers grid and supplier components on top of wholesale
// prices and builds the hourly day series.
package pricing

import (
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/shopspring/decimal"
)

var (
	hundred    = decimal.NewFromInt(100)
	kwhPerMWh  = decimal.NewFromInt(1000)
	decimalOne = decimal.NewFromInt(1)
)

// Composer computes consumer prices from a PriceComponentSet.
type Composer struct {
	set      types.PriceComponentSet
	strategy types.OffPeakStrategy
}

// NewComposer returns a Composer for set. The strategy decides whether night
// hours without a market block use the night or the first off-peak
// transmission price.
func NewComposer(set types.PriceComponentSet, strategy types.OffPeakStrategy) Composer {
	return Composer{set: set, strategy: strategy}
}

// Transmission returns the transmission component for a classification.
func (c Composer) Transmission(cls types.Classification) types.Component {
	switch cls.Block {
	case types.BlockOffPeak1:
		return c.set.TransmissionOffPeak1
	case types.BlockPeak:
		return c.set.TransmissionPeak
	case types.BlockOffPeak2:
		return c.set.TransmissionOffPeak2
	}
	switch cls.Tariff {
	case types.TariffNight:
		if c.strategy == types.StrategyMarketBlocks {
			return c.set.TransmissionOffPeak1
		}
		return c.set.TransmissionNight
	default:
		// day and fixed
		return c.set.TransmissionDay
	}
}

// Components returns every layer of a consumer price in currency/kWh, starting
// with the wholesale price converted from currency/MWh.
func (c Composer) Components(wholesale float64, cls types.Classification) []types.Component {
	base := decimal.NewFromFloat(wholesale).Div(kwhPerMWh).InexactFloat64()
	return []types.Component{
		{Price: base, Taxed: c.set.WholesaleTaxed},
		c.set.GridExciseDuty,
		c.set.GridRenewableCharge,
		c.Transmission(cls),
		c.set.SupplierRenewableCharge,
		c.set.SupplierMargin,
	}
}

// Compose returns the consumer price of a wholesale price in currency/MWh,
// rounded to the set's precision.
func (c Composer) Compose(wholesale float64, cls types.Classification) float64 {
	return Round(Sum(c.set.TaxRate, c.Components(wholesale, cls)...), c.set.Precision)
}

// Sum adds components, multiplying every taxed one by 1+taxRate/100. The
// result does not depend on the order of components.
func Sum(taxRate float64, components ...types.Component) float64 {
	factor := decimalOne.Add(decimal.NewFromFloat(taxRate).Div(hundred))
	total := decimal.Zero
	for _, comp := range components {
		v := decimal.NewFromFloat(comp.Price)
		if comp.Taxed {
			v = v.Mul(factor)
		}
		total = total.Add(v)
	}
	return total.InexactFloat64()
}

// Round rounds v half away from zero to precision decimal digits.
func Round(v float64, precision int) float64 {
	return decimal.NewFromFloat(v).Round(int32(precision)).InexactFloat64()
}
