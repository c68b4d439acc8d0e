package types

import "fmt"

// Component is a single additive price layer in currency/kWh.
type Component struct {
	Price float64 `json:"price"`
	// Taxed applies the set's TaxRate to this component.
	Taxed bool `json:"taxed"`
}

// PriceComponentSet is the immutable snapshot of every configured price layer.
type PriceComponentSet struct {
	// WholesaleTaxed applies the tax to the market price itself.
	WholesaleTaxed bool `json:"wholesaleTaxed"`

	GridExciseDuty      Component `json:"gridExciseDuty"`
	GridRenewableCharge Component `json:"gridRenewableCharge"`

	TransmissionNight Component `json:"transmissionNight"`
	TransmissionDay   Component `json:"transmissionDay"`
	// Block transmission prices are only used by the market_blocks strategy.
	TransmissionOffPeak1 Component `json:"transmissionOffPeak1"`
	TransmissionPeak     Component `json:"transmissionPeak"`
	TransmissionOffPeak2 Component `json:"transmissionOffPeak2"`

	SupplierRenewableCharge Component `json:"supplierRenewableCharge"`
	SupplierMargin          Component `json:"supplierMargin"`

	// TaxRate is a percentage, 24 means 24%.
	TaxRate float64 `json:"taxRate"`
	// Precision is the number of decimal digits composed prices are rounded to.
	Precision int `json:"precision"`
}

// DefaultPriceComponentSet returns the Estonian defaults: Elektrilevi grid fees
// with a typical supplier margin.
func DefaultPriceComponentSet() PriceComponentSet {
	return PriceComponentSet{
		WholesaleTaxed:          true,
		GridExciseDuty:          Component{Price: 0.0026},
		GridRenewableCharge:     Component{Price: 0.0104},
		TransmissionNight:       Component{Price: 0.026},
		TransmissionDay:         Component{Price: 0.0458},
		TransmissionOffPeak1:    Component{Price: 0.026},
		TransmissionPeak:        Component{Price: 0.0458},
		TransmissionOffPeak2:    Component{Price: 0.026},
		SupplierRenewableCharge: Component{Price: 0},
		SupplierMargin:          Component{Price: 0.0105},
		TaxRate:                 24,
		Precision:               6,
	}
}

// Validate checks the tax rate and precision.
func (s PriceComponentSet) Validate() error {
	if s.TaxRate < 0 || s.TaxRate > 100 {
		return fmt.Errorf("%w: tax rate %v outside 0-100", ErrInvalidConfig, s.TaxRate)
	}
	if s.Precision < 0 || s.Precision > 12 {
		return fmt.Errorf("%w: precision %d outside 0-12", ErrInvalidConfig, s.Precision)
	}
	return nil
}
