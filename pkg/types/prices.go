package types

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/guregu/null/v6"
)

// HourlyPriceSample is a single UTC hour [StartTime, EndTime) of a day.
// ConsumerPrice is null exactly when WholesalePrice is null.
type HourlyPriceSample struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	// WholesalePrice is in currency/MWh as published by the market.
	WholesalePrice null.Float `json:"wholesalePrice"`
	// ConsumerPrice is the composed price in currency/kWh.
	ConsumerPrice null.Float `json:"consumerPrice"`
	Tariff        Tariff     `json:"tariff"`
	Block         Block      `json:"block,omitempty"`
	IsHoliday     bool       `json:"isHoliday"`
	IsWeekend     bool       `json:"isWeekend"`
}

// Contains reports whether t falls within the sample hour.
func (s HourlyPriceSample) Contains(t time.Time) bool {
	return !t.Before(s.StartTime) && t.Before(s.EndTime)
}

// HoursPerDay is the fixed number of slots in a DaySeries.
const HoursPerDay = 24

// DaySeries holds the 24 hourly samples of one UTC calendar day.
type DaySeries struct {
	Date          civil.Date          `json:"date"`
	DataAvailable bool                `json:"dataAvailable"`
	IsHoliday     bool                `json:"isHoliday"`
	IsWeekend     bool                `json:"isWeekend"`
	HourlyPrices  []HourlyPriceSample `json:"hourlyPrices"`
}

// PriceWindow is the yesterday/today/tomorrow view built by a refresh. Yesterday
// is nil when its fetch failed.
type PriceWindow struct {
	Yesterday *DaySeries `json:"yesterday,omitempty"`
	Today     DaySeries  `json:"today"`
	Tomorrow  DaySeries  `json:"tomorrow"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Days returns the present days in chronological order.
func (w PriceWindow) Days() []DaySeries {
	days := make([]DaySeries, 0, 3)
	if w.Yesterday != nil {
		days = append(days, *w.Yesterday)
	}
	return append(days, w.Today, w.Tomorrow)
}

// WholesaleEntry is a single delivery period published by the market.
type WholesaleEntry struct {
	DeliveryStart time.Time          `json:"deliveryStart"`
	DeliveryEnd   time.Time          `json:"deliveryEnd"`
	PricePerArea  map[string]float64 `json:"entryPerArea"`
}

// MarketBlock is a named block of the delivery day such as "Peak".
type MarketBlock struct {
	Name          string    `json:"blockName"`
	DeliveryStart time.Time `json:"deliveryStart"`
	DeliveryEnd   time.Time `json:"deliveryEnd"`
}

// Contains reports whether t falls within the block.
func (b MarketBlock) Contains(t time.Time) bool {
	return !t.Before(b.DeliveryStart) && t.Before(b.DeliveryEnd)
}

// MarketDay is the market's response for a single delivery date. A day with no
// Entries means the market has not published prices yet.
type MarketDay struct {
	DeliveryDate civil.Date       `json:"deliveryDate"`
	Area         string           `json:"area"`
	Currency     string           `json:"currency"`
	Entries      []WholesaleEntry `json:"entries"`
	Blocks       []MarketBlock    `json:"blocks"`
}

// CurrentPrice is the result of looking up a single instant in a PriceWindow.
type CurrentPrice struct {
	Time          time.Time  `json:"time"`
	ConsumerPrice null.Float `json:"consumerPrice"`
	Tariff        Tariff     `json:"tariff,omitempty"`
}
