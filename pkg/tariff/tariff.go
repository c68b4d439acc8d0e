// Package tariff classifies hours into night, day or fixed transmission tariffs.
package tariff

import (
	"fmt"
	"time"

	"github.com/bitosome/real-electricity-price/pkg/types"
)

// Config configures a Classifier.
type Config struct {
	Strategy        types.OffPeakStrategy
	NightStartHour  int
	NightEndHour    int
	NightOnSaturday bool
	NightOnSunday   bool
	NightOnHoliday  bool
}

// ConfigFromSettings extracts the tariff configuration from settings.
func ConfigFromSettings(s types.Settings) Config {
	return Config{
		Strategy:        s.OffPeakStrategy,
		NightStartHour:  s.NightStartHour,
		NightEndHour:    s.NightEndHour,
		NightOnSaturday: s.NightOnSaturday,
		NightOnSunday:   s.NightOnSunday,
		NightOnHoliday:  s.NightOnHoliday,
	}
}

// Validate rejects hours outside 0-23 and an empty night window. Both hours
// being 0 is allowed and means no night hours.
func (c Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.NightStartHour < 0 || c.NightStartHour > 23 {
		return fmt.Errorf("%w: night start hour %d outside 0-23", types.ErrInvalidConfig, c.NightStartHour)
	}
	if c.NightEndHour < 0 || c.NightEndHour > 23 {
		return fmt.Errorf("%w: night end hour %d outside 0-23", types.ErrInvalidConfig, c.NightEndHour)
	}
	if c.Strategy == types.StrategyNightWindow && c.NightStartHour == c.NightEndHour && c.NightEndHour != 0 {
		return fmt.Errorf("%w: night start and end are both %d", types.ErrInvalidConfig, c.NightStartHour)
	}
	return nil
}

// Day holds the calendar facts of the local day an hour belongs to.
type Day struct {
	Weekday   time.Weekday
	IsHoliday bool
}

// Classifier assigns a tariff to each hour. It holds no mutable state.
type Classifier struct {
	cfg Config
}

// New validates cfg and returns a Classifier.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

// Strategy returns the configured strategy.
func (c *Classifier) Strategy() types.OffPeakStrategy {
	return c.cfg.Strategy
}

// Classify returns the tariff of the hour starting at t. local must be t in
// the configured zone; day carries the calendar facts of that local day.
// Blocks are only consulted by the market_blocks strategy.
func (c *Classifier) Classify(local time.Time, day Day, blocks []types.MarketBlock) types.Classification {
	if c.cfg.Strategy == types.StrategyNone {
		return types.Classification{Tariff: types.TariffFixed}
	}

	switch {
	case day.IsHoliday && c.cfg.NightOnHoliday,
		day.Weekday == time.Saturday && c.cfg.NightOnSaturday,
		day.Weekday == time.Sunday && c.cfg.NightOnSunday:
		return types.Classification{Tariff: types.TariffNight}
	}

	if c.cfg.Strategy == types.StrategyMarketBlocks {
		for _, b := range blocks {
			if !b.Contains(local) {
				continue
			}
			block := types.ParseBlock(b.Name)
			if block == types.BlockPeak {
				return types.Classification{Tariff: types.TariffDay, Block: block}
			}
			return types.Classification{Tariff: types.TariffNight, Block: block}
		}
		return types.Classification{Tariff: types.TariffNight}
	}

	if c.inNightWindow(local.Hour()) {
		return types.Classification{Tariff: types.TariffNight}
	}
	return types.Classification{Tariff: types.TariffDay}
}

func (c *Classifier) inNightWindow(h int) bool {
	start, end := c.cfg.NightStartHour, c.cfg.NightEndHour
	if start > end {
		return h >= start || h < end
	}
	return h >= start && h < end
}
