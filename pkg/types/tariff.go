package types

import (
	"fmt"
	"strings"
)

// Tariff is the transmission tariff class an hour falls into.
type Tariff string

const (
	TariffNight Tariff = "night"
	TariffDay   Tariff = "day"
	TariffFixed Tariff = "fixed"
)

// ParseTariff parses a tariff name. The aliases off_peak and peak are accepted
// for night and day.
func ParseTariff(s string) (Tariff, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "night", "off_peak", "offpeak":
		return TariffNight, nil
	case "day", "peak":
		return TariffDay, nil
	case "fixed":
		return TariffFixed, nil
	default:
		return "", fmt.Errorf("unknown tariff: %q", s)
	}
}

// Block is a market-published block of the delivery day.
type Block string

const (
	BlockNone     Block = ""
	BlockOffPeak1 Block = "off_peak_1"
	BlockPeak     Block = "peak"
	BlockOffPeak2 Block = "off_peak_2"
)

// ParseBlock normalises a market block name such as "Off-peak 1". Unknown
// names return BlockNone.
func ParseBlock(name string) Block {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	switch n {
	case "off_peak_1", "offpeak_1", "offpeak1":
		return BlockOffPeak1
	case "peak":
		return BlockPeak
	case "off_peak_2", "offpeak_2", "offpeak2":
		return BlockOffPeak2
	default:
		return BlockNone
	}
}

// OffPeakStrategy selects how hours are classified into tariffs.
type OffPeakStrategy string

const (
	StrategyNightWindow  OffPeakStrategy = "night_window"
	StrategyMarketBlocks OffPeakStrategy = "market_blocks"
	StrategyNone         OffPeakStrategy = "none"
)

// Validate returns an error for unknown strategies.
func (s OffPeakStrategy) Validate() error {
	switch s {
	case StrategyNightWindow, StrategyMarketBlocks, StrategyNone:
		return nil
	default:
		return fmt.Errorf("%w: unknown off-peak strategy: %q", ErrInvalidConfig, string(s))
	}
}

// Classification is the result of classifying a single hour.
type Classification struct {
	Tariff Tariff `json:"tariff"`
	Block  Block  `json:"block,omitempty"`
}
