package types

import (
	"fmt"
	"time"

	"github.com/bitosome/real-electricity-price/pkg/calendar"
	"github.com/guregu/null/v6"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 4

// Settings represents the configuration stored in the database.
// These are dynamic settings that can be changed without redeploying.
type Settings struct {
	// Market
	MarketProvider string `json:"marketProvider"`
	// Area is the bidding zone, e.g. EE, FI, SE3.
	Area     string `json:"area"`
	Currency string `json:"currency"`
	// CountryCode defaults to the first two letters of Area.
	CountryCode string `json:"countryCode,omitempty"`
	// Subdivision selects regional holidays where the country has them.
	Subdivision string `json:"subdivision,omitempty"`
	// TimeZone defaults to the capital of the country.
	TimeZone string `json:"timeZone,omitempty"`

	// Tariff classification
	OffPeakStrategy OffPeakStrategy `json:"offPeakStrategy"`
	NightStartHour  int             `json:"nightStartHour"`
	NightEndHour    int             `json:"nightEndHour"`
	NightOnSaturday bool            `json:"nightOnSaturday"`
	NightOnSunday   bool            `json:"nightOnSunday"`
	NightOnHoliday  bool            `json:"nightOnHoliday"`

	Components PriceComponentSet `json:"components"`

	// Cheap period analysis
	CheapPolicy      CheapPolicy `json:"cheapPolicy"`
	AcceptablePrice  float64     `json:"acceptablePrice"`
	BasePrice        float64     `json:"basePrice"`
	ThresholdPercent float64     `json:"thresholdPercent"`
	CheapTrigger     TimeOfDay   `json:"cheapTrigger"`
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial, absolute acceptable price
			if s.MarketProvider == "" {
				s.MarketProvider = "nordpool"
				migrated = true
			}
			if s.Area == "" {
				s.Area = "EE"
				migrated = true
			}
			if s.Currency == "" {
				s.Currency = "EUR"
				migrated = true
			}
			if s.NightStartHour == 0 && s.NightEndHour == 0 {
				s.NightStartHour = 22
				s.NightEndHour = 7
				s.NightOnSaturday = true
				s.NightOnSunday = true
				s.NightOnHoliday = true
				migrated = true
			}
			if s.Components == (PriceComponentSet{}) {
				s.Components = DefaultPriceComponentSet()
				migrated = true
			}
			if s.CheapPolicy == "" {
				s.CheapPolicy = PolicyAbsolute
				migrated = true
			}
			if s.AcceptablePrice == 0 {
				s.AcceptablePrice = 0.15
				migrated = true
			}
			if s.CheapTrigger == (TimeOfDay{}) {
				s.CheapTrigger = TimeOfDay{Hour: 14, Minute: 30}
				migrated = true
			}
		case 2:
			// version 2: threshold relative to the lowest future price
			if s.ThresholdPercent == 0 {
				s.ThresholdPercent = 10
				migrated = true
			}
		case 3:
			// version 3: threshold relative to a configured base price
			if s.BasePrice == 0 {
				s.BasePrice = s.AcceptablePrice
				migrated = true
			}
		case 4:
			// version 4: market block tariffs
			if s.OffPeakStrategy == "" {
				s.OffPeakStrategy = StrategyNightWindow
				migrated = true
			}
			c := &s.Components
			if c.TransmissionOffPeak1 == (Component{}) && c.TransmissionPeak == (Component{}) && c.TransmissionOffPeak2 == (Component{}) {
				c.TransmissionOffPeak1 = c.TransmissionNight
				c.TransmissionPeak = c.TransmissionDay
				c.TransmissionOffPeak2 = c.TransmissionNight
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}

// Country returns the configured country or derives it from the area.
func (s Settings) Country() string {
	if s.CountryCode != "" {
		return s.CountryCode
	}
	return calendar.CountryFromArea(s.Area)
}

// Location returns the local time zone used for tariff hours.
func (s Settings) Location() (*time.Location, error) {
	name := s.TimeZone
	if name == "" {
		name = calendar.DefaultTimeZone(s.Country())
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown time zone %q: %v", ErrInvalidConfig, name, err)
	}
	return loc, nil
}

// Validate surfaces every invalid configuration value. Nothing downstream
// re-validates.
func (s Settings) Validate() error {
	if s.Area == "" {
		return fmt.Errorf("%w: area is required", ErrInvalidConfig)
	}
	country := s.Country()
	if !calendar.Supported(country) {
		return fmt.Errorf("%w: unsupported country %q", ErrInvalidConfig, country)
	}
	if s.Subdivision != "" && !calendar.SupportedSubdivision(country, s.Subdivision) {
		return fmt.Errorf("%w: unsupported subdivision %q for %s", ErrInvalidConfig, s.Subdivision, country)
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	if err := s.OffPeakStrategy.Validate(); err != nil {
		return err
	}
	if s.NightStartHour < 0 || s.NightStartHour > 23 || s.NightEndHour < 0 || s.NightEndHour > 23 {
		return fmt.Errorf("%w: night hours %d-%d outside 0-23", ErrInvalidConfig, s.NightStartHour, s.NightEndHour)
	}
	if s.OffPeakStrategy == StrategyNightWindow && s.NightStartHour == s.NightEndHour && s.NightEndHour != 0 {
		return fmt.Errorf("%w: night start and end are both %d", ErrInvalidConfig, s.NightStartHour)
	}
	if err := s.Components.Validate(); err != nil {
		return err
	}
	if err := s.CheapPolicy.Validate(); err != nil {
		return err
	}
	if s.AcceptablePrice < 0 {
		return fmt.Errorf("%w: acceptable price must not be negative", ErrInvalidConfig)
	}
	if s.BasePrice < 0 {
		return fmt.Errorf("%w: base price must not be negative", ErrInvalidConfig)
	}
	if s.ThresholdPercent < 0 {
		return fmt.Errorf("%w: threshold percent must not be negative", ErrInvalidConfig)
	}
	return s.CheapTrigger.Validate()
}

// Overrides are live values that take precedence over the persisted Settings.
// They are merged once per computation with WithOverrides.
type Overrides struct {
	AcceptablePrice  null.Float `json:"acceptablePrice"`
	BasePrice        null.Float `json:"basePrice"`
	ThresholdPercent null.Float `json:"thresholdPercent"`
	CheapTrigger     *TimeOfDay `json:"cheapTrigger,omitempty"`
}

// WithOverrides returns a copy of s with every set override applied.
func (s Settings) WithOverrides(o Overrides) Settings {
	if o.AcceptablePrice.Valid {
		s.AcceptablePrice = o.AcceptablePrice.Float64
	}
	if o.BasePrice.Valid {
		s.BasePrice = o.BasePrice.Float64
	}
	if o.ThresholdPercent.Valid {
		s.ThresholdPercent = o.ThresholdPercent.Float64
	}
	if o.CheapTrigger != nil {
		s.CheapTrigger = *o.CheapTrigger
	}
	return s
}
