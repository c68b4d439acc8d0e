// Package calendar answers holiday and weekend questions for the countries
// whose bidding zones are traded on the day-ahead market.
package calendar

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/dk"
	"github.com/rickar/cal/v2/fi"
	"github.com/rickar/cal/v2/no"
	"github.com/rickar/cal/v2/se"
)

var (
	national = map[string][]*cal.Holiday{
		"EE": estonia,
		"LV": latvia,
		"LT": lithuania,
		"FI": fi.Holidays,
		"SE": se.Holidays,
		"NO": no.Holidays,
		"DK": dk.Holidays,
		"DE": de.Holidays,
	}

	regional = map[string]map[string][]*cal.Holiday{
		"DE": germanStates,
	}

	timeZones = map[string]string{
		"EE": "Europe/Tallinn",
		"FI": "Europe/Helsinki",
		"LV": "Europe/Riga",
		"LT": "Europe/Vilnius",
		"SE": "Europe/Stockholm",
		"NO": "Europe/Oslo",
		"DK": "Europe/Copenhagen",
		"DE": "Europe/Berlin",
	}
)

// CountryFromArea derives the ISO country code from a bidding zone code by
// taking its first two letters, so SE3 becomes SE and DK1 becomes DK.
func CountryFromArea(area string) string {
	area = strings.ToUpper(strings.TrimSpace(area))
	if len(area) < 2 {
		return area
	}
	return area[:2]
}

// DefaultTimeZone returns the time zone of the country's capital, or
// Europe/Tallinn for unknown countries.
func DefaultTimeZone(country string) string {
	if tz, ok := timeZones[strings.ToUpper(country)]; ok {
		return tz
	}
	return "Europe/Tallinn"
}

// Supported reports whether holidays are known for country.
func Supported(country string) bool {
	_, ok := national[strings.ToUpper(country)]
	return ok
}

// SupportedSubdivision reports whether regional holidays are known for the
// subdivision of country.
func SupportedSubdivision(country, subdivision string) bool {
	subs, ok := regional[strings.ToUpper(country)]
	if !ok {
		return false
	}
	_, ok = subs[strings.ToUpper(subdivision)]
	return ok
}

// IsWeekend reports whether date is a Saturday or Sunday.
func IsWeekend(date civil.Date) bool {
	switch date.In(time.UTC).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}

// Service answers holiday lookups. It is safe for concurrent use.
type Service struct {
	mu    sync.Mutex
	cache map[holidayKey]bool
}

type holidayKey struct {
	date        civil.Date
	country     string
	subdivision string
}

// New returns an empty Service.
func New() *Service {
	return &Service{cache: make(map[holidayKey]bool)}
}

// IsHoliday reports whether date is a public holiday in country, including the
// regional holidays of subdivision when one is given.
func (s *Service) IsHoliday(date civil.Date, country, subdivision string) (bool, error) {
	country = strings.ToUpper(country)
	subdivision = strings.ToUpper(subdivision)
	key := holidayKey{date: date, country: country, subdivision: subdivision}

	s.mu.Lock()
	if v, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	holidays, ok := national[country]
	if !ok {
		return false, fmt.Errorf("no holidays known for country %q", country)
	}
	if subdivision != "" {
		subs, ok := regional[country][subdivision]
		if !ok {
			return false, fmt.Errorf("no holidays known for subdivision %q of %s", subdivision, country)
		}
		holidays = append(append([]*cal.Holiday{}, holidays...), subs...)
	}

	v := matches(holidays, date)

	s.mu.Lock()
	s.cache[key] = v
	s.mu.Unlock()
	return v, nil
}

func matches(holidays []*cal.Holiday, date civil.Date) bool {
	for _, h := range holidays {
		actual, _ := h.Calc(date.Year)
		if actual.IsZero() {
			continue
		}
		if actual.Year() == date.Year && actual.Month() == date.Month && actual.Day() == date.Day {
			return true
		}
	}
	return false
}
