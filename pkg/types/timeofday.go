package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall clock time without a date.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS". Seconds are dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid time of day: %q", ErrInvalidConfig, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: invalid hour in %q", ErrInvalidConfig, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: invalid minute in %q", ErrInvalidConfig, s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return TimeOfDay{}, fmt.Errorf("%w: invalid second in %q", ErrInvalidConfig, s)
		}
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if err := t.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return t, nil
}

// Validate checks the hour and minute ranges.
func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range", ErrInvalidConfig, t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range", ErrInvalidConfig, t.Minute)
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant of t on the calendar day of day in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// UnmarshalJSON accepts either an object with hour and minute or a string.
func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := ParseTimeOfDay(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	var raw struct {
		Hour   int `json:"hour"`
		Minute int `json:"minute"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed := TimeOfDay{Hour: raw.Hour, Minute: raw.Minute}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*t = parsed
	return nil
}
