package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTariff(t *testing.T) {
	for in, want := range map[string]Tariff{
		"night":    TariffNight,
		"off_peak": TariffNight,
		"Day":      TariffDay,
		"peak":     TariffDay,
		"fixed":    TariffFixed,
	} {
		got, err := ParseTariff(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTariff("evening")
	assert.Error(t, err)
}

func TestParseBlock(t *testing.T) {
	assert.Equal(t, BlockOffPeak1, ParseBlock("Off-peak 1"))
	assert.Equal(t, BlockPeak, ParseBlock("Peak"))
	assert.Equal(t, BlockOffPeak2, ParseBlock("Off-peak 2"))
	assert.Equal(t, BlockNone, ParseBlock("Base"))
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("14:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 14, Minute: 30}, got)

	got, err = ParseTimeOfDay("07:05:59")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, got)
	assert.Equal(t, "07:05", got.String())

	for _, bad := range []string{"", "14", "24:00", "12:60", "ab:cd", "1:2:3:4", "12:00:99"} {
		_, err := ParseTimeOfDay(bad)
		assert.True(t, errors.Is(err, ErrInvalidConfig), bad)
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	var v struct {
		A TimeOfDay `json:"a"`
		B TimeOfDay `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"14:30","b":{"hour":6,"minute":15}}`), &v))
	assert.Equal(t, TimeOfDay{Hour: 14, Minute: 30}, v.A)
	assert.Equal(t, TimeOfDay{Hour: 6, Minute: 15}, v.B)

	assert.Error(t, json.Unmarshal([]byte(`{"a":{"hour":30}}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a":"nope"}`), &v))
}

func TestTimeOfDayOn(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Tallinn")
	require.NoError(t, err)
	day := time.Date(2025, 1, 10, 23, 30, 0, 0, time.UTC) // already Jan 11 in Tallinn
	got := TimeOfDay{Hour: 14, Minute: 30}.On(day, loc)
	assert.Equal(t, time.Date(2025, 1, 11, 12, 30, 0, 0, time.UTC), got.UTC())
}

func TestCheapAnalysisResultLookups(t *testing.T) {
	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	r := CheapAnalysisResult{CheapRanges: []CheapRange{
		{StartTime: base.Add(2 * time.Hour), EndTime: base.Add(4 * time.Hour), HourCount: 2},
		{StartTime: base.Add(10 * time.Hour), EndTime: base.Add(11 * time.Hour), HourCount: 1},
	}}

	active, ok := r.ActiveRange(base.Add(3 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, 2, active.HourCount)

	_, ok = r.ActiveRange(base.Add(4 * time.Hour))
	assert.False(t, ok)

	next, ok := r.NextRange(base.Add(3 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, base.Add(10*time.Hour), next.StartTime)

	_, ok = r.NextRange(base.Add(10 * time.Hour))
	assert.False(t, ok)
}
