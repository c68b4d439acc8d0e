package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	t.Run("Settings", func(t *testing.T) {
		_, version, err := m.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, version)

		require.NoError(t, m.SetSettings(ctx, types.Settings{Area: "FI"}, 4))
		got, version, err := m.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, version)
		assert.Equal(t, "FI", got.Area)
	})

	t.Run("Overrides are copied", func(t *testing.T) {
		trigger := types.TimeOfDay{Hour: 14, Minute: 30}
		require.NoError(t, m.SetOverrides(ctx, types.Overrides{BasePrice: null.FloatFrom(0.1), CheapTrigger: &trigger}))
		trigger.Hour = 1

		got, err := m.GetOverrides(ctx)
		require.NoError(t, err)
		require.NotNil(t, got.CheapTrigger)
		assert.Equal(t, 14, got.CheapTrigger.Hour)
		assert.Equal(t, null.FloatFrom(0.1), got.BasePrice)
	})

	t.Run("DaySeries", func(t *testing.T) {
		d := civil.Date{Year: 2025, Month: time.March, Day: 30}
		for _, i := range []int{2, 0, 1} {
			require.NoError(t, m.UpsertDaySeries(ctx, "ee", types.DaySeries{
				Date:         d.AddDays(i),
				HourlyPrices: make([]types.HourlyPriceSample, types.HoursPerDay),
			}))
		}
		require.NoError(t, m.UpsertDaySeries(ctx, "LV", types.DaySeries{Date: d}))

		days, err := m.GetDaySeries(ctx, "EE", d, d.AddDays(2))
		require.NoError(t, err)
		require.Len(t, days, 2)
		assert.Equal(t, d, days[0].Date)
		assert.Equal(t, d.AddDays(1), days[1].Date)

		days[0].HourlyPrices[0].IsHoliday = true
		again, err := m.GetDaySeries(ctx, "EE", d, d.AddDays(1))
		require.NoError(t, err)
		assert.False(t, again[0].HourlyPrices[0].IsHoliday)

		_, err = m.GetDaySeries(ctx, "", d, d)
		assert.Error(t, err)
	})

	t.Run("Analysis", func(t *testing.T) {
		_, err := m.GetLatestAnalysis(ctx, "EE")
		assert.True(t, errors.Is(err, types.ErrNotFound))

		now := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)
		require.NoError(t, m.PutAnalysis(ctx, "EE", types.CheapAnalysisResult{LastUpdate: now}))
		require.NoError(t, m.PutAnalysis(ctx, "EE", types.CheapAnalysisResult{LastUpdate: now.Add(-time.Hour)}))

		got, err := m.GetLatestAnalysis(ctx, "ee")
		require.NoError(t, err)
		assert.Equal(t, now, got.LastUpdate)
	})
}
