package tariff

import (
	"errors"
	"testing"
	"time"

	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() Config {
	return Config{
		Strategy:        types.StrategyNightWindow,
		NightStartHour:  22,
		NightEndHour:    7,
		NightOnSaturday: true,
		NightOnSunday:   true,
		NightOnHoliday:  true,
	}
}

// 2025-01-08 is a Wednesday.
func at(hour int) time.Time {
	return time.Date(2025, 1, 8, hour, 0, 0, 0, time.UTC)
}

var weekday = Day{Weekday: time.Wednesday}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(c *Config) {}, true},
		{"both zero", func(c *Config) { c.NightStartHour, c.NightEndHour = 0, 0 }, true},
		{"start 24", func(c *Config) { c.NightStartHour = 24 }, false},
		{"end negative", func(c *Config) { c.NightEndHour = -1 }, false},
		{"equal non-zero", func(c *Config) { c.NightStartHour, c.NightEndHour = 3, 3 }, false},
		{"unknown strategy", func(c *Config) { c.Strategy = "x" }, false},
		{"equal with blocks", func(c *Config) { c.Strategy = types.StrategyMarketBlocks; c.NightStartHour, c.NightEndHour = 3, 3 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(&cfg)
			_, err := New(cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrInvalidConfig))
			}
		})
	}
}

func TestClassifyNightWindow(t *testing.T) {
	c, err := New(defaultConfig())
	require.NoError(t, err)

	t.Run("crossing midnight", func(t *testing.T) {
		for _, h := range []int{22, 23, 0, 3, 6} {
			assert.Equal(t, types.TariffNight, c.Classify(at(h), weekday, nil).Tariff, "hour %d", h)
		}
		for _, h := range []int{7, 12, 21} {
			assert.Equal(t, types.TariffDay, c.Classify(at(h), weekday, nil).Tariff, "hour %d", h)
		}
	})

	t.Run("non crossing", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.NightStartHour, cfg.NightEndHour = 1, 5
		c, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, types.TariffNight, c.Classify(at(1), weekday, nil).Tariff)
		assert.Equal(t, types.TariffNight, c.Classify(at(4), weekday, nil).Tariff)
		assert.Equal(t, types.TariffDay, c.Classify(at(5), weekday, nil).Tariff)
		assert.Equal(t, types.TariffDay, c.Classify(at(0), weekday, nil).Tariff)
	})

	t.Run("empty window", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.NightStartHour, cfg.NightEndHour = 0, 0
		c, err := New(cfg)
		require.NoError(t, err)
		for h := 0; h < 24; h++ {
			assert.Equal(t, types.TariffDay, c.Classify(at(h), weekday, nil).Tariff)
		}
	})

	t.Run("weekend and holiday overrides", func(t *testing.T) {
		assert.Equal(t, types.TariffNight, c.Classify(at(12), Day{Weekday: time.Saturday}, nil).Tariff)
		assert.Equal(t, types.TariffNight, c.Classify(at(12), Day{Weekday: time.Sunday}, nil).Tariff)
		assert.Equal(t, types.TariffNight, c.Classify(at(12), Day{Weekday: time.Monday, IsHoliday: true}, nil).Tariff)
	})

	t.Run("overrides disabled", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.NightOnSaturday = false
		cfg.NightOnHoliday = false
		c, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, types.TariffDay, c.Classify(at(12), Day{Weekday: time.Saturday}, nil).Tariff)
		assert.Equal(t, types.TariffDay, c.Classify(at(12), Day{Weekday: time.Monday, IsHoliday: true}, nil).Tariff)
		assert.Equal(t, types.TariffNight, c.Classify(at(12), Day{Weekday: time.Sunday}, nil).Tariff)
	})
}

func TestClassifyNone(t *testing.T) {
	cfg := defaultConfig()
	cfg.Strategy = types.StrategyNone
	c, err := New(cfg)
	require.NoError(t, err)
	for h := 0; h < 24; h++ {
		assert.Equal(t, types.TariffFixed, c.Classify(at(h), Day{Weekday: time.Sunday, IsHoliday: true}, nil).Tariff)
	}
}

func TestClassifyMarketBlocks(t *testing.T) {
	cfg := defaultConfig()
	cfg.Strategy = types.StrategyMarketBlocks
	c, err := New(cfg)
	require.NoError(t, err)

	blocks := []types.MarketBlock{
		{Name: "Off-peak 1", DeliveryStart: at(0), DeliveryEnd: at(8)},
		{Name: "Peak", DeliveryStart: at(8), DeliveryEnd: at(20)},
		{Name: "Off-peak 2", DeliveryStart: at(20), DeliveryEnd: at(23)},
	}

	got := c.Classify(at(3), weekday, blocks)
	assert.Equal(t, types.Classification{Tariff: types.TariffNight, Block: types.BlockOffPeak1}, got)

	got = c.Classify(at(8), weekday, blocks)
	assert.Equal(t, types.Classification{Tariff: types.TariffDay, Block: types.BlockPeak}, got)

	got = c.Classify(at(21), weekday, blocks)
	assert.Equal(t, types.Classification{Tariff: types.TariffNight, Block: types.BlockOffPeak2}, got)

	// not covered by any block
	got = c.Classify(at(23), weekday, blocks)
	assert.Equal(t, types.Classification{Tariff: types.TariffNight}, got)

	// weekend override wins over blocks
	got = c.Classify(at(12), Day{Weekday: time.Saturday}, blocks)
	assert.Equal(t, types.Classification{Tariff: types.TariffNight}, got)
}
