package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/bitosome/real-electricity-price/pkg/types"
)

// Memory implements the Database interface in process memory. Nothing
// survives a restart; it is used for single-instance deployments and tests.
type Memory struct {
	mu              sync.Mutex
	settings        types.Settings
	settingsVersion int
	overrides       types.Overrides
	days            map[string]map[civil.Date]types.DaySeries
	analyses        map[string]types.CheapAnalysisResult
}

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{
		days:     make(map[string]map[civil.Date]types.DaySeries),
		analyses: make(map[string]types.CheapAnalysisResult),
	}
}

func (m *Memory) GetSettings(ctx context.Context) (types.Settings, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, m.settingsVersion, nil
}

func (m *Memory) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
	m.settingsVersion = version
	return nil
}

func (m *Memory) GetOverrides(ctx context.Context) (types.Overrides, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.overrides
	if o.CheapTrigger != nil {
		trigger := *o.CheapTrigger
		o.CheapTrigger = &trigger
	}
	return o, nil
}

func (m *Memory) SetOverrides(ctx context.Context, overrides types.Overrides) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if overrides.CheapTrigger != nil {
		trigger := *overrides.CheapTrigger
		overrides.CheapTrigger = &trigger
	}
	m.overrides = overrides
	return nil
}

func (m *Memory) UpsertDaySeries(ctx context.Context, area string, series types.DaySeries) error {
	if area == "" {
		return fmt.Errorf("area cannot be empty")
	}
	area = strings.ToUpper(area)
	series.HourlyPrices = slices.Clone(series.HourlyPrices)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.days[area] == nil {
		m.days[area] = make(map[civil.Date]types.DaySeries)
	}
	m.days[area][series.Date] = series
	return nil
}

func (m *Memory) GetDaySeries(ctx context.Context, area string, start, end civil.Date) ([]types.DaySeries, error) {
	if area == "" {
		return nil, fmt.Errorf("area cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var days []types.DaySeries
	for date, d := range m.days[strings.ToUpper(area)] {
		if date.Before(start) || !date.Before(end) {
			continue
		}
		d.HourlyPrices = slices.Clone(d.HourlyPrices)
		days = append(days, d)
	}
	slices.SortFunc(days, func(a, b types.DaySeries) int {
		return a.Date.Compare(b.Date)
	})
	return days, nil
}

func (m *Memory) PutAnalysis(ctx context.Context, area string, result types.CheapAnalysisResult) error {
	if area == "" {
		return fmt.Errorf("area cannot be empty")
	}
	area = strings.ToUpper(area)
	result.CheapRanges = slices.Clone(result.CheapRanges)

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.analyses[area]; ok && prev.LastUpdate.After(result.LastUpdate) {
		return nil
	}
	m.analyses[area] = result
	return nil
}

func (m *Memory) GetLatestAnalysis(ctx context.Context, area string) (types.CheapAnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.analyses[strings.ToUpper(area)]
	if !ok {
		return types.CheapAnalysisResult{}, types.ErrNotFound
	}
	r.CheapRanges = slices.Clone(r.CheapRanges)
	return r, nil
}

func (m *Memory) Close() error {
	return nil
}
