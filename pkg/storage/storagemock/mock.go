package storagemock

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/bitosome/real-electricity-price/pkg/storage"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSettings(ctx context.Context) (types.Settings, int, error) {
	args := m.Called(ctx)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
	}
	return types.Settings{}, 0, nil
}

func (m *MockDatabase) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	args := m.Called(ctx, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) GetOverrides(ctx context.Context) (types.Overrides, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(types.Overrides), args.Error(1)
	}
	return types.Overrides{}, nil
}

func (m *MockDatabase) SetOverrides(ctx context.Context, overrides types.Overrides) error {
	args := m.Called(ctx, overrides)
	return args.Error(0)
}

func (m *MockDatabase) UpsertDaySeries(ctx context.Context, area string, series types.DaySeries) error {
	args := m.Called(ctx, area, series)
	return args.Error(0)
}

func (m *MockDatabase) GetDaySeries(ctx context.Context, area string, start, end civil.Date) ([]types.DaySeries, error) {
	args := m.Called(ctx, area, start, end)
	if len(args) > 0 {
		if args.Get(0) == nil {
			return nil, args.Error(1)
		}
		return args.Get(0).([]types.DaySeries), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) PutAnalysis(ctx context.Context, area string, result types.CheapAnalysisResult) error {
	args := m.Called(ctx, area, result)
	return args.Error(0)
}

func (m *MockDatabase) GetLatestAnalysis(ctx context.Context, area string) (types.CheapAnalysisResult, error) {
	args := m.Called(ctx, area)
	if len(args) > 0 {
		return args.Get(0).(types.CheapAnalysisResult), args.Error(1)
	}
	return types.CheapAnalysisResult{}, types.ErrNotFound
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
