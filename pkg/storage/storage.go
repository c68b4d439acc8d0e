// Package storage persists settings, overrides, day series and analysis
// results in Firestore or in memory.
package storage

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/bitosome/real-electricity-price/pkg/types"
)

// Database defines the interface for persisting settings, overrides, built
// day series and analysis results.
type Database interface {
	// Settings
	GetSettings(ctx context.Context) (types.Settings, int, error)
	SetSettings(ctx context.Context, settings types.Settings, version int) error
	GetOverrides(ctx context.Context) (types.Overrides, error)
	SetOverrides(ctx context.Context, overrides types.Overrides) error

	// Day series, keyed by area and date. A later upsert of the same date
	// replaces the earlier one.
	UpsertDaySeries(ctx context.Context, area string, series types.DaySeries) error
	// GetDaySeries returns the stored days in [start, end) in date order.
	GetDaySeries(ctx context.Context, area string, start, end civil.Date) ([]types.DaySeries, error)

	// Analysis results
	PutAnalysis(ctx context.Context, area string, result types.CheapAnalysisResult) error
	// GetLatestAnalysis returns types.ErrNotFound when nothing was stored yet.
	GetLatestAnalysis(ctx context.Context, area string) (types.CheapAnalysisResult, error)

	// Lifecycle
	Close() error
}
