// Package market fetches day-ahead wholesale prices.
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/bitosome/real-electricity-price/pkg/types"
)

// ErrUnauthorized is returned when the market rejects the credentials.
var ErrUnauthorized = errors.New("market authentication failed")

// Provider defines the interface for fetching day-ahead prices.
type Provider interface {
	// GetDayAhead returns the published prices for a delivery date. A day
	// without Entries means prices are not published yet; that is not an error.
	GetDayAhead(ctx context.Context, deliveryDate civil.Date, area string) (types.MarketDay, error)
}

// Configured sets up the market providers based on flags.
func Configured() *Map {
	m := NewMap()
	m.SetProvider("nordpool", configuredNordPool())
	return m
}

// Map manages multiple market providers.
type Map struct {
	mu        sync.Mutex
	providers map[string]Provider
}

// NewMap creates a new market Map.
func NewMap() *Map {
	return &Map{
		providers: make(map[string]Provider),
	}
}

// Provider returns the provider for the given name.
func (m *Map) Provider(name string) (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prov, ok := m.providers[name]; ok {
		return prov, nil
	}
	return nil, fmt.Errorf("%w: unknown market provider: %s", types.ErrInvalidConfig, name)
}

// SetProvider sets the provider for the given name. This is primarily used for testing.
func (m *Map) SetProvider(name string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = provider
}
