package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/bitosome/real-electricity-price/pkg/common"
	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/metrics"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/guregu/null/v6"
	"github.com/levenlabs/go-lflag"
	"golang.org/x/sync/singleflight"
)

// NordPool fetches day-ahead prices from the Nord Pool data portal.
type NordPool struct {
	client   *http.Client
	apiURL   string
	token    string
	currency string

	group singleflight.Group
	mu    sync.Mutex
	// published days never change so they are kept until they fall out of
	// the refresh window
	cache map[string]types.MarketDay
}

func configuredNordPool() *NordPool {
	n := &NordPool{
		cache: make(map[string]types.MarketDay),
	}
	apiURL := lflag.String("nordpool-api-url", "https://dataportal-api.nordpoolgroup.com/api/DayAheadPrices", "URL for the Nord Pool day-ahead prices API")
	token := lflag.String("nordpool-token", "", "Bearer token for the Nord Pool API (optional)")
	currency := lflag.String("nordpool-currency", "EUR", "Currency to request prices in")
	timeout := lflag.Duration("nordpool-timeout", 20*time.Second, "Timeout for Nord Pool requests")

	lflag.Do(func() {
		n.apiURL = *apiURL
		n.token = *token
		n.currency = *currency
		n.client = common.HTTPClient(*timeout)
		if err := n.Validate(); err != nil {
			panic(fmt.Sprintf("nordpool validation failed: %v", err))
		}
	})

	return n
}

// NewNordPool returns a client for apiURL. It is mainly used by tests.
func NewNordPool(apiURL, token string, timeout time.Duration) *NordPool {
	return &NordPool{
		client:   common.HTTPClient(timeout),
		apiURL:   apiURL,
		token:    token,
		currency: "EUR",
		cache:    make(map[string]types.MarketDay),
	}
}

// Validate ensures the configuration is valid.
func (n *NordPool) Validate() error {
	if n.apiURL == "" {
		return fmt.Errorf("nordpool-api-url is required")
	}
	if _, err := url.Parse(n.apiURL); err != nil {
		return fmt.Errorf("failed to parse nordpool url (%s): %w", n.apiURL, err)
	}
	if n.currency == "" {
		return fmt.Errorf("nordpool-currency is required")
	}
	return nil
}

type nordPoolEntry struct {
	DeliveryStart time.Time             `json:"deliveryStart"`
	DeliveryEnd   time.Time             `json:"deliveryEnd"`
	EntryPerArea  map[string]null.Float `json:"entryPerArea"`
}

type nordPoolBlock struct {
	BlockName     string    `json:"blockName"`
	DeliveryStart time.Time `json:"deliveryStart"`
	DeliveryEnd   time.Time `json:"deliveryEnd"`
}

type nordPoolResponse struct {
	DeliveryDateCET      string          `json:"deliveryDateCET"`
	Currency             string          `json:"currency"`
	MultiAreaEntries     []nordPoolEntry `json:"multiAreaEntries"`
	BlockPriceAggregates []nordPoolBlock `json:"blockPriceAggregates"`
}

// GetDayAhead implements the Provider interface.
func (n *NordPool) GetDayAhead(ctx context.Context, deliveryDate civil.Date, area string) (types.MarketDay, error) {
	area = strings.ToUpper(area)
	key := deliveryDate.String() + "/" + area

	n.mu.Lock()
	if day, ok := n.cache[key]; ok {
		n.mu.Unlock()
		return day, nil
	}
	n.mu.Unlock()

	v, err, _ := n.group.Do(key, func() (interface{}, error) {
		start := time.Now()
		day, err := n.fetch(ctx, deliveryDate, area)
		metrics.ObserveMarketRequest("nordpool", start, err)
		return day, err
	})
	if err != nil {
		return types.MarketDay{}, err
	}
	day := v.(types.MarketDay)

	if len(day.Entries) > 0 {
		n.mu.Lock()
		n.cache[key] = day
		n.prune(deliveryDate)
		n.mu.Unlock()
	}
	return day, nil
}

// prune drops cached days older than a week before newest. Callers hold mu.
func (n *NordPool) prune(newest civil.Date) {
	cutoff := newest.AddDays(-7)
	for k, day := range n.cache {
		if day.DeliveryDate.Before(cutoff) {
			delete(n.cache, k)
		}
	}
}

func (n *NordPool) fetch(ctx context.Context, deliveryDate civil.Date, area string) (types.MarketDay, error) {
	u, err := url.Parse(n.apiURL)
	if err != nil {
		return types.MarketDay{}, fmt.Errorf("failed to parse nordpool url: %w", err)
	}
	params := u.Query()
	params.Set("date", deliveryDate.String())
	params.Set("market", "DayAhead")
	params.Set("currency", n.currency)
	params.Set("deliveryArea", area)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return types.MarketDay{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching day-ahead prices from nordpool", slog.String("url", u.String()))

	resp, err := n.client.Do(req)
	if err != nil {
		return types.MarketDay{}, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	day := types.MarketDay{
		DeliveryDate: deliveryDate,
		Area:         area,
		Currency:     n.currency,
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		log.Ctx(ctx).InfoContext(ctx, "nordpool prices not published yet", slog.String("date", deliveryDate.String()), slog.String("area", area))
		return day, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.MarketDay{}, fmt.Errorf("%w: nordpool api status: %d", ErrUnauthorized, resp.StatusCode)
	default:
		return types.MarketDay{}, fmt.Errorf("nordpool api status: %d", resp.StatusCode)
	}

	var data nordPoolResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			log.Ctx(ctx).InfoContext(ctx, "nordpool returned an empty body", slog.String("date", deliveryDate.String()), slog.String("area", area))
			return day, nil
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode nordpool response", slog.Any("error", err))
		return types.MarketDay{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if data.Currency != "" {
		day.Currency = data.Currency
	}

	for _, e := range data.MultiAreaEntries {
		prices := make(map[string]float64, len(e.EntryPerArea))
		for a, p := range e.EntryPerArea {
			if p.Valid {
				prices[a] = p.Float64
			}
		}
		day.Entries = append(day.Entries, types.WholesaleEntry{
			DeliveryStart: e.DeliveryStart,
			DeliveryEnd:   e.DeliveryEnd,
			PricePerArea:  prices,
		})
	}
	for _, b := range data.BlockPriceAggregates {
		day.Blocks = append(day.Blocks, types.MarketBlock{
			Name:          b.BlockName,
			DeliveryStart: b.DeliveryStart,
			DeliveryEnd:   b.DeliveryEnd,
		})
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched nordpool prices",
		slog.String("date", deliveryDate.String()),
		slog.String("area", area),
		slog.Int("entries", len(day.Entries)),
		slog.Int("blocks", len(day.Blocks)),
	)
	return day, nil
}
