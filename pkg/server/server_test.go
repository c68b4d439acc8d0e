package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/bitosome/real-electricity-price/pkg/calendar"
	"github.com/bitosome/real-electricity-price/pkg/controller"
	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/market"
	"github.com/bitosome/real-electricity-price/pkg/storage"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetDayAhead(ctx context.Context, deliveryDate civil.Date, area string) (types.MarketDay, error) {
	args := m.Called(ctx, deliveryDate, area)
	if fn, ok := args.Get(0).(func(context.Context, civil.Date, string) (types.MarketDay, error)); ok {
		return fn(ctx, deliveryDate, area)
	}
	return args.Get(0).(types.MarketDay), args.Error(1)
}

var (
	now        = time.Date(2025, 1, 8, 10, 30, 0, 0, time.UTC)
	cheapStart = time.Date(2025, 1, 9, 1, 0, 0, 0, time.UTC)
	cheapEnd   = time.Date(2025, 1, 9, 4, 0, 0, 0, time.UTC)
)

func deliveryDay(ctx context.Context, d civil.Date, area string) (types.MarketDay, error) {
	day := types.MarketDay{DeliveryDate: d, Area: area, Currency: "EUR"}
	start := d.In(time.UTC).Add(-time.Hour)
	for h := 0; h < 24; h++ {
		ts := start.Add(time.Duration(h) * time.Hour)
		price := 100.0
		if !ts.Before(cheapStart) && ts.Before(cheapEnd) {
			price = 20
		}
		day.Entries = append(day.Entries, types.WholesaleEntry{
			DeliveryStart: ts,
			DeliveryEnd:   ts.Add(time.Hour),
			PricePerArea:  map[string]float64{area: price},
		})
	}
	return day, nil
}

func newTestServer(t *testing.T, provider *mockProvider) *Server {
	t.Helper()
	markets := market.NewMap()
	markets.SetProvider("nordpool", provider)
	c := controller.New(markets, storage.NewMemory(), calendar.New(), nil)
	return &Server{
		controller: c,
		bypassAuth: true,
		serverName: "test",
		now:        func() time.Time { return now },
	}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPricesAndCheap(t *testing.T) {
	provider := &mockProvider{}
	provider.On("GetDayAhead", mock.Anything, mock.Anything, "EE").Return(deliveryDay)
	h := newTestServer(t, provider).setupHandler()

	t.Run("before refresh", func(t *testing.T) {
		assert.Equal(t, http.StatusServiceUnavailable, do(h, "GET", "/api/prices", "").Code)
		assert.Equal(t, http.StatusServiceUnavailable, do(h, "GET", "/api/cheap", "").Code)

		w := do(h, "GET", "/api/current", "")
		require.Equal(t, http.StatusOK, w.Code)
		var cur CurrentRes
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cur))
		assert.False(t, cur.ConsumerPrice.Valid)
		assert.False(t, cur.CheapNow)
	})

	t.Run("refresh", func(t *testing.T) {
		w := do(h, "POST", "/api/refresh", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var window types.PriceWindow
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &window))
		assert.True(t, window.Today.DataAvailable)
		assert.True(t, window.Tomorrow.DataAvailable)
		assert.Len(t, window.Today.HourlyPrices, types.HoursPerDay)
	})

	t.Run("prices", func(t *testing.T) {
		w := do(h, "GET", "/api/prices", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		var window types.PriceWindow
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &window))
		require.NotNil(t, window.Yesterday)
		assert.Equal(t, civil.Date{Year: 2025, Month: time.January, Day: 8}, window.Today.Date)
	})

	t.Run("current", func(t *testing.T) {
		w := do(h, "GET", "/api/current", "")
		require.Equal(t, http.StatusOK, w.Code)
		var cur CurrentRes
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cur))
		assert.Equal(t, 0.1933, cur.ConsumerPrice.Float64)
		assert.Equal(t, types.TariffDay, cur.Tariff)
		assert.False(t, cur.CheapNow)
		require.NotNil(t, cur.NextRange)
		assert.True(t, cheapStart.Equal(cur.NextRange.StartTime))

		w = do(h, "GET", "/api/current?at="+cheapStart.Add(30*time.Minute).Format(time.RFC3339), "")
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cur))
		assert.True(t, cur.CheapNow)
		assert.Equal(t, 0.0743, cur.ConsumerPrice.Float64)
		assert.Equal(t, types.TariffNight, cur.Tariff)

		assert.Equal(t, http.StatusBadRequest, do(h, "GET", "/api/current?at=tomorrow", "").Code)
	})

	t.Run("cheap", func(t *testing.T) {
		w := do(h, "GET", "/api/cheap", "")
		require.Equal(t, http.StatusOK, w.Code)
		var res types.CheapAnalysisResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Len(t, res.CheapRanges, 1)
		assert.Equal(t, 3, res.CheapRanges[0].HourCount)
		assert.Equal(t, types.PolicyAbsolute, res.AnalysisInfo.Policy)
	})

	t.Run("recalculate with overrides", func(t *testing.T) {
		w := do(h, "POST", "/api/overrides", `{"acceptablePrice":0.2}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = do(h, "GET", "/api/cheap", "")
		var res types.CheapAnalysisResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Len(t, res.CheapRanges, 1)
		assert.Equal(t, 38, res.CheapRanges[0].HourCount)

		w = do(h, "POST", "/api/cheap/recalculate", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, 0.2, res.AnalysisInfo.AcceptablePrice.Float64)
	})

	t.Run("settings change rebuilds prices", func(t *testing.T) {
		w := do(h, "POST", "/api/settings", `{"components":{"supplierMargin":{"price":0.0205}}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = do(h, "GET", "/api/current", "")
		require.Equal(t, http.StatusOK, w.Code)
		var cur CurrentRes
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cur))
		assert.Equal(t, 0.2033, cur.ConsumerPrice.Float64)
	})
}

func TestRefreshErrors(t *testing.T) {
	provider := &mockProvider{}
	provider.On("GetDayAhead", mock.Anything, mock.Anything, "EE").Return(types.MarketDay{}, market.ErrUnauthorized)
	h := newTestServer(t, provider).setupHandler()

	w := do(h, "POST", "/api/refresh", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "market rejected credentials")

	w = do(h, "POST", "/api/cheap/recalculate", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	h := newTestServer(t, &mockProvider{}).setupHandler()

	t.Run("get", func(t *testing.T) {
		w := do(h, "GET", "/api/settings", "")
		require.Equal(t, http.StatusOK, w.Code)
		var res SettingsRes
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, "EE", res.Settings.Area)
		assert.Equal(t, 0.15, res.Effective.AcceptablePrice)
	})

	t.Run("invalid settings", func(t *testing.T) {
		w := do(h, "POST", "/api/settings", `{"components":{"taxRate":150}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = do(h, "POST", "/api/settings", `{"area":"XX"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = do(h, "POST", "/api/settings", `{"area":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("partial update", func(t *testing.T) {
		w := do(h, "POST", "/api/settings", `{"cheapPolicy":"relative_min","thresholdPercent":20}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = do(h, "GET", "/api/settings", "")
		var res SettingsRes
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, types.PolicyRelativeMin, res.Settings.CheapPolicy)
		assert.Equal(t, 20.0, res.Settings.ThresholdPercent)
		assert.Equal(t, "EE", res.Settings.Area)
	})

	t.Run("overrides", func(t *testing.T) {
		w := do(h, "POST", "/api/overrides", `{"thresholdPercent":-5}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = do(h, "POST", "/api/overrides", `{"cheapTrigger":"25:00"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(h, "POST", "/api/overrides", `{"cheapTrigger":"13:15","basePrice":0.11}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = do(h, "GET", "/api/overrides", "")
		require.Equal(t, http.StatusOK, w.Code)
		var o types.Overrides
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
		require.NotNil(t, o.CheapTrigger)
		assert.Equal(t, types.TimeOfDay{Hour: 13, Minute: 15}, *o.CheapTrigger)
		assert.Equal(t, 0.11, o.BasePrice.Float64)
		assert.False(t, o.AcceptablePrice.Valid)
	})
}

func TestRequireAdmin(t *testing.T) {
	provider := &mockProvider{}
	provider.On("GetDayAhead", mock.Anything, mock.Anything, "EE").Return(deliveryDay)
	srv := newTestServer(t, provider)
	srv.bypassAuth = false
	srv.adminEmails = []string{"admin@example.com"}
	srv.verifier = func(ctx context.Context, raw string) (string, error) {
		switch raw {
		case "admin-token":
			return "admin@example.com", nil
		case "user-token":
			return "user@example.com", nil
		}
		return "", errors.New("bad token")
	}
	h := srv.setupHandler()

	post := func(auth string) int {
		req := httptest.NewRequest("POST", "/api/cheap/recalculate", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, post(""))
	assert.Equal(t, http.StatusUnauthorized, post("Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, post("Bearer nope"))
	assert.Equal(t, http.StatusForbidden, post("Bearer user-token"))
	// authorized, but nothing to analyze yet
	assert.Equal(t, http.StatusInternalServerError, post("Bearer admin-token"))

	// reads stay open
	assert.Equal(t, http.StatusOK, do(h, "GET", "/api/settings", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, "POST", "/api/settings", `{}`).Code)
}

func TestHandlerMisc(t *testing.T) {
	h := newTestServer(t, &mockProvider{}).setupHandler()

	w := do(h, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "test", w.Header().Get("Server"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Cache-Control"))

	w = do(h, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	assert.Equal(t, http.StatusMethodNotAllowed, do(h, "DELETE", "/api/settings", "").Code)
}
