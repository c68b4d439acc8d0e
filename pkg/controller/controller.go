// Package controller runs the refresh and cheap-analysis cycles and holds the
// latest snapshots served to readers.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/bitosome/real-electricity-price/pkg/cheap"
	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/market"
	"github.com/bitosome/real-electricity-price/pkg/metrics"
	"github.com/bitosome/real-electricity-price/pkg/pricing"
	"github.com/bitosome/real-electricity-price/pkg/storage"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	JobRefresh = "refresh"
	JobAnalyze = "analyze"
)

// Publisher pushes snapshots to downstream consumers such as Home Assistant.
type Publisher interface {
	PublishPrices(ctx context.Context, window types.PriceWindow, current types.CurrentPrice) error
	PublishCheap(ctx context.Context, result types.CheapAnalysisResult, now time.Time) error
}

// Controller owns the price window and the latest analysis. Snapshots are
// replaced wholesale, never mutated, so readers can hold on to them.
type Controller struct {
	markets   *market.Map
	storage   storage.Database
	calendar  pricing.Calendar
	publisher Publisher

	group    singleflight.Group
	window   atomic.Pointer[types.PriceWindow]
	analysis atomic.Pointer[types.CheapAnalysisResult]

	mu        sync.Mutex
	onTrigger func(types.TimeOfDay, *time.Location)
}

// New creates a Controller. publisher may be nil.
func New(markets *market.Map, db storage.Database, cal pricing.Calendar, publisher Publisher) *Controller {
	return &Controller{
		markets:   markets,
		storage:   db,
		calendar:  cal,
		publisher: publisher,
	}
}

// SetPublisher replaces the publisher. It must be called before any cycle runs.
func (c *Controller) SetPublisher(p Publisher) {
	c.publisher = p
}

// OnTriggerChange registers fn to be called whenever the effective cheap
// analysis trigger time or its time zone may have changed.
func (c *Controller) OnTriggerChange(fn func(types.TimeOfDay, *time.Location)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrigger = fn
}

func (c *Controller) notifyTrigger(ctx context.Context) {
	c.mu.Lock()
	fn := c.onTrigger
	c.mu.Unlock()
	if fn == nil {
		return
	}
	settings, err := c.EffectiveSettings(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to resolve trigger time", slog.Any("error", err))
		return
	}
	loc, err := settings.Location()
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to resolve trigger time zone", slog.Any("error", err))
		return
	}
	fn(settings.CheapTrigger, loc)
}

// Window returns the latest price window.
func (c *Controller) Window() (types.PriceWindow, bool) {
	w := c.window.Load()
	if w == nil {
		return types.PriceWindow{}, false
	}
	return *w, true
}

// Analysis returns the latest cheap analysis result.
func (c *Controller) Analysis() (types.CheapAnalysisResult, bool) {
	r := c.analysis.Load()
	if r == nil {
		return types.CheapAnalysisResult{}, false
	}
	return *r, true
}

// Current returns the consumer price and tariff at now. The price is null
// when no window is loaded or the hour has no data.
func (c *Controller) Current(now time.Time) types.CurrentPrice {
	w, ok := c.Window()
	if !ok {
		return types.CurrentPrice{Time: now}
	}
	return pricing.CurrentAt(w.Days(), now)
}

// Publish pushes the current hour's price and cheap state derived from the
// loaded snapshots. Nothing is fetched or recomputed.
func (c *Controller) Publish(ctx context.Context, now time.Time) error {
	w, ok := c.Window()
	if !ok {
		return nil
	}
	current := pricing.CurrentAt(w.Days(), now)
	if current.ConsumerPrice.Valid {
		metrics.CurrentConsumerPrice.Set(current.ConsumerPrice.Float64)
	}
	if c.publisher == nil {
		return nil
	}

	var errs []error
	if err := c.publisher.PublishPrices(ctx, w, current); err != nil {
		errs = append(errs, fmt.Errorf("failed to publish prices: %w", err))
	}
	if res, ok := c.Analysis(); ok {
		if err := c.publisher.PublishCheap(ctx, res, now); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish cheap analysis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Refresh fetches the delivery days around now, rebuilds the price window and
// then reruns the cheap analysis. Concurrent calls share a single run.
func (c *Controller) Refresh(ctx context.Context, now time.Time) (types.PriceWindow, error) {
	v, err, _ := c.group.Do(JobRefresh, func() (interface{}, error) {
		ctx, _ := log.WithCycle(ctx, JobRefresh)
		start := time.Now()
		w, err := c.refresh(ctx, now)
		metrics.UpdateJobMetrics(JobRefresh, start, err)
		return w, err
	})
	if err != nil {
		return types.PriceWindow{}, err
	}
	w := v.(types.PriceWindow)

	if _, err := c.Analyze(ctx, now); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "analysis after refresh failed", slog.Any("error", err))
	}
	return w, nil
}

func (c *Controller) refresh(ctx context.Context, now time.Time) (types.PriceWindow, error) {
	settings, err := c.EffectiveSettings(ctx)
	if err != nil {
		return types.PriceWindow{}, err
	}
	builder, err := pricing.NewBuilder(settings, c.calendar)
	if err != nil {
		return types.PriceWindow{}, err
	}
	provider, err := c.markets.Provider(settings.MarketProvider)
	if err != nil {
		return types.PriceWindow{}, err
	}

	today := civil.DateOf(now.UTC())
	yesterday := today.AddDays(-1)
	tomorrow := today.AddDays(1)

	// a UTC day spans two market delivery days, so fetch one extra on each end
	fetched, errs := c.fetch(ctx, provider, settings.Area, yesterday, today.AddDays(2))
	if len(fetched) == 0 {
		return types.PriceWindow{}, fmt.Errorf("failed to fetch any delivery day: %w", errors.Join(errs...))
	}

	var entries []types.WholesaleEntry
	var blocks []types.MarketBlock
	for _, day := range fetched {
		entries = append(entries, day.Entries...)
		blocks = append(blocks, day.Blocks...)
	}

	build := func(date civil.Date) types.DaySeries {
		if len(entries) == 0 {
			return builder.Placeholder(ctx, date)
		}
		return builder.Build(ctx, date, entries, blocks)
	}

	w := types.PriceWindow{
		Today:     build(today),
		Tomorrow:  build(tomorrow),
		UpdatedAt: now,
	}
	if _, ok := fetched[yesterday]; ok {
		y := build(yesterday)
		w.Yesterday = &y
	}
	c.window.Store(&w)

	log.Ctx(ctx).InfoContext(
		ctx,
		"price window refreshed",
		slog.Bool("yesterday", w.Yesterday != nil && w.Yesterday.DataAvailable),
		slog.Bool("today", w.Today.DataAvailable),
		slog.Bool("tomorrow", w.Tomorrow.DataAvailable),
		slog.Int("entries", len(entries)),
	)

	for name, day := range map[string]*types.DaySeries{"yesterday": w.Yesterday, "today": &w.Today, "tomorrow": &w.Tomorrow} {
		if day == nil || !day.DataAvailable {
			metrics.DataAvailable.WithLabelValues(name).Set(0)
			continue
		}
		metrics.DataAvailable.WithLabelValues(name).Set(1)
		if err := c.storage.UpsertDaySeries(ctx, settings.Area, *day); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to store day series", slog.String("date", day.Date.String()), slog.Any("error", err))
		}
	}

	current := pricing.CurrentAt(w.Days(), now)
	if current.ConsumerPrice.Valid {
		metrics.CurrentConsumerPrice.Set(current.ConsumerPrice.Float64)
	}
	if c.publisher != nil {
		if err := c.publisher.PublishPrices(ctx, w, current); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to publish prices", slog.Any("error", err))
		}
	}
	return w, nil
}

// fetch requests every delivery date in [from, to] concurrently. Dates that
// failed are missing from the returned map.
func (c *Controller) fetch(ctx context.Context, provider market.Provider, area string, from, to civil.Date) (map[civil.Date]types.MarketDay, []error) {
	var mu sync.Mutex
	days := make(map[civil.Date]types.MarketDay)
	var errs []error

	var eg errgroup.Group
	for d := from; !to.Before(d); d = d.AddDays(1) {
		eg.Go(func() error {
			day, err := provider.GetDayAhead(ctx, d, area)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "failed to fetch delivery day", slog.String("date", d.String()), slog.Any("error", err))
				errs = append(errs, fmt.Errorf("%s: %w", d, err))
				return nil
			}
			days[d] = day
			return nil
		})
	}
	eg.Wait()
	return days, errs
}

// Analyze reruns the cheap-period analysis against the current window with
// the effective settings. It fails when no window has been loaded yet.
func (c *Controller) Analyze(ctx context.Context, now time.Time) (types.CheapAnalysisResult, error) {
	ctx, _ = log.WithCycle(ctx, JobAnalyze)
	start := time.Now()
	res, err := c.analyze(ctx, now)
	metrics.UpdateJobMetrics(JobAnalyze, start, err)
	return res, err
}

func (c *Controller) analyze(ctx context.Context, now time.Time) (types.CheapAnalysisResult, error) {
	settings, err := c.EffectiveSettings(ctx)
	if err != nil {
		return types.CheapAnalysisResult{}, err
	}
	w, ok := c.Window()
	if !ok {
		return types.CheapAnalysisResult{}, fmt.Errorf("no price window loaded")
	}

	res := cheap.Analyze(ctx, w.Days(), now, cheap.PolicyFromSettings(settings))
	res.TriggerTime = settings.CheapTrigger
	c.analysis.Store(&res)

	metrics.CheapRanges.Set(float64(len(res.CheapRanges)))
	metrics.CheapHours.Set(float64(res.AnalysisInfo.TotalCheapHours))

	if err := c.storage.PutAnalysis(ctx, settings.Area, res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store analysis", slog.Any("error", err))
	}
	if c.publisher != nil {
		if err := c.publisher.PublishCheap(ctx, res, now); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to publish cheap analysis", slog.Any("error", err))
		}
	}
	return res, nil
}

// Restore loads the stored window and latest analysis so readers have data
// before the first refresh completes. Missing data is not an error.
func (c *Controller) Restore(ctx context.Context, now time.Time) error {
	settings, err := c.EffectiveSettings(ctx)
	if err != nil {
		return err
	}
	today := civil.DateOf(now.UTC())
	days, err := c.storage.GetDaySeries(ctx, settings.Area, today.AddDays(-1), today.AddDays(2))
	if err != nil {
		return fmt.Errorf("failed to load day series: %w", err)
	}
	builder, err := pricing.NewBuilder(settings, c.calendar)
	if err != nil {
		return err
	}
	w := types.PriceWindow{
		Today:    builder.Placeholder(ctx, today),
		Tomorrow: builder.Placeholder(ctx, today.AddDays(1)),
	}
	for _, d := range days {
		switch d.Date {
		case today.AddDays(-1):
			y := d
			w.Yesterday = &y
		case today:
			w.Today = d
		case today.AddDays(1):
			w.Tomorrow = d
		}
	}
	if len(days) > 0 {
		c.window.CompareAndSwap(nil, &w)
	}

	res, err := c.storage.GetLatestAnalysis(ctx, settings.Area)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to load latest analysis: %w", err)
	}
	c.analysis.CompareAndSwap(nil, &res)
	log.Ctx(ctx).InfoContext(ctx, "restored stored state", slog.Int("days", len(days)), slog.Time("analysis", res.LastUpdate))
	return nil
}
