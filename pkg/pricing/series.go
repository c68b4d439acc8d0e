package pricing

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/bitosome/real-electricity-price/pkg/calendar"
	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/metrics"
	"github.com/bitosome/real-electricity-price/pkg/tariff"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/guregu/null/v6"
)

// Calendar answers holiday lookups for the builder.
type Calendar interface {
	IsHoliday(date civil.Date, country, subdivision string) (bool, error)
}

// SkipReason explains why a wholesale entry did not price a slot.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipMissingDelivery SkipReason = "missing_delivery"
	SkipMissingPrice    SkipReason = "missing_area_price"
	SkipMisaligned      SkipReason = "misaligned"
	SkipOutsideDay      SkipReason = "outside_day"
)

// entryResult is the outcome of parsing one wholesale entry against a day.
type entryResult struct {
	hour  int
	price float64
	skip  SkipReason
}

// Builder builds DaySeries for one configuration snapshot. It is immutable and
// safe for concurrent use.
type Builder struct {
	area        string
	country     string
	subdivision string
	location    *time.Location
	classifier  *tariff.Classifier
	composer    Composer
	calendar    Calendar
}

// NewBuilder validates settings and returns a Builder. Any configuration
// error is returned here so Build and Placeholder never fail.
func NewBuilder(settings types.Settings, cal Calendar) (*Builder, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	loc, err := settings.Location()
	if err != nil {
		return nil, err
	}
	classifier, err := tariff.New(tariff.ConfigFromSettings(settings))
	if err != nil {
		return nil, err
	}
	return &Builder{
		area:        settings.Area,
		country:     settings.Country(),
		subdivision: settings.Subdivision,
		location:    loc,
		classifier:  classifier,
		composer:    NewComposer(settings.Components, settings.OffPeakStrategy),
		calendar:    cal,
	}, nil
}

// Location returns the local zone tariffs are computed in.
func (b *Builder) Location() *time.Location {
	return b.location
}

// Build prices the 24 UTC hours of date from entries. Entries outside the day
// are ignored, malformed entries are skipped, and sub-hourly entries are
// averaged into their hour. DataAvailable is set when at least one hour was
// priced.
func (b *Builder) Build(ctx context.Context, date civil.Date, entries []types.WholesaleEntry, blocks []types.MarketBlock) types.DaySeries {
	dayStart := date.In(time.UTC)

	var sums [types.HoursPerDay]float64
	var counts [types.HoursPerDay]int
	for _, e := range entries {
		res := b.parseEntry(e, dayStart)
		switch res.skip {
		case SkipNone:
			sums[res.hour] += res.price
			counts[res.hour]++
		case SkipOutsideDay:
			// pooled entries from neighbouring delivery days
		default:
			metrics.SkippedEntries.WithLabelValues(string(res.skip)).Inc()
			log.Ctx(ctx).WarnContext(
				ctx,
				"skipping wholesale entry",
				slog.String("date", date.String()),
				slog.String("reason", string(res.skip)),
				slog.Time("deliveryStart", e.DeliveryStart),
				slog.Time("deliveryEnd", e.DeliveryEnd),
			)
		}
	}

	series := b.skeleton(ctx, date, blocks)
	for h := range series.HourlyPrices {
		if counts[h] == 0 {
			continue
		}
		wholesale := Round(sums[h]/float64(counts[h]), 6)
		s := &series.HourlyPrices[h]
		s.WholesalePrice = null.FloatFrom(wholesale)
		s.ConsumerPrice = null.FloatFrom(b.composer.Compose(wholesale, types.Classification{Tariff: s.Tariff, Block: s.Block}))
		series.DataAvailable = true
	}
	return series
}

// Placeholder returns 24 unpriced hours for date with tariff and calendar
// fields filled in.
func (b *Builder) Placeholder(ctx context.Context, date civil.Date) types.DaySeries {
	return b.skeleton(ctx, date, nil)
}

func (b *Builder) skeleton(ctx context.Context, date civil.Date, blocks []types.MarketBlock) types.DaySeries {
	holiday := b.isHoliday(ctx, date)
	weekend := calendar.IsWeekend(date)

	series := types.DaySeries{
		Date:         date,
		IsHoliday:    holiday,
		IsWeekend:    weekend,
		HourlyPrices: make([]types.HourlyPriceSample, types.HoursPerDay),
	}

	// weekend and holiday overrides follow the local date of each hour, which
	// differs from the UTC date around midnight
	holidays := map[civil.Date]bool{date: holiday}
	start := date.In(time.UTC)
	for h := range series.HourlyPrices {
		slot := start.Add(time.Duration(h) * time.Hour)
		local := slot.In(b.location)
		localDate := civil.DateOf(local)
		localHoliday, ok := holidays[localDate]
		if !ok {
			localHoliday = b.isHoliday(ctx, localDate)
			holidays[localDate] = localHoliday
		}
		cls := b.classifier.Classify(local, tariff.Day{Weekday: local.Weekday(), IsHoliday: localHoliday}, blocks)
		series.HourlyPrices[h] = types.HourlyPriceSample{
			StartTime: slot,
			EndTime:   slot.Add(time.Hour),
			Tariff:    cls.Tariff,
			Block:     cls.Block,
			IsHoliday: holiday,
			IsWeekend: weekend,
		}
	}
	return series
}

// isHoliday degrades to a working day when the calendar lookup fails.
func (b *Builder) isHoliday(ctx context.Context, date civil.Date) bool {
	holiday, err := b.calendar.IsHoliday(date, b.country, b.subdivision)
	if err != nil {
		log.Ctx(ctx).WarnContext(
			ctx,
			"holiday lookup failed, assuming working day",
			slog.String("date", date.String()),
			slog.String("country", b.country),
			slog.Any("error", err),
		)
		return false
	}
	return holiday
}

func (b *Builder) parseEntry(e types.WholesaleEntry, dayStart time.Time) entryResult {
	if e.DeliveryStart.IsZero() || e.DeliveryEnd.IsZero() {
		return entryResult{skip: SkipMissingDelivery}
	}
	start := e.DeliveryStart.UTC()
	end := e.DeliveryEnd.UTC()
	if start.Before(dayStart) || !start.Before(dayStart.Add(types.HoursPerDay*time.Hour)) {
		return entryResult{skip: SkipOutsideDay}
	}
	if !end.After(start) {
		return entryResult{skip: SkipMisaligned}
	}
	hourStart := start.Truncate(time.Hour)
	if end.After(hourStart.Add(time.Hour)) {
		return entryResult{skip: SkipMisaligned}
	}
	price, ok := e.PricePerArea[b.area]
	if !ok {
		return entryResult{skip: SkipMissingPrice}
	}
	return entryResult{hour: int(hourStart.Sub(dayStart) / time.Hour), price: price}
}
