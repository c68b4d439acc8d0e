package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/bitosome/real-electricity-price/pkg/calendar"
	"github.com/bitosome/real-electricity-price/pkg/cheap"
	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/pricing"
	"github.com/bitosome/real-electricity-price/pkg/storage"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/levenlabs/go-lflag"
)

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	daysFlag := lflag.String("seed-days", "7", "number of days of mock prices to seed, ending tomorrow")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	days, err := strconv.Atoi(*daysFlag)
	if err != nil || days < 1 {
		log.Ctx(ctx).ErrorContext(ctx, "invalid seed-days", "value", *daysFlag)
		os.Exit(1)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	settings, version, err := s.GetSettings(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", "error", err)
		os.Exit(1)
	}
	settings, migrated, err := types.MigrateSettings(settings, version)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to migrate settings", "error", err)
		os.Exit(1)
	}
	if migrated {
		if err := s.SetSettings(ctx, settings, types.CurrentSettingsVersion); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed settings", "error", err)
			os.Exit(1)
		}
	}

	builder, err := pricing.NewBuilder(settings, calendar.New())
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create builder", "error", err)
		os.Exit(1)
	}

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	now := time.Now().UTC()
	last := civil.DateOf(now).AddDays(1)
	first := last.AddDays(1 - days)

	var series []types.DaySeries
	for d := first; !d.After(last); d = d.AddDays(1) {
		start := d.In(time.UTC)
		var entries []types.WholesaleEntry
		for h := 0; h < types.HoursPerDay; h++ {
			// EUR/MWh
			price := 80.0
			if h >= 6 && h < 9 {
				price = 160 // Morning Peak
			} else if h >= 15 && h < 19 {
				price = 220 // Evening Peak
			} else if h < 4 {
				price = 25 // Night Lull
			}
			// Jitter
			price += (rng.Float64() * 30) - 15

			ts := start.Add(time.Duration(h) * time.Hour)
			entries = append(entries, types.WholesaleEntry{
				DeliveryStart: ts,
				DeliveryEnd:   ts.Add(time.Hour),
				PricePerArea:  map[string]float64{settings.Area: price},
			})
		}

		day := builder.Build(ctx, d, entries, nil)
		if err := s.UpsertDaySeries(ctx, settings.Area, day); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed day series", "error", err)
			os.Exit(1)
		}
		series = append(series, day)
		fmt.Printf("Seeded %s for %s\n", d, settings.Area)
	}

	res := cheap.Analyze(ctx, series, now, cheap.PolicyFromSettings(settings))
	res.TriggerTime = settings.CheapTrigger
	if err := s.PutAnalysis(ctx, settings.Area, res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed analysis", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded analysis with %d cheap ranges\n", len(res.CheapRanges))

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data successfully")
}
