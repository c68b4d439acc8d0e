package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitosome/real-electricity-price/pkg/calendar"
	"github.com/bitosome/real-electricity-price/pkg/controller"
	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/market"
	"github.com/bitosome/real-electricity-price/pkg/publish"
	"github.com/bitosome/real-electricity-price/pkg/scheduler"
	"github.com/bitosome/real-electricity-price/pkg/server"
	"github.com/bitosome/real-electricity-price/pkg/storage"
	"github.com/bitosome/real-electricity-price/pkg/types"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"golang.org/x/sync/errgroup"
)

func main() {
	// init packages
	m := market.Configured()
	s := storage.Configured()
	mq := publish.Configured()

	ctrl := controller.New(m, s, calendar.New(), nil)
	sched := scheduler.Configured(ctrl)

	// init server
	srv := server.Configured(ctrl)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	// only hand over an enabled publisher so the controller sees a nil interface otherwise
	if mq.Enabled() {
		if err := mq.Connect(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to connect to mqtt", "error", err)
			os.Exit(1)
		}
		defer mq.Close()
		ctrl.SetPublisher(mq)
	}

	ctrl.OnTriggerChange(func(tod types.TimeOfDay, loc *time.Location) {
		if err := sched.Reschedule(tod, loc); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to reschedule analysis", "error", err)
		}
	})
	settings, err := ctrl.EffectiveSettings(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid settings", "error", err)
		os.Exit(1)
	}
	loc, err := settings.Location()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid time zone", "error", err)
		os.Exit(1)
	}
	if err := sched.Reschedule(settings.CheapTrigger, loc); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to schedule analysis", "error", err)
		os.Exit(1)
	}

	// serve the last stored snapshots until the first refresh lands
	if err := ctrl.Restore(ctx, time.Now()); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to restore stored prices", "error", err)
	}

	// Run will block until context is canceled or error happens
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
