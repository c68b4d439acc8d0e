package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/types"
)

// Settings returns the stored settings, migrating and saving them when they
// were written by an older version.
func (c *Controller) Settings(ctx context.Context) (types.Settings, error) {
	settings, version, err := c.storage.GetSettings(ctx)
	if err != nil {
		return types.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}

	// Check for migration
	if version < types.CurrentSettingsVersion {
		log.Ctx(ctx).InfoContext(ctx, "migrating settings", slog.Int("oldVersion", version), slog.Int("newVersion", types.CurrentSettingsVersion))
		newSettings, changed, err := types.MigrateSettings(settings, version)
		if err != nil {
			// Log error but return settings as is (best effort)
			log.Ctx(ctx).ErrorContext(ctx, "failed to migrate settings", slog.Int("currentVersion", version), slog.Any("error", err))
		} else if changed {
			if err := c.storage.SetSettings(ctx, newSettings, types.CurrentSettingsVersion); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to save migrated settings", slog.Any("error", err))
				// Return migrated settings even if save failed, so current request works with new defaults
			} else {
				log.Ctx(ctx).InfoContext(ctx, "saved migrated settings", slog.Int("oldVersion", version), slog.Int("newVersion", types.CurrentSettingsVersion))
			}
			settings = newSettings
		}
	}
	return settings, nil
}

// EffectiveSettings returns the stored settings with the live overrides
// applied. The result is validated.
func (c *Controller) EffectiveSettings(ctx context.Context) (types.Settings, error) {
	settings, err := c.Settings(ctx)
	if err != nil {
		return types.Settings{}, err
	}
	overrides, err := c.storage.GetOverrides(ctx)
	if err != nil {
		return types.Settings{}, fmt.Errorf("failed to get overrides: %w", err)
	}
	settings = settings.WithOverrides(overrides)
	if err := settings.Validate(); err != nil {
		return types.Settings{}, err
	}
	return settings, nil
}

// SetSettings validates and stores new settings and rebuilds the loaded
// window with them. Errors wrapping types.ErrInvalidConfig leave the stored
// settings untouched. A failed rebuild is logged; the settings stay saved.
func (c *Controller) SetSettings(ctx context.Context, settings types.Settings, now time.Time) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if _, err := c.markets.Provider(settings.MarketProvider); err != nil {
		return err
	}
	if err := c.storage.SetSettings(ctx, settings, types.CurrentSettingsVersion); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "settings updated")
	c.notifyTrigger(ctx)

	if _, ok := c.Window(); ok {
		if _, err := c.Refresh(ctx, now); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to rebuild prices after settings change", slog.Any("error", err))
		}
	}
	return nil
}

// Overrides returns the live overrides.
func (c *Controller) Overrides(ctx context.Context) (types.Overrides, error) {
	return c.storage.GetOverrides(ctx)
}

// SetOverrides validates the overrides against the stored settings, stores
// them and reruns the analysis when a window is loaded.
func (c *Controller) SetOverrides(ctx context.Context, overrides types.Overrides, now time.Time) error {
	settings, err := c.Settings(ctx)
	if err != nil {
		return err
	}
	if err := settings.WithOverrides(overrides).Validate(); err != nil {
		return err
	}
	if err := c.storage.SetOverrides(ctx, overrides); err != nil {
		return fmt.Errorf("failed to save overrides: %w", err)
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"overrides updated",
		slog.Any("acceptablePrice", overrides.AcceptablePrice),
		slog.Any("basePrice", overrides.BasePrice),
		slog.Any("thresholdPercent", overrides.ThresholdPercent),
	)
	c.notifyTrigger(ctx)

	if _, ok := c.Window(); ok {
		if _, err := c.Analyze(ctx, now); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to recalculate after overrides change", slog.Any("error", err))
		}
	}
	return nil
}
