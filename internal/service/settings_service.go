package service

import (
	"context"
	"regexp"

	"github.com/shopspring/decimal"

	"storefront-service/internal/entity"
)

var themeColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type SettingsStore interface {
	GetSettings(ctx context.Context) (map[string]string, error)
}

type SettingsService struct {
	settingsRepo SettingsStore
}

func NewSettingsService(settingsRepo SettingsStore) *SettingsService {
	return &SettingsService{settingsRepo: settingsRepo}
}

// Fetch merges the stored settings over the defaults. It never fails: a
// missing or unparsable value keeps its default, and a store failure yields
// all defaults.
func (s *SettingsService) Fetch(ctx context.Context) entity.AppSettings {
	settings := entity.DefaultAppSettings()

	raw, err := s.settingsRepo.GetSettings(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Error fetching app settings, using defaults")
		return settings
	}

	if v, ok := raw[entity.SettingThemeColor]; ok {
		if themeColorPattern.MatchString(v) {
			settings.ThemeColor = v
		} else {
			logger.Warn().Msgf("Ignoring invalid %s %q", entity.SettingThemeColor, v)
		}
	}
	if d, ok := parseAmount(raw, entity.SettingDeliveryFee); ok {
		settings.DeliveryFee = d
	}
	if d, ok := parseAmount(raw, entity.SettingFreeDeliveryThreshold); ok {
		settings.FreeDeliveryThreshold = d
	}
	return settings
}

func parseAmount(raw map[string]string, key string) (decimal.Decimal, bool) {
	v, ok := raw[key]
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		logger.Warn().Msgf("Ignoring invalid %s %q", key, v)
		return decimal.Zero, false
	}
	return d, true
}
