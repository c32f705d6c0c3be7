package service

import (
	"strconv"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/port"
)

// SettingsService reads and writes the small bag of app toggles the
// dashboard edits. Each toggle keeps its own local-store key so old
// backups restore cleanly.
type SettingsService struct {
	kv port.KeyValue
}

// NewSettingsService creates the settings service.
func NewSettingsService(kv port.KeyValue) *SettingsService {
	return &SettingsService{kv: kv}
}

// Get returns the current settings with defaults for unset keys.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := &domain.Settings{
		AlertMode:            "off",
		AlertIntervalMinutes: 30,
		MarketplaceMode:      "off",
	}

	if raw, ok, err := s.kv.Get(keyAlertMode); err != nil {
		return nil, err
	} else if ok {
		settings.AlertMode = string(raw)
	}

	if raw, ok, err := s.kv.Get(keyAlertInterval); err != nil {
		return nil, err
	} else if ok {
		if n, err := strconv.Atoi(string(raw)); err == nil {
			settings.AlertIntervalMinutes = n
		}
	}

	if raw, ok, err := s.kv.Get(keyMarketplaceMode); err != nil {
		return nil, err
	} else if ok {
		settings.MarketplaceMode = string(raw)
	}

	return settings, nil
}

// Update persists the given settings.
func (s *SettingsService) Update(settings domain.Settings) error {
	if settings.AlertIntervalMinutes <= 0 {
		return &domain.ErrValidation{Field: "alert_interval_minutes", Message: "must be positive"}
	}

	if err := s.kv.Set(keyAlertMode, []byte(settings.AlertMode)); err != nil {
		return err
	}
	if err := s.kv.Set(keyAlertInterval, []byte(strconv.Itoa(settings.AlertIntervalMinutes))); err != nil {
		return err
	}
	return s.kv.Set(keyMarketplaceMode, []byte(settings.MarketplaceMode))
}
