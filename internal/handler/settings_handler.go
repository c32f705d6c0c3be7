package handler

import (
	"net/http"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/service"

	"go.uber.org/zap"
)

func getSettingsHandler(settings *service.SettingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := settings.Get()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func updateSettingsHandler(settings *service.SettingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s domain.Settings
		if err := decodeBody(r, &s); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := settings.Update(s); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
