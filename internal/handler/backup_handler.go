package handler

import (
	"net/http"

	"github.com/gfmeira/gestor/internal/service"

	"go.uber.org/zap"
)

// Manual backup/restore endpoints surface the outcome — including
// whether the snapshot landed remotely or fell back to local storage —
// in the response body, unlike the background task which only logs.

func performBackupHandler(backup *service.BackupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := backup.Perform(r.Context(), true)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func listBackupsHandler(backup *service.BackupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := backup.List()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

type restoreRequest struct {
	Timestamp string `json:"timestamp"`
}

func restoreBackupHandler(backup *service.BackupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req restoreRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		result, err := backup.Restore(r.Context(), req.Timestamp)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
