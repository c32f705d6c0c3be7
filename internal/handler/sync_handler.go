package handler

import (
	"net/http"

	"github.com/gfmeira/gestor/internal/infra/observability"
	"github.com/gfmeira/gestor/internal/service"

	"go.uber.org/zap"
)

// triggerSyncHandler runs a full sync cycle on demand. If a scheduled
// cycle is already in flight the caller shares its result instead of
// starting a second one.
func triggerSyncHandler(sync *service.SyncService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := sync.SyncAll(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		status := http.StatusOK
		if report.Failed() {
			// Partial success: some collections synced, some didn't.
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, report)
	}
}

func syncStatusHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSyncSnapshot())
	}
}
