package handler

import (
	"net/http"
	"time"

	"github.com/gfmeira/gestor/internal/infra/observability"
	"github.com/gfmeira/gestor/internal/port"
	"github.com/gfmeira/gestor/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles everything the router hands out to handlers.
type Services struct {
	Users    *service.UserService
	Cash     *service.CashbookService
	Orders   *service.MarketplaceService
	Files    *service.FileService
	Backup   *service.BackupService
	Sync     *service.SyncService
	Catalog  *service.CatalogService
	Settings *service.SettingsService
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, kv port.KeyValue, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(kv))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		// Public
		r.Post("/auth/login", loginHandler(svc.Users, logger))

		// Everything else requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svc.Users, logger))

			r.Get("/auth/me", meHandler(svc.Users, logger))

			// Cash book
			r.Group(func(r chi.Router) {
				r.Use(RequirePermission(svc.Users, "cash", logger))
				r.Get("/cash", listCashHandler(svc.Cash, logger))
				r.Post("/cash", createCashHandler(svc.Cash, logger))
				r.Put("/cash/{id}", updateCashHandler(svc.Cash, logger))
				r.Delete("/cash/{id}", deleteCashHandler(svc.Cash, logger))
				r.Get("/cash/summary", cashSummaryHandler(svc.Cash, logger))
			})

			// Marketplace orders
			r.Group(func(r chi.Router) {
				r.Use(RequirePermission(svc.Users, "orders", logger))
				r.Get("/orders", listOrdersHandler(svc.Orders, logger))
				r.Post("/orders", createOrderHandler(svc.Orders, logger))
				r.Get("/orders/pending", pendingOrdersHandler(svc.Orders, logger))
				r.Get("/orders/completed", completedOrdersHandler(svc.Orders, logger))
				r.Get("/orders/stats", orderStatsHandler(svc.Orders, logger))
				r.Patch("/orders/{id}/status", orderStatusHandler(svc.Orders, logger))
				r.Delete("/orders/{id}", deleteOrderHandler(svc.Orders, logger))
			})

			// User management (admin only)
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin(logger))
				r.Get("/users", listUsersHandler(svc.Users, logger))
				r.Post("/users", createUserHandler(svc.Users, logger))
				r.Put("/users/{username}", updateUserHandler(svc.Users, logger))
				r.Delete("/users/{username}", deleteUserHandler(svc.Users, logger))
			})

			// Files
			r.Post("/files", uploadFileHandler(svc.Files, logger))
			r.Get("/files", listFilesHandler(svc.Files, logger))
			r.Get("/files/usage", storageUsageHandler(svc.Files, logger))
			r.Get("/files/{id}", getFileHandler(svc.Files, logger))
			r.Delete("/files/{id}", deleteFileHandler(svc.Files, logger))

			// Backup & sync (admin only)
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin(logger))
				r.Post("/backup", performBackupHandler(svc.Backup, logger))
				r.Get("/backups", listBackupsHandler(svc.Backup, logger))
				r.Post("/backup/restore", restoreBackupHandler(svc.Backup, logger))
				r.Post("/sync", triggerSyncHandler(svc.Sync, logger))
				r.Get("/sync/status", syncStatusHandler(metrics, logger))
			})

			// Business entities
			r.Get("/entities/{entity}", listEntityHandler(svc.Catalog, logger))
			r.Post("/entities/{entity}", createEntityHandler(svc.Catalog, logger))
			r.Post("/entities/{entity}/bulk", bulkCreateEntityHandler(svc.Catalog, logger))
			r.Get("/entities/{entity}/{id}", getEntityHandler(svc.Catalog, logger))
			r.Put("/entities/{entity}/{id}", updateEntityHandler(svc.Catalog, logger))
			r.Delete("/entities/{entity}/{id}", deleteEntityHandler(svc.Catalog, logger))
			r.Post("/sales", createSaleHandler(svc.Catalog, logger))
			r.Put("/products/{id}/meta", setProductMetaHandler(svc.Catalog, logger))

			// Settings
			r.Get("/settings", getSettingsHandler(svc.Settings, logger))
			r.Put("/settings", updateSettingsHandler(svc.Settings, logger))
		})
	})

	return r
}

func healthzHandler(kv port.KeyValue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		httpStatus := http.StatusOK
		if _, err := kv.Usage(); err != nil {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
		writeJSON(w, httpStatus, map[string]any{
			"status":     status,
			"checked_at": time.Now().Format(time.RFC3339),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
