package handler

import (
	"net/http"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func listOrdersHandler(orders *service.MarketplaceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := orders.List()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, all)
	}
}

func createOrderHandler(orders *service.MarketplaceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var order domain.MarketplaceOrder
		if err := decodeBody(r, &order); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		created, err := orders.Create(order)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func pendingOrdersHandler(orders *service.MarketplaceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := orders.Pending()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, pending)
	}
}

func completedOrdersHandler(orders *service.MarketplaceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		completed, err := orders.Completed()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, completed)
	}
}

func orderStatsHandler(orders *service.MarketplaceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := orders.Stats()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func orderStatusHandler(orders *service.MarketplaceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orderStatusRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		updated, err := orders.AdvanceStatus(chi.URLParam(r, "id"), req.Status, UsernameFromContext(r.Context()))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteOrderHandler(orders *service.MarketplaceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orders.Delete(chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
