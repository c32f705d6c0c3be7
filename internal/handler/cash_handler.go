package handler

import (
	"net/http"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func listCashHandler(cash *service.CashbookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		movements, err := cash.List()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, movements)
	}
}

func createCashHandler(cash *service.CashbookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m domain.CashMovement
		if err := decodeBody(r, &m); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		created, err := cash.Create(m)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateCashHandler(cash *service.CashbookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m domain.CashMovement
		if err := decodeBody(r, &m); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		updated, err := cash.Update(chi.URLParam(r, "id"), m)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteCashHandler(cash *service.CashbookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cash.Delete(chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func cashSummaryHandler(cash *service.CashbookService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := cash.Summary(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
