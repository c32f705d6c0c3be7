package handler

import (
	"net/http"

	"github.com/gfmeira/gestor/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type sourcedResponse struct {
	Record map[string]any `json:"record,omitempty"`
	Source string         `json:"source"`
}

func listEntityHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := catalog.List(r.Context(), chi.URLParam(r, "entity"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func getEntityHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := catalog.Get(r.Context(), chi.URLParam(r, "entity"), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

func createEntityHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var data map[string]any
		if err := decodeBody(r, &data); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		record, source, err := catalog.Create(r.Context(), chi.URLParam(r, "entity"), data)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, sourcedResponse{Record: record, Source: string(source)})
	}
}

func updateEntityHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var data map[string]any
		if err := decodeBody(r, &data); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		source, err := catalog.Update(r.Context(), chi.URLParam(r, "entity"), chi.URLParam(r, "id"), data)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sourcedResponse{Source: string(source)})
	}
}

func deleteEntityHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := catalog.Delete(r.Context(), chi.URLParam(r, "entity"), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func bulkCreateEntityHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var records []map[string]any
		if err := decodeBody(r, &records); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		source, err := catalog.BulkCreate(r.Context(), chi.URLParam(r, "entity"), records)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, sourcedResponse{Source: string(source)})
	}
}

func createSaleHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.SaleRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		sale, source, err := catalog.CreateSale(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, sourcedResponse{Record: sale, Source: string(source)})
	}
}

func setProductMetaHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var meta service.ProductMeta
		if err := decodeBody(r, &meta); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if meta.ProductID == "" {
			meta.ProductID = chi.URLParam(r, "id")
		}
		if err := catalog.SetProductMeta(meta); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, meta)
	}
}
