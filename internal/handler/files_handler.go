package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// fileUploadRequest carries the file as base64, the same way the
// frontend read uploads with FileReader before storing them.
type fileUploadRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"` // base64
}

func uploadFileHandler(files *service.FileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fileUploadRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		content, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			handleServiceError(w, &domain.ErrValidation{Field: "content", Message: "invalid base64"}, logger)
			return
		}

		file, err := files.Save(req.Name, req.Type, content)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, file)
	}
}

func listFilesHandler(files *service.FileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := files.List(r.URL.Query().Get("type"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getFileHandler(files *service.FileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, err := files.Get(chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, file)
	}
}

func deleteFileHandler(files *service.FileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := files.Delete(chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func storageUsageHandler(files *service.FileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usage, err := files.Usage()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, usage)
	}
}
