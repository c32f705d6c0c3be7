package handler

import (
	"net/http"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/service"

	"go.uber.org/zap"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string            `json:"token"`
	User  domain.StoredUser `json:"user"`
}

// loginHandler exchanges credentials for an access token.
func loginHandler(users *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		token, user, err := users.Authenticate(req.Username, req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, loginResponse{Token: token, User: *user})
	}
}

// meHandler returns the authenticated user's record.
func meHandler(users *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := users.Get(UsernameFromContext(r.Context()))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
