package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/gymflex/internal/application"
)

type authService interface {
	IssueTokens(ctx context.Context, username, password string) (application.TokenPair, error)
	RefreshTokens(ctx context.Context, refreshToken string) (application.TokenPair, error)
	RevokeToken(ctx context.Context, refreshToken string) error
}

// AuthHandler serves the token endpoints.
type AuthHandler struct {
	service   authService
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(service authService, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// IssueTokens exchanges a username and password for an access/refresh pair.
func (h *AuthHandler) IssueTokens(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, detailBadRequestBody, err)
		return
	}

	logger := h.log(r.Context(), "IssueTokens", "username", strings.ToLower(strings.TrimSpace(req.Username)))

	pair, err := h.service.IssueTokens(r.Context(), req.Username, req.Password)
	if err != nil {
		logger.WarnContext(r.Context(), "authentication rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "tokens issued")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, tokenPairResponse{Access: pair.Access, Refresh: pair.Refresh})
}

// RefreshTokens rotates a refresh token into a new pair.
func (h *AuthHandler) RefreshTokens(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, detailBadRequestBody, err)
		return
	}
	if strings.TrimSpace(req.Refresh) == "" {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{FieldErrors: map[string]string{"refresh": "refresh is required"}})
		return
	}

	pair, err := h.service.RefreshTokens(r.Context(), req.Refresh)
	if err != nil {
		h.log(r.Context(), "RefreshTokens").WarnContext(r.Context(), "refresh rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, tokenPairResponse{Access: pair.Access, Refresh: pair.Refresh})
}

// RevokeToken consumes a refresh token so it can no longer be exchanged.
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, detailBadRequestBody, err)
		return
	}
	if strings.TrimSpace(req.Refresh) == "" {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{FieldErrors: map[string]string{"refresh": "refresh is required"}})
		return
	}

	if err := h.service.RevokeToken(r.Context(), req.Refresh); err != nil {
		h.log(r.Context(), "RevokeToken").WarnContext(r.Context(), "revocation rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenPairResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
