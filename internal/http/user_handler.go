package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/gymflex/internal/application"
)

type userService interface {
	Register(ctx context.Context, params application.RegisterParams) (application.User, error)
	Me(ctx context.Context, principal application.Principal) (application.User, error)
}

// UserHandler serves registration and the current user profile.
type UserHandler struct {
	service   userService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service userService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, detailBadRequestBody, err)
		return
	}

	logger := h.log(r.Context(), "Register", "username", req.Username)

	user, err := h.service.Register(r.Context(), application.RegisterParams{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "registration rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toUserDTO(user))
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	user, err := h.service.Me(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "Me").ErrorContext(r.Context(), "failed to load current user", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toUserDTO(user))
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

func toUserDTO(user application.User) userDTO {
	return userDTO{
		ID:          user.ID,
		Username:    user.Username,
		IsStaff:     user.IsStaff,
		IsSuperuser: user.IsSuperuser,
	}
}
