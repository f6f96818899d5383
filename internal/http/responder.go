package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/gymflex/internal/application"
)

const (
	detailBadRequestBody     = "Malformed request body."
	detailNoCredentials      = "Authentication credentials were not provided."
	detailNotAuthorized      = "Not authorized"
	detailNotFound           = "Not found."
	detailUserNotFound       = "User not found"
	detailAttendanceNotFound = "Attendance record not found"
	detailInvalidCredentials = "No active account found with the given credentials"
	detailTokenInvalid       = "Token is invalid or expired"
	detailAlreadyExists      = "Resource already exists."
	detailInternal           = "A server error occurred."
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError answers with detail and logs cause, which stays server side.
func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, detail string, cause error) {
	if strings.TrimSpace(detail) == "" {
		detail = http.StatusText(status)
	}
	if cause != nil {
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", cause)
	}

	r.writeJSON(ctx, w, status, errorResponse{Detail: detail})
}

func (r responder) writeStatus(ctx context.Context, w http.ResponseWriter, status application.BookingStatus) {
	code := http.StatusOK
	if !status.Succeeded() {
		code = http.StatusBadRequest
	}
	r.writeJSON(ctx, w, code, statusResponse{Status: string(status)})
}

// handleServiceError is the single place application errors become HTTP
// responses. Unexpected errors never leak their text.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Detail: detailInternal})
		return
	}

	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Detail: detailNoCredentials})
	case errors.Is(err, application.ErrInvalidCredentials):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Detail: detailInvalidCredentials})
	case errors.Is(err, application.ErrTokenInvalid):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Detail: detailTokenInvalid})
	case errors.Is(err, application.ErrForbidden):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{Detail: detailNotAuthorized})
	case errors.Is(err, application.ErrUserNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Detail: detailUserNotFound})
	case errors.Is(err, application.ErrAttendanceNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Detail: detailAttendanceNotFound})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Detail: detailNotFound})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Detail: detailAlreadyExists})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			r.writeJSON(ctx, w, http.StatusBadRequest, validationResponse(vErr))
			return
		}

		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Detail: detailInternal})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

// validationResponse lifts a lone field message into detail so single-field
// failures such as a missing user_id read naturally.
func validationResponse(vErr *application.ValidationError) errorResponse {
	resp := errorResponse{Detail: "Invalid input."}
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return resp
	}
	resp.Errors = make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		resp.Errors[field] = msg
		if len(vErr.FieldErrors) == 1 {
			resp.Detail = msg
		}
	}
	return resp
}

type errorResponse struct {
	Detail string            `json:"detail"`
	Errors map[string]string `json:"errors,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}
