package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/gymflex/internal/application"
)

type bookingService interface {
	ToggleBooking(ctx context.Context, principal application.Principal, sessionID string) (application.BookingStatus, error)
	RemoveAttendee(ctx context.Context, principal application.Principal, sessionID, targetUserID string) (application.BookingStatus, error)
	MarkAttendance(ctx context.Context, principal application.Principal, sessionID, attendanceID string, attended bool) (application.AttendanceResult, error)
}

// BookingHandler serves the booking actions nested under a session. Business
// outcomes are answered as {"status": ...}; outcomes that changed nothing
// use 400.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

// Book toggles the caller's booking on the session.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	sessionID := r.PathValue("id")

	status, err := h.service.ToggleBooking(r.Context(), principal, sessionID)
	if err != nil {
		h.log(r.Context(), "Book", "session_id", sessionID).ErrorContext(r.Context(), "booking failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeStatus(r.Context(), w, status)
}

// RemoveAttendee lets staff drop a member from the session.
func (h *BookingHandler) RemoveAttendee(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	sessionID := r.PathValue("id")

	var req removeAttendeeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, detailBadRequestBody, err)
		return
	}

	status, err := h.service.RemoveAttendee(r.Context(), principal, sessionID, req.UserID)
	if err != nil {
		h.log(r.Context(), "RemoveAttendee", "session_id", sessionID).WarnContext(r.Context(), "attendee removal failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeStatus(r.Context(), w, status)
}

// MarkAttendance records whether a booked member attended. An absent
// attended flag means they did.
func (h *BookingHandler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	sessionID := r.PathValue("id")

	var req markAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, detailBadRequestBody, err)
		return
	}
	attended := true
	if req.Attended != nil {
		attended = *req.Attended
	}

	result, err := h.service.MarkAttendance(r.Context(), principal, sessionID, req.AttendanceID, attended)
	if err != nil {
		h.log(r.Context(), "MarkAttendance", "session_id", sessionID).WarnContext(r.Context(), "attendance marking failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if !result.Status.Succeeded() {
		h.responder.writeStatus(r.Context(), w, result.Status)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, attendanceResponse{
		Status:   string(result.Status),
		Attended: result.Attended,
		UserID:   result.UserID,
		Username: result.Username,
	})
}

type removeAttendeeRequest struct {
	UserID string `json:"user_id"`
}

type markAttendanceRequest struct {
	AttendanceID string `json:"attendance_id"`
	Attended     *bool  `json:"attended"`
}

type attendanceResponse struct {
	Status   string `json:"status"`
	Attended bool   `json:"attended"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
