package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/example/gymflex/internal/application"
)

type sessionService interface {
	ListSessions(ctx context.Context, params application.ListSessionsParams) ([]application.SessionView, error)
	GetSession(ctx context.Context, principal application.Principal, sessionID string) (application.SessionView, error)
	CreateSession(ctx context.Context, principal application.Principal, input application.SessionInput) (application.SessionView, []application.ConflictWarning, error)
	UpdateSession(ctx context.Context, principal application.Principal, sessionID string, input application.SessionInput, partial bool) (application.SessionView, []application.ConflictWarning, error)
	DeleteSession(ctx context.Context, principal application.Principal, sessionID string) error
	CreateSeries(ctx context.Context, principal application.Principal, input application.SeriesInput) ([]application.SessionView, []application.ConflictWarning, error)
}

// SessionHandler serves the class catalogue.
type SessionHandler struct {
	service   sessionService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	views, err := h.service.ListSessions(r.Context(), buildListParams(r.URL.Query(), principal))
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "failed to list sessions", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionDTOs(views))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	view, err := h.service.GetSession(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionDTO(view))
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, detailBadRequestBody, err)
		return
	}

	view, warnings, err := h.service.CreateSession(r.Context(), principal, req.toInput())
	if err != nil {
		h.log(r.Context(), "Create").WarnContext(r.Context(), "session creation rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionResponse{
		sessionDTO: toSessionDTO(view),
		Warnings:   toWarningDTOs(warnings),
	})
}

// Update serves both PUT, which replaces every editable field, and PATCH.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, detailBadRequestBody, err)
		return
	}

	partial := r.Method == http.MethodPatch
	sessionID := r.PathValue("id")
	view, warnings, err := h.service.UpdateSession(r.Context(), principal, sessionID, req.toInput(), partial)
	if err != nil {
		h.log(r.Context(), "Update", "session_id", sessionID, "partial", partial).WarnContext(r.Context(), "session update rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{
		sessionDTO: toSessionDTO(view),
		Warnings:   toWarningDTOs(warnings),
	})
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteSession(r.Context(), principal, r.PathValue("id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// CreateSeries expands a recurrence rule into individual sessions.
func (h *SessionHandler) CreateSeries(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req seriesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, detailBadRequestBody, err)
		return
	}

	views, warnings, err := h.service.CreateSeries(r.Context(), principal, req.toInput())
	if err != nil {
		h.log(r.Context(), "CreateSeries").WarnContext(r.Context(), "series creation rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, seriesResponse{
		Sessions: toSessionDTOs(views),
		Warnings: toWarningDTOs(warnings),
	})
}

// decodeJSON treats an empty body as an empty object.
func decodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func buildListParams(values url.Values, principal application.Principal) application.ListSessionsParams {
	params := application.ListSessionsParams{
		Principal:       principal,
		Period:          application.ListPeriod(strings.ToLower(strings.TrimSpace(values.Get("period")))),
		PeriodReference: strings.TrimSpace(values.Get("date")),
		FromDate:        strings.TrimSpace(values.Get("from")),
		ToDate:          strings.TrimSpace(values.Get("to")),
		TrainerID:       strings.TrimSpace(values.Get("trainer_id")),
	}
	switch strings.ToLower(strings.TrimSpace(values.Get("booked"))) {
	case "1", "true", "yes":
		params.BookedOnly = true
	}
	return params
}

type sessionRequest struct {
	ActivityType    *string `json:"activity_type"`
	TrainerID       *string `json:"trainer_id"`
	Date            *string `json:"date"`
	Time            *string `json:"time"`
	DurationMinutes *int    `json:"duration_minutes"`
	Capacity        *int    `json:"capacity"`
}

func (r sessionRequest) toInput() application.SessionInput {
	return application.SessionInput{
		ActivityType:    r.ActivityType,
		TrainerID:       r.TrainerID,
		Date:            r.Date,
		StartTime:       r.Time,
		DurationMinutes: r.DurationMinutes,
		Capacity:        r.Capacity,
	}
}

type seriesRequest struct {
	ActivityType    string   `json:"activity_type"`
	TrainerID       string   `json:"trainer_id"`
	Frequency       string   `json:"frequency"`
	Weekdays        []string `json:"weekdays"`
	StartsOn        string   `json:"starts_on"`
	EndsOn          string   `json:"ends_on"`
	Time            string   `json:"time"`
	DurationMinutes *int     `json:"duration_minutes"`
	Capacity        *int     `json:"capacity"`
}

func (r seriesRequest) toInput() application.SeriesInput {
	return application.SeriesInput{
		ActivityType:    r.ActivityType,
		TrainerID:       r.TrainerID,
		Frequency:       r.Frequency,
		Weekdays:        r.Weekdays,
		StartsOn:        r.StartsOn,
		EndsOn:          r.EndsOn,
		StartTime:       r.Time,
		DurationMinutes: r.DurationMinutes,
		Capacity:        r.Capacity,
	}
}

// sessionDTO is the wire shape of a projected session. Attendees holds
// attendee objects for staff, the viewer's own id for a booked member and
// nothing for everyone else.
type sessionDTO struct {
	ID              string `json:"id"`
	ActivityType    string `json:"activity_type"`
	TrainerUsername string `json:"trainer_username"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Capacity        int    `json:"capacity"`
	AttendeesCount  int    `json:"attendees_count"`
	AvailableSlots  int    `json:"available_slots"`
	Booked          bool   `json:"booked"`
	HasStarted      bool   `json:"has_started"`
	Attendees       any    `json:"attendees"`
}

type attendeeDTO struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Attended     *bool  `json:"attended,omitempty"`
	AttendanceID string `json:"attendance_id,omitempty"`
}

type warningDTO struct {
	SessionID            string `json:"session_id"`
	ConflictingSessionID string `json:"conflicting_session_id"`
	Type                 string `json:"type"`
	TrainerID            string `json:"trainer_id"`
}

type sessionResponse struct {
	sessionDTO
	Warnings []warningDTO `json:"warnings,omitempty"`
}

type seriesResponse struct {
	Sessions []sessionDTO `json:"sessions"`
	Warnings []warningDTO `json:"warnings"`
}

func toSessionDTO(view application.SessionView) sessionDTO {
	dto := sessionDTO{
		ID:              view.ID,
		ActivityType:    string(view.ActivityType),
		TrainerUsername: view.TrainerUsername,
		Date:            view.Date,
		Time:            view.StartTime,
		DurationMinutes: view.DurationMinutes,
		Capacity:        view.Capacity,
		AttendeesCount:  view.AttendeesCount,
		AvailableSlots:  view.AvailableSlots,
		Booked:          view.BookedByViewer,
		HasStarted:      view.HasStarted,
	}

	switch view.Audience {
	case application.AudienceStaff:
		attendees := make([]attendeeDTO, 0, len(view.StaffAttendees))
		for _, a := range view.StaffAttendees {
			attendees = append(attendees, attendeeDTO{
				ID:           a.UserID,
				Username:     a.Username,
				Attended:     a.Attended,
				AttendanceID: a.AttendanceID,
			})
		}
		dto.Attendees = attendees
	case application.AudienceBooked:
		dto.Attendees = []string{view.OwnAttendeeID}
	default:
		dto.Attendees = []string{}
	}
	return dto
}

func toSessionDTOs(views []application.SessionView) []sessionDTO {
	dtos := make([]sessionDTO, 0, len(views))
	for _, view := range views {
		dtos = append(dtos, toSessionDTO(view))
	}
	return dtos
}

func toWarningDTOs(warnings []application.ConflictWarning) []warningDTO {
	dtos := make([]warningDTO, 0, len(warnings))
	for _, w := range warnings {
		dtos = append(dtos, warningDTO{
			SessionID:            w.SessionID,
			ConflictingSessionID: w.ConflictingSessionID,
			Type:                 w.Type,
			TrainerID:            w.TrainerID,
		})
	}
	return dtos
}
