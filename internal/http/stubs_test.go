package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/gymflex/internal/application"
)

var (
	staffPrincipal  = application.Principal{UserID: "staff-1", Username: "coach", IsStaff: true}
	memberPrincipal = application.Principal{UserID: "member-1", Username: "alice"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAuthenticator accepts "staff" and "member" as access tokens.
type stubAuthenticator struct {
	err error
}

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (application.Principal, error) {
	if s.err != nil {
		return application.Principal{}, s.err
	}
	switch token {
	case "staff":
		return staffPrincipal, nil
	case "member":
		return memberPrincipal, nil
	default:
		return application.Principal{}, application.ErrTokenInvalid
	}
}

type stubSessionService struct {
	views      []application.SessionView
	view       application.SessionView
	warnings   []application.ConflictWarning
	err        error
	lastParams application.ListSessionsParams
	lastInput  application.SessionInput
	lastSeries application.SeriesInput
	lastID     string
	partial    bool
}

func (s *stubSessionService) ListSessions(ctx context.Context, params application.ListSessionsParams) ([]application.SessionView, error) {
	s.lastParams = params
	return s.views, s.err
}

func (s *stubSessionService) GetSession(ctx context.Context, principal application.Principal, sessionID string) (application.SessionView, error) {
	s.lastID = sessionID
	return s.view, s.err
}

func (s *stubSessionService) CreateSession(ctx context.Context, principal application.Principal, input application.SessionInput) (application.SessionView, []application.ConflictWarning, error) {
	s.lastInput = input
	return s.view, s.warnings, s.err
}

func (s *stubSessionService) UpdateSession(ctx context.Context, principal application.Principal, sessionID string, input application.SessionInput, partial bool) (application.SessionView, []application.ConflictWarning, error) {
	s.lastID = sessionID
	s.lastInput = input
	s.partial = partial
	return s.view, s.warnings, s.err
}

func (s *stubSessionService) DeleteSession(ctx context.Context, principal application.Principal, sessionID string) error {
	s.lastID = sessionID
	return s.err
}

func (s *stubSessionService) CreateSeries(ctx context.Context, principal application.Principal, input application.SeriesInput) ([]application.SessionView, []application.ConflictWarning, error) {
	s.lastSeries = input
	return s.views, s.warnings, s.err
}

type stubBookingService struct {
	status        application.BookingStatus
	result        application.AttendanceResult
	err           error
	lastPrincipal application.Principal
	lastSession   string
	lastTarget    string
	lastAttended  bool
}

func (s *stubBookingService) ToggleBooking(ctx context.Context, principal application.Principal, sessionID string) (application.BookingStatus, error) {
	s.lastPrincipal = principal
	s.lastSession = sessionID
	return s.status, s.err
}

func (s *stubBookingService) RemoveAttendee(ctx context.Context, principal application.Principal, sessionID, targetUserID string) (application.BookingStatus, error) {
	s.lastPrincipal = principal
	s.lastSession = sessionID
	s.lastTarget = targetUserID
	return s.status, s.err
}

func (s *stubBookingService) MarkAttendance(ctx context.Context, principal application.Principal, sessionID, attendanceID string, attended bool) (application.AttendanceResult, error) {
	s.lastPrincipal = principal
	s.lastSession = sessionID
	s.lastTarget = attendanceID
	s.lastAttended = attended
	return s.result, s.err
}

type stubUserService struct {
	user       application.User
	err        error
	lastParams application.RegisterParams
}

func (s *stubUserService) Register(ctx context.Context, params application.RegisterParams) (application.User, error) {
	s.lastParams = params
	return s.user, s.err
}

func (s *stubUserService) Me(ctx context.Context, principal application.Principal) (application.User, error) {
	if s.err != nil {
		return application.User{}, s.err
	}
	return application.User{ID: principal.UserID, Username: principal.Username, IsStaff: principal.IsStaff}, nil
}

type stubAuthService struct {
	pair        application.TokenPair
	err         error
	revoked     string
	lastRefresh string
}

func (s *stubAuthService) IssueTokens(ctx context.Context, username, password string) (application.TokenPair, error) {
	return s.pair, s.err
}

func (s *stubAuthService) RefreshTokens(ctx context.Context, refreshToken string) (application.TokenPair, error) {
	s.lastRefresh = refreshToken
	return s.pair, s.err
}

func (s *stubAuthService) RevokeToken(ctx context.Context, refreshToken string) error {
	s.revoked = refreshToken
	return s.err
}

type stubNoteService struct {
	notes   []application.Note
	err     error
	deleted string
}

func (s *stubNoteService) ListNotes(ctx context.Context, principal application.Principal) ([]application.Note, error) {
	return s.notes, s.err
}

func (s *stubNoteService) CreateNote(ctx context.Context, principal application.Principal, title string) (application.Note, error) {
	if s.err != nil {
		return application.Note{}, s.err
	}
	return application.Note{ID: "note-1", AuthorID: principal.UserID, Title: title}, nil
}

func (s *stubNoteService) DeleteNote(ctx context.Context, principal application.Principal, noteID string) error {
	s.deleted = noteID
	return s.err
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(ctx context.Context) error {
	return s.err
}

type routerDeps struct {
	users    *stubUserService
	auth     *stubAuthService
	sessions *stubSessionService
	bookings *stubBookingService
	notes    *stubNoteService
}

func newTestRouter(t *testing.T) (http.Handler, *routerDeps) {
	t.Helper()
	deps := &routerDeps{
		users:    &stubUserService{},
		auth:     &stubAuthService{},
		sessions: &stubSessionService{},
		bookings: &stubBookingService{},
		notes:    &stubNoteService{},
	}
	logger := discardLogger()
	router := NewRouter(RouterConfig{
		Users:       NewUserHandler(deps.users, logger),
		Auth:        NewAuthHandler(deps.auth, logger),
		Sessions:    NewSessionHandler(deps.sessions, logger),
		Bookings:    NewBookingHandler(deps.bookings, logger),
		Notes:       NewNoteHandler(deps.notes, logger),
		Health:      NewHealthHandler(map[string]Pinger{"database": stubPinger{}}, logger),
		RequireAuth: RequireAuth(stubAuthenticator{}, logger),
		Middleware:  []func(http.Handler) http.Handler{RequestLogger(logger)},
	})
	return router, deps
}

func doRequest(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}
