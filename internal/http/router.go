package http

import (
	"net/http"
	"strings"
)

// RouterConfig collects the handlers mounted by NewRouter. Nil handlers leave
// their routes unregistered.
type RouterConfig struct {
	Users    *UserHandler
	Auth     *AuthHandler
	Sessions *SessionHandler
	Bookings *BookingHandler
	Notes    *NoteHandler
	Health   *HealthHandler
	Metrics  http.Handler
	// RequireAuth guards every route that needs an identity.
	RequireAuth func(http.Handler) http.Handler
	Middleware  []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	authed := cfg.RequireAuth
	if authed == nil {
		authed = func(next http.Handler) http.Handler { return next }
	}
	public := func(h http.HandlerFunc) http.Handler { return h }
	private := func(h http.HandlerFunc) http.Handler { return authed(h) }

	if cfg.Users != nil {
		route(mux, "POST /api/users/register", public(cfg.Users.Register))
		route(mux, "GET /api/users/me", private(cfg.Users.Me))
	}

	if cfg.Auth != nil {
		route(mux, "POST /api/token", public(cfg.Auth.IssueTokens))
		route(mux, "POST /api/token/refresh", public(cfg.Auth.RefreshTokens))
		route(mux, "POST /api/token/revoke", public(cfg.Auth.RevokeToken))
	}

	if cfg.Sessions != nil {
		route(mux, "GET /api/sessions", private(cfg.Sessions.List))
		route(mux, "POST /api/sessions", private(cfg.Sessions.Create))
		route(mux, "POST /api/sessions/series", private(cfg.Sessions.CreateSeries))
		route(mux, "GET /api/sessions/{id}", private(cfg.Sessions.Get))
		route(mux, "PUT /api/sessions/{id}", private(cfg.Sessions.Update))
		route(mux, "PATCH /api/sessions/{id}", private(cfg.Sessions.Update))
		route(mux, "DELETE /api/sessions/{id}", private(cfg.Sessions.Delete))
	}

	if cfg.Bookings != nil {
		route(mux, "POST /api/sessions/{id}/book", private(cfg.Bookings.Book))
		route(mux, "POST /api/sessions/{id}/remove_attendee", private(cfg.Bookings.RemoveAttendee))
		route(mux, "POST /api/sessions/{id}/mark_attendance", private(cfg.Bookings.MarkAttendance))
	}

	if cfg.Notes != nil {
		route(mux, "GET /api/notes", private(cfg.Notes.List))
		route(mux, "POST /api/notes", private(cfg.Notes.Create))
		route(mux, "DELETE /api/notes/{id}", private(cfg.Notes.Delete))
	}

	if cfg.Health != nil {
		route(mux, "GET /api/health", public(cfg.Health.Check))
	}

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

// route registers pattern with and without a trailing slash. The "{$}"
// anchor keeps the slash form from matching deeper paths.
func route(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, h)
	mux.Handle(strings.TrimSuffix(pattern, "/")+"/{$}", h)
}
