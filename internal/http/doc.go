// Package http exposes the booking service over JSON.
//
// The router mounts the following endpoints, each reachable with or without
// a trailing slash:
//   - POST /api/users/register, GET /api/users/me: account registration and the
//     caller's profile ({"id","username","is_staff","is_superuser"}).
//   - POST /api/token, /api/token/refresh, /api/token/revoke: JWT login,
//     refresh token rotation and logout. Pairs are {"access","refresh"}.
//   - GET/POST /api/sessions, POST /api/sessions/series and
//     GET/PUT/PATCH/DELETE /api/sessions/{id}: the class catalogue. Sessions are
//     projected per viewer; see sessionDTO in session_handler.go.
//   - POST /api/sessions/{id}/book, /remove_attendee, /mark_attendance: booking
//     actions answering {"status": ...}.
//   - GET/POST /api/notes, DELETE /api/notes/{id}: private notes.
//   - GET /api/health and GET /metrics: health checks and Prometheus exposition.
//
// Every route except registration, the token endpoints, health and metrics
// requires an "Authorization: Bearer <access>" header. Errors are answered as
// {"detail": ..., "errors": {field: message}}.
package http
