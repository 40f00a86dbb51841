// Package http exposes the event board API over net/http.
//
// Routes:
//   - POST /users: self-registration. Body: {"email","display_name","password"}.
//   - GET /users/me, GET /users/me/events: the caller's account and postings.
//   - POST /sessions: login. Response: {"token","expires_at","user"}. The token
//     is an HS256 JWT sent back as "Authorization: Bearer <token>".
//   - DELETE /sessions/current: revokes the session behind the token.
//   - POST /events: creates a posting and its generated lines and rates.
//   - GET /events?lat=&lon=&radius_km=&from=&limit=: public lines nearby.
//   - GET /events/{id}, DELETE /events/{id}: one posting. Non-owners only see
//     public lines.
//   - GET /events/{id}/calendar.ics, GET /events/{id}/export.xlsx: exports.
//   - POST /events/{id}/changes: tracks an update and stores it as a proposal.
//   - GET /changes/{id}, POST /changes/{id}/confirm, POST /changes/{id}/discard.
//
// Errors are JSON bodies {"error","message","details"} where details maps
// request fields to messages.
package http
