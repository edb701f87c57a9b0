// Package api exposes the auth, identity and settings operations over JSON/HTTP.
//
// Handlers decode strictly, call exactly one component operation per step and
// map error kinds from apperr to status codes. Error bodies always have the
// shape {"error": {"code": "...", "message": "..."}}.
package api
