// Package http exposes verification sessions over a JSON API built on echo.
//
// Every route under /api/v1/sessions maps onto one session.Store operation
// and answers with the resulting Projection. Failures carry a stable body:
//
//	{"error": {"code": "INVALID_STATE", "message": "approve: not permitted while BLOCKED"}}
//
// so clients can tell a refused approval from a successful one without
// inspecting the projection.
package http
