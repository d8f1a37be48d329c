// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, RFC 7807 problem
// documents, parameter parsing, validation, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//
// Problem documents:
//
//	httputil.WriteUnauthorized(w, r, "access token has expired")
//	httputil.WriteForbidden(w, r, "permission denied")
//	httputil.WriteValidationProblem(w, r, map[string][]string{
//		"email": {"must be a valid email address"},
//	})
//
// # Request Parsing
//
// JSON parsing:
//
//	var req loginRequest
//	if !httputil.ParseJSONOrProblem(w, r, &req) {
//		return // Problem response already written
//	}
//
// Path parameters:
//
//	id, ok := httputil.ParsePathInt64OrProblem(w, r, "id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware,
//		httputil.CORSMiddleware(origins),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Authentication and request ID middleware
//   - pkg/api: Maps domain errors onto problem documents
package httputil
