package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/mkurtis/warden/pkg/contextkeys"
	"github.com/mkurtis/warden/pkg/observability"
)

// ProblemContentType is the media type for RFC 7807 problem documents
const ProblemContentType = "application/problem+json"

// problemTypeBase prefixes the type slug of every problem document
const problemTypeBase = "https://warden.dev/problems/"

// Problem is an RFC 7807 problem document. All API error responses use
// this shape so clients can handle failures uniformly.
type Problem struct {
	Type     string              `json:"type"`
	Title    string              `json:"title"`
	Status   int                 `json:"status"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	TraceID  string              `json:"trace_id,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// NewProblem creates a problem document with the given status, type slug and title
func NewProblem(status int, slug, title string) *Problem {
	return &Problem{
		Type:   problemTypeBase + slug,
		Title:  title,
		Status: status,
	}
}

// WithDetail sets the human-readable detail text
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithErrors attaches per-field validation errors
func (p *Problem) WithErrors(errors map[string][]string) *Problem {
	p.Errors = errors
	return p
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteProblem writes a problem document, filling in the instance path and
// trace correlation from the request. The request may be nil.
func WriteProblem(w http.ResponseWriter, r *http.Request, p *Problem) {
	if r != nil {
		if p.Instance == "" {
			p.Instance = r.URL.Path
		}
		if p.TraceID == "" {
			p.TraceID = observability.TraceIDFromContext(r.Context())
		}
		if p.TraceID == "" {
			p.TraceID = contextkeys.GetRequestID(r.Context())
		}
	}

	w.Header().Set("Content-Type", ProblemContentType)
	w.WriteHeader(p.Status)
	json.NewEncoder(w).Encode(p)
}

// WriteBadRequest writes a 400 problem document
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, NewProblem(http.StatusBadRequest, "bad-request", "Bad Request").WithDetail(detail))
}

// WriteUnauthorized writes a 401 problem document
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="warden"`)
	WriteProblem(w, r, NewProblem(http.StatusUnauthorized, "unauthenticated", "Unauthenticated").WithDetail(detail))
}

// WriteForbidden writes a 403 problem document
func WriteForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, NewProblem(http.StatusForbidden, "permission-denied", "Permission Denied").WithDetail(detail))
}

// WriteNotFound writes a 404 problem document
func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, NewProblem(http.StatusNotFound, "not-found", "Not Found").WithDetail(detail))
}

// WriteConflict writes a 409 problem document
func WriteConflict(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, NewProblem(http.StatusConflict, "conflict", "Conflict").WithDetail(detail))
}

// WriteValidationProblem writes a 422 problem document with per-field errors
func WriteValidationProblem(w http.ResponseWriter, r *http.Request, errors map[string][]string) {
	WriteProblem(w, r, NewProblem(http.StatusUnprocessableEntity, "validation-failed", "Validation Failed").
		WithDetail("one or more fields failed validation").
		WithErrors(errors))
}

// WriteTooManyRequests writes a 429 problem document
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, NewProblem(http.StatusTooManyRequests, "rate-limited", "Too Many Requests").WithDetail(detail))
}

// WriteInternalError writes a 500 problem document. The underlying error is
// never exposed to the client, only logged.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error) {
	if r != nil && err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("internal server error")
	}
	WriteProblem(w, r, NewProblem(http.StatusInternalServerError, "internal", "Internal Server Error").
		WithDetail("an unexpected error occurred"))
}

// WriteServiceUnavailable writes a 503 problem document
func WriteServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, NewProblem(http.StatusServiceUnavailable, "unavailable", "Service Unavailable").WithDetail(detail))
}
