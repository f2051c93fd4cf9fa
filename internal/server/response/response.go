// Package response writes the JSON envelope of the server's plain HTTP
// endpoints: {"data": ...} on success, {"error": {...}} on failure.
package response

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope. Exactly one of Data and Error is set.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error describes a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// JSON writes resp with status.
func JSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// OK writes data with 200.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Response{Data: data})
}

// Fail writes an error envelope with status.
func Fail(w http.ResponseWriter, status int, code, message, details string) {
	JSON(w, status, Response{Error: &Error{Code: code, Message: message, Details: details}})
}

// Unauthorized writes 401.
func Unauthorized(w http.ResponseWriter, message, details string) {
	Fail(w, http.StatusUnauthorized, CodeUnauthorized, message, details)
}

// MethodNotAllowed writes 405.
func MethodNotAllowed(w http.ResponseWriter, method string) {
	Fail(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed",
		"Method "+method+" is not supported for this endpoint")
}

// RateLimited writes 429.
func RateLimited(w http.ResponseWriter, details string) {
	Fail(w, http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", details)
}

// Unavailable writes 503, for requests that arrive while the server stops.
func Unavailable(w http.ResponseWriter, details string) {
	Fail(w, http.StatusServiceUnavailable, CodeUnavailable, "Service unavailable", details)
}

// InternalError writes 500 without exposing details.
func InternalError(w http.ResponseWriter) {
	Fail(w, http.StatusInternalServerError, CodeInternal, "Internal server error", "")
}
