package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aussiebroadwan/authkit/pkg/autherr"
)

// MaxBodyBytes caps request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// DecodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", autherr.ErrInvalidInput, err)
	}
	return nil
}

// StatusForError maps an error from the auth toolkit to an HTTP status.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, autherr.ErrLedgerUnavailable),
		errors.Is(err, autherr.ErrRepositoryUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, autherr.ErrInsufficientPermissions):
		return http.StatusForbidden
	case errors.Is(err, autherr.ErrPrincipalExists),
		errors.Is(err, autherr.ErrMFAAlreadyEnabled):
		return http.StatusConflict
	case errors.Is(err, autherr.ErrWeakPassword),
		errors.Is(err, autherr.ErrInvalidMFACode),
		errors.Is(err, autherr.ErrMFANotConfigured),
		errors.Is(err, autherr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, autherr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, autherr.ErrAuth):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteError replies with the status and code for err. Internal errors
// never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusForError(err)

	resp := ErrorResponse{Error: autherr.Code(err)}
	var kind *autherr.Error
	switch {
	case errors.As(err, &kind):
		resp.ErrorDescription = kind.Message
	case status == http.StatusBadRequest:
		resp.Error = "invalid_request"
		resp.ErrorDescription = err.Error()
	case status == http.StatusNotFound:
		resp.Error = "not_found"
	default:
		resp.Error = "server_error"
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+resp.Error+`"`)
	}
	WriteJSON(w, status, resp)
}
