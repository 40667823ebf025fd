package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/domain"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Error codes carried in APIResponse.Code.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeAlreadyExists   = "already_exists"
	CodeConflict        = "conflict"
	CodeEmptyPost       = "empty_post"
	CodePostTooLong     = "post_too_long"
	CodeInvalidImage    = "invalid_image"
	CodeImageTooLarge   = "image_too_large"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Checked in order; the first sentinel matched by errors.Is wins.
var errorMappings = []errorMapping{
	{domain.ErrEmptyPost, http.StatusBadRequest, CodeEmptyPost},
	{domain.ErrPostTooLong, http.StatusBadRequest, CodePostTooLong},
	{domain.ErrInvalidImage, http.StatusBadRequest, CodeInvalidImage},
	{domain.ErrInvalidArgument, http.StatusBadRequest, CodeInvalidArgument},
	{domain.ErrImageTooLarge, http.StatusRequestEntityTooLarge, CodeImageTooLarge},
	{domain.ErrUnauthorized, http.StatusForbidden, CodeForbidden},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrAlreadyExists, http.StatusConflict, CodeAlreadyExists},
	{domain.ErrConflict, http.StatusConflict, CodeConflict},
	{domain.ErrUnavailable, http.StatusServiceUnavailable, CodeUnavailable},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, CodeImageTooLarge
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusClientClosed marks requests whose client disconnected first.
const statusClientClosed = 499

func success(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{Success: true, Data: data})
}

// fail writes err with its mapped status. Internal errors are logged and
// their details withheld from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if errors.Is(err, context.Canceled) {
			// Client went away; nobody reads the body.
			w.WriteHeader(statusClientClosed)
			return
		}
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, APIResponse{Success: false, Error: msg, Code: code})
}
