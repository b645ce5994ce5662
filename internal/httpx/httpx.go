// Package httpx holds the JSON and error conventions shared by the HTTP handlers.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/logger"
)

const maxBodyBytes = 1 << 20

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code domainerr.Code) int {
	switch code {
	case domainerr.CodeInvalidID, domainerr.CodeInvalidSerialNumber, domainerr.CodeValidation, domainerr.CodeInvalidStatus:
		return http.StatusBadRequest
	case domainerr.CodeNotFound:
		return http.StatusNotFound
	case domainerr.CodeAccessDenied:
		return http.StatusForbidden
	case domainerr.CodeConflict, domainerr.CodeInvalidTransition:
		return http.StatusConflict
	case domainerr.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON encodes v with the given status.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnKV(ctx, "write response", "error", err)
	}
}

// WriteError renders err as {"code","message"}. Non-domain errors are
// rendered as INTERNAL_ERROR without their text.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	derr, ok := domainerr.As(err)
	if !ok {
		logger.ErrorKV(ctx, "unhandled error reached the transport", "error", err)
		derr = domainerr.Internal(err)
	}
	WriteJSON(ctx, w, StatusFor(derr.Code), derr)
}

// DecodeJSON reads a single JSON object into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domainerr.New(domainerr.CodeValidation, "request body is empty")
		}
		return domainerr.Newf(domainerr.CodeValidation, "malformed request body: %v", err)
	}
	return nil
}
