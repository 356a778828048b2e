package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes int64 = 1 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail" example:"User not found"`
}

// LoggerFromContext returns base annotated with the request context, if any.
func LoggerFromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = zap.NewNop().Sugar()
	}
	info, ok := GetRequestInfo(ctx)
	if !ok {
		return base
	}
	return base.With(info.Fields()...)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"detail": message} and logs the failure with the
// request context. Server errors log err at error level; client errors at
// debug level.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string, err error, logger *zap.SugaredLogger) {
	log := LoggerFromContext(r.Context(), logger)
	if status >= http.StatusInternalServerError {
		if err != nil {
			log.Errorw(message, "error", err.Error(), "status_code", status)
		} else {
			log.Errorw(message, "status_code", status)
		}
	} else {
		log.Debugw(message, "status_code", status, "error", errString(err))
	}

	WriteJSON(w, status, ErrorResponse{Detail: message})
}

// WriteInternalError reports err as a generic 500.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error, logger *zap.SugaredLogger) {
	WriteError(w, r, http.StatusInternalServerError, "Internal server error", err, logger)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// DecodeJSON decodes a JSON request body of at most MaxBodyBytes into dst.
// On failure it writes the error response (422, or 413 for oversized
// bodies) and returns the error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.SugaredLogger) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	decoder := json.NewDecoder(r.Body)

	err := decoder.Decode(dst)
	if err == nil {
		return nil
	}

	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesError):
		WriteError(w, r, http.StatusRequestEntityTooLarge, "Request body too large", err, logger)
	case errors.Is(err, io.EOF):
		WriteError(w, r, http.StatusUnprocessableEntity, "Request body is required", err, logger)
	case errors.As(err, &syntaxError):
		WriteError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid JSON syntax at byte offset %d", syntaxError.Offset), err, logger)
	case errors.As(err, &unmarshalTypeError):
		WriteError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid type for field '%s': expected %s", unmarshalTypeError.Field, unmarshalTypeError.Type), err, logger)
	default:
		WriteError(w, r, http.StatusUnprocessableEntity, "Invalid JSON body", err, logger)
	}
	return err
}
