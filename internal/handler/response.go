package handler

// RESPONSE HELPERS:
// Every error response from the API has the same shape:
//
//	{"error": "invalid_credentials", "message": "Invalid email or password"}
//	{"error": "validation_error", "message": "email must be a valid email address", "field": "email"}
//
// "error" is machine-readable and stable; "message" is for humans.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/mlvision/internal/apperror"
	"github.com/sakif/mlvision/internal/logger"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

var validate = newValidator()

// newValidator reports struct fields by their JSON names so "field" in an
// error body matches what the client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; after that they are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// categoryStatus maps an apperror category to its HTTP status and the
// fallback machine code used when the error carries none.
var categoryStatus = []struct {
	category error
	status   int
	code     string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrUpstream, http.StatusBadGateway, "upstream_error"},
	{apperror.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
}

// WriteError maps a domain error to an HTTP status and sends it.
//
// The status comes from the category of the outermost *apperror.AppError in
// the chain. An AppError may carry a cause from another category (an
// InvalidOAuthState wrapping an InvalidToken is a 400, not a 401), so the
// chain is not searched with errors.Is.
//
// Errors that are not AppErrors become a generic 500; their text may contain
// SQL or file paths and is only logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, c := range categoryStatus {
			if appErr.Err != c.category {
				continue
			}
			code := appErr.Code
			if code == "" {
				code = c.code
			}
			if c.status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer`)
			}
			if c.status >= http.StatusInternalServerError {
				logger.FromContext(r.Context()).WarnContext(r.Context(), "upstream or dependency failure",
					slog.String("code", code),
					slog.String("error", err.Error()),
				)
			}
			writeJSON(w, c.status, ErrorResponse{
				Error:   code,
				Message: appErr.Message,
				Field:   appErr.Field,
			})
			return
		}
	}

	logger.FromContext(r.Context()).ErrorContext(r.Context(), "internal error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a single JSON object from the body into dst and runs
// struct validation on it. Failures come back as validation AppErrors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body is required")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("", "request body is too large")
		default:
			return apperror.ValidationFailed("", "invalid JSON body")
		}
	}
	if dec.More() {
		return apperror.ValidationFailed("", "request body must contain a single JSON object")
	}

	return validateStruct(dst)
}

func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperror.ValidationFailed(fe.Field(), fe.Field()+" "+msgForTag(fe))
	}
	return apperror.ValidationFailed("", err.Error())
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}
