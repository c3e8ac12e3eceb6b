package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/raid-frame-finder/internal/dens"
	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
	"github.com/MJE43/raid-frame-finder/internal/store"
	"github.com/MJE43/raid-frame-finder/internal/worker"
)

var (
	errScript     = errors.New("script rejected")
	errValidation = errors.New("invalid request")
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
	cause     error
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause adds the underlying cause error
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	eb.cause = err
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps a domain error to its HTTP status and error type
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidSeed):
		return http.StatusBadRequest, ErrTypeInvalidSeed
	case errors.Is(err, engine.ErrInvalidEncounter), errors.Is(err, dens.ErrUnknownSpecies):
		return http.StatusBadRequest, ErrTypeInvalidEncounter
	case errors.Is(err, scan.ErrUnsatisfiable):
		return http.StatusBadRequest, ErrTypeUnsatisfiable
	case errors.Is(err, scan.ErrInvalidFilter):
		return http.StatusBadRequest, ErrTypeInvalidFilter
	case errors.Is(err, scan.ErrInvalidRange):
		return http.StatusBadRequest, ErrTypeInvalidRange
	case errors.Is(err, errScript):
		return http.StatusBadRequest, ErrTypeScript
	case errors.Is(err, engine.ErrUnknownValue), errors.Is(err, dens.ErrInvalidSettings),
		errors.Is(err, store.ErrInvalidKey), errors.Is(err, store.ErrInvalidValue),
		errors.Is(err, errValidation):
		return http.StatusBadRequest, ErrTypeValidation
	case errors.Is(err, dens.ErrDenNotFound), errors.Is(err, dens.ErrEntryNotFound):
		return http.StatusNotFound, ErrTypeDenNotFound
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, ErrTypeTimeout
	case errors.Is(err, worker.ErrClosed):
		return http.StatusServiceUnavailable, ErrTypeServiceUnavailable
	default:
		return http.StatusInternalServerError, ErrTypeInternal
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *log.Logger
	audit  *AuditLogger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *log.Logger, audit *AuditLogger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
		audit:  audit,
	}
}

// HandleError classifies err and writes the matching response
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var engineErr EngineError
	if errors.As(err, &engineErr) {
		status, _ := classifyType(engineErr.Type)
		eh.logError(r, engineErr, status)
		eh.writeErrorResponse(w, status, engineErr)
		return
	}

	status, errType := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	engineErr = NewError(errType, message).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		WithCause(err).
		Build()

	eh.logError(r, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// classifyType returns the status for an already built error
func classifyType(errType string) (int, string) {
	switch GetErrorCategory(errType) {
	case CategoryValidation:
		return http.StatusBadRequest, errType
	case CategoryLookup:
		return http.StatusNotFound, errType
	}
	switch errType {
	case ErrTypeSuperseded:
		return http.StatusConflict, errType
	case ErrTypeTimeout:
		return http.StatusRequestTimeout, errType
	case ErrTypeServiceUnavailable:
		return http.StatusServiceUnavailable, errType
	}
	return http.StatusInternalServerError, errType
}

// HandleDecodeError reports a body that could not be decoded. Typed
// fields (seeds, enums, nature lists) surface their own error types.
func (eh *ErrorHandler) HandleDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := classify(err); status != http.StatusInternalServerError {
		eh.HandleError(w, r, err)
		return
	}
	eh.HandleValidationError(w, r, "body", fmt.Sprintf("invalid JSON: %v", err))
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	requestID := middleware.GetReqID(r.Context())

	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(requestID).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.audit.LogSecurityEvent(
		requestID,
		"validation_failure",
		message,
		map[string]interface{}{
			"field": field,
			"path":  r.URL.Path,
		},
		r.RemoteAddr,
	)

	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// logError logs the error with appropriate level and context
func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)

	logLevel := "ERROR"
	if status < 500 {
		logLevel = "WARN"
	}

	eh.logger.Printf(
		"error_occurred level=%s type=%s category=%s status=%d request_id=%s method=%s path=%s message=%q context=%+v",
		logLevel, engineErr.Type, category, status, engineErr.RequestID, r.Method, r.URL.Path, engineErr.Message, engineErr.Context,
	)
}

// writeErrorResponse writes the error response as JSON
func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		eh.logger.Printf("error_encode_failed type=%s err=%v", engineErr.Type, err)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())

				eh.logger.Printf(
					"panic_recovered request_id=%s path=%s method=%s panic=%v",
					requestID, r.URL.Path, r.Method, rvr,
				)

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("panic", fmt.Sprintf("%v", rvr)).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()

				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
