package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/hack-terminal/internal/games"
	"github.com/MJE43/hack-terminal/internal/macro"
	"github.com/MJE43/hack-terminal/internal/store"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records the underlying error message
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps a domain error to its HTTP status and error type.
func classify(err error) (int, string) {
	var engineErr EngineError
	switch {
	case errors.As(err, &engineErr):
		return http.StatusBadRequest, engineErr.Type
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound
	case errors.Is(err, games.ErrUnknownKind):
		return http.StatusBadRequest, ErrTypeGameNotFound
	case errors.Is(err, macro.ErrUnknownMacro):
		return http.StatusNotFound, ErrTypeMacroNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrTypeTimeout
	default:
		return http.StatusInternalServerError, ErrTypeInternal
	}
}

// handleError converts err to an EngineError response and logs it.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error, fields map[string]any) {
	status, errType := classify(err)

	b := NewError(errType, err.Error()).WithRequestID(middleware.GetReqID(r.Context()))
	var known EngineError
	if errors.As(err, &known) {
		for k, v := range known.Context {
			b.WithContext(k, v)
		}
	}
	for k, v := range fields {
		b.WithContext(k, v)
	}
	engineErr := b.Build()

	level := s.logger.Warn
	if status >= http.StatusInternalServerError {
		level = s.logger.Error
	}
	level("request_failed",
		"type", engineErr.Type,
		"category", string(GetErrorCategory(engineErr.Type)),
		"status", status,
		"path", r.URL.Path,
		"request_id", engineErr.RequestID,
		"err", err,
	)
	s.writeJSON(w, status, engineErr)
}

// writeError writes a structured error response for a known error type
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, errType, message string, fields map[string]any) {
	b := NewError(errType, message).WithRequestID(middleware.GetReqID(r.Context()))
	for k, v := range fields {
		b.WithContext(k, v)
	}
	s.writeJSON(w, status, b.Build())
}
