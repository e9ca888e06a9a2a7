// This file implements the builder for the API's JSON envelope. Every
// response carries "success"; payloads go under "data" and failures
// under "message".

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"trendai/internal/amqp"
	"trendai/internal/core"
	"trendai/internal/log"
	"trendai/internal/middleware/trace"
	"trendai/internal/services"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	envelope   Envelope
	headers    map[string]string
}

// NewJSONResponse creates a successful 200 response.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		envelope:   Envelope{Success: true},
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.envelope.Data = v
	return b
}

func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	b.envelope.Message = msg
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// RequestID stamps the trace ID taken from ctx, if any.
func (b *JSONResponseBuilder) RequestID(ctx context.Context) *JSONResponseBuilder {
	b.envelope.RequestID = trace.GetRequestID(ctx)
	return b
}

// Write sends the built response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.envelope)
}

// ErrorResponse creates a failed response with the given status.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	b := NewJSONResponse().Status(statusCode).Message(message)
	b.envelope.Success = false
	return b
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func ServiceUnavailableError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}

func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, retry later")
}

// FromError maps service errors to a status code. Unknown errors are logged
// and hidden behind a generic 500.
func FromError(ctx context.Context, err error) *JSONResponseBuilder {
	var paramErr *ParamError
	switch {
	case errors.As(err, &paramErr):
		return BadRequestError(paramErr.Error()).RequestID(ctx)
	case errors.Is(err, core.ErrInvalidYear),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidFollowerRange),
		errors.Is(err, core.ErrUnknownDimension):
		return BadRequestError(err.Error()).RequestID(ctx)
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error()).RequestID(ctx)
	case errors.Is(err, services.ErrNoSnapshotStore),
		errors.Is(err, services.ErrRefreshUnavailable),
		errors.Is(err, amqp.ErrCircuitOpen):
		return ServiceUnavailableError(err.Error()).RequestID(ctx)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse(http.StatusGatewayTimeout, "upstream timed out").RequestID(ctx)
	}

	log.FromContext(ctx).ErrorContext(ctx, "Request failed", log.FieldError, err)
	return InternalServerError("internal error").RequestID(ctx)
}
