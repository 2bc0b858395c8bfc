// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON responses so every
// handler writes status, headers and body the same way.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fintrack/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Payload sets the value encoded as the response body.
func (b *JSONResponseBuilder) Payload(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)

	if b.payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(b.payload); err != nil {
		slog.Error("Failed to encode JSON response", "error", err, "status_code", b.statusCode)
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields []core.FieldError `json:"fields,omitempty"`
}

type messageBody struct {
	Message     string            `json:"message"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
	Removed     *bool             `json:"removed,omitempty"`
}

// ErrorResponse creates a standard `{"error": ...}` response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Payload(errorBody{Error: message})
}

// ValidationErrorResponse lists every rejected field.
func ValidationErrorResponse(verr *core.ValidationError) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(http.StatusBadRequest).
		Payload(errorBody{Error: verr.Error(), Fields: verr.Fields})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError(retryAfter time.Duration) *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again in "+strconv.Itoa(int(retryAfter.Seconds()))+"s")
}

// CreatedResponse reports a newly added transaction.
func CreatedResponse(t core.Transaction) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/transactions/"+strconv.FormatInt(t.ID, 10)).
		Payload(messageBody{Message: "Transaction added", Transaction: &t})
}

// DeletedResponse reports the outcome of a delete; absent ids are not errors.
func DeletedResponse(removed bool) *JSONResponseBuilder {
	msg := "Transaction deleted"
	if !removed {
		msg = "Transaction not found"
	}
	return NewJSONResponse().Payload(messageBody{Message: msg, Removed: &removed})
}
