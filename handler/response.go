package handler

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "fnkit/errors"
	"fnkit/redact"
)

// Response is the normalized result of an invocation. Adapters translate it
// into the provider's response shape.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body,omitempty"`

	// Metadata is not sent to clients; middlewares use it to annotate the
	// result (trace ids, timings).
	Metadata map[string]string `json:"-"`
	Duration time.Duration     `json:"-"`
}

// JSON creates a response with a JSON encoded body.
func JSON(status int, v any) (Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Response{}, apperrors.Internal("failed to encode response body", err)
	}
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}, nil
}

// OK creates a 200 JSON response.
func OK(v any) (Response, error) {
	return JSON(http.StatusOK, v)
}

// Text creates a plain text response.
func Text(status int, body string) Response {
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       []byte(body),
	}
}

// NoContent creates a 204 response.
func NoContent() Response {
	return Response{StatusCode: http.StatusNoContent}
}

// Status returns the status code, treating zero as 200.
func (r Response) Status() int {
	if r.StatusCode == 0 {
		return http.StatusOK
	}
	return r.StatusCode
}

// SetHeader adds or updates a response header.
func (r *Response) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
}

// ErrorToResponse maps err to a response with the error's status hint and a
// redacted {"error": {...}} body. Unrecognized errors become a generic 500.
func ErrorToResponse(err error, redactor *redact.Redactor) Response {
	if redactor == nil {
		redactor = redact.New()
	}

	status := apperrors.StatusOf(err)
	body, mErr := redactor.Marshal(apperrors.ToEnvelope(err))
	if mErr != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"An internal error occurred"}}`)
	}

	resp := Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
	if status == http.StatusUnauthorized {
		resp.Headers["WWW-Authenticate"] = "Bearer"
	}
	return resp
}
