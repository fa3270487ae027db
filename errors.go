package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// ConfigurationError reports an invalid Application or descriptor setup.
// It is surfaced at registration time, before any request is dispatched.
type ConfigurationError struct {
	Detail string
}

// Error returns the configuration problem.
func (e *ConfigurationError) Error() string { return "configuration: " + e.Detail }

// Configf returns a formatted ConfigurationError.
func Configf(format string, args ...any) error {
	return &ConfigurationError{Detail: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown resource or method.
type NotFoundError struct {
	Path string
}

// Error returns the missing path.
func (e *NotFoundError) Error() string { return "not found: " + e.Path }

// StatusCode returns 404.
func (e *NotFoundError) StatusCode() int { return http.StatusNotFound }

// UnsupportedMediaTypeError reports that no registered codec can serve the
// requested (type, media type) combination.
type UnsupportedMediaTypeError struct {
	MediaTypes []string
}

// Error returns the unsatisfiable media types.
func (e *UnsupportedMediaTypeError) Error() string {
	return "no codec for media types [" + strings.Join(e.MediaTypes, ", ") + "]"
}

// StatusCode returns 415.
func (e *UnsupportedMediaTypeError) StatusCode() int { return http.StatusUnsupportedMediaType }

// UnsupportedResultError reports a method result that is neither void, a
// Response, nor writable by any registered writer.
type UnsupportedResultError struct {
	Type string
}

// Error returns the unserializable result type.
func (e *UnsupportedResultError) Error() string { return "unsupported result type " + e.Type }

// StatusCode returns 501.
func (e *UnsupportedResultError) StatusCode() int { return http.StatusNotImplemented }

// ValidationError reports a constraint violation on a request parameter.
type ValidationError struct {
	Param   string
	Message string
	Value   any
}

// Error returns the parameter and violation message.
func (e *ValidationError) Error() string { return e.Param + ": " + e.Message }

// StatusCode returns 400.
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// NotAuthorizedError reports a failed authentication or authorization check.
// Anonymous callers get 401 with a challenge; authenticated callers that lack
// a required role get 403.
type NotAuthorizedError struct {
	Authenticated bool
	Reason        string
}

// Error returns the denial reason.
func (e *NotAuthorizedError) Error() string { return "not authorized: " + e.Reason }

// StatusCode returns 401 for anonymous callers and 403 otherwise.
func (e *NotAuthorizedError) StatusCode() int {
	if e.Authenticated {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// ServerError reports an unexpected failure during binding or invocation,
// annotated with the issuing resource and method.
type ServerError struct {
	Issuer string
	Method string
	Err    error
}

// Error returns the annotated failure.
func (e *ServerError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Issuer, e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServerError) Unwrap() error { return e.Err }

// StatusCode returns 500.
func (e *ServerError) StatusCode() int { return http.StatusInternalServerError }

// Problem is the JSON error body written for failed dispatches.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ErrorStatus extracts the HTTP status code from an error. Returns
// http.StatusInternalServerError if the error does not implement StatusCoder.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
