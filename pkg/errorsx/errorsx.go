// Package errorsx carries HTTP status codes alongside plain errors, so
// handlers can return a single error value and let a decorator pick the
// response status.
package errorsx

import (
	"errors"
	"net/http"
)

// coded is an error annotated with an HTTP status code.
type coded struct {
	err  error
	code int
}

func (c *coded) Error() string { return c.err.Error() }
func (c *coded) Unwrap() error { return c.err }

// WithCode annotates err with an HTTP status code.
func WithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &coded{err: err, code: code}
}

// Code extracts the HTTP status code from err, defaulting to 500 if none
// was attached.
func Code(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var c *coded
	if errors.As(err, &c) {
		return c.code
	}
	return http.StatusInternalServerError
}

// NotFound is a convenience wrapper for 404 errors.
func NotFound(err error) error { return WithCode(err, http.StatusNotFound) }

// BadRequest is a convenience wrapper for 400 errors.
func BadRequest(err error) error { return WithCode(err, http.StatusBadRequest) }
