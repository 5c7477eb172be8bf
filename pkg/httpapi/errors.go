package httpapi

import (
	"net/http"

	"github.com/stacklok/mcp-aggregator/pkg/errorsx"
	"github.com/stacklok/mcp-aggregator/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error, letting
// handlers stay focused on the happy path.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps fn and converts a returned error into an HTTP
// response: 5xx errors are logged in full and the client gets a generic
// message, 4xx errors are returned verbatim.
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := errorsx.Code(err)
		if code >= http.StatusInternalServerError {
			logger.Errorf("internal server error: %v", err)
			http.Error(w, http.StatusText(code), code)
			return
		}
		http.Error(w, err.Error(), code)
	}
}
