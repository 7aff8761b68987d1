// Package httpx is a convenience wrapper around the http.HandlerFunc type that
// allows us to return errors from our handlers.
// see https://blog.questionable.services/article/http-handler-error-handling-revisited/ for more details.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-json-experiment/json"
)

// Error is a convenience function for returning an error with an associated HTTP status code.
func Error(code int, err error) error {
	return &StatusError{code, err}
}

// StatusError represents an error with an associated HTTP status code.
type StatusError struct {
	Code int
	Err  error
}

func (se *StatusError) Error() string {
	return se.Err.Error()
}

func (se *StatusError) Unwrap() error {
	return se.Err
}

// Status returns the HTTP status code.
func (se *StatusError) Status() int {
	return se.Code
}

// StatusOf returns the status code carried by err, or 500.
func StatusOf(err error) int {
	if se := new(StatusError); errors.As(err, &se) {
		return se.Status()
	}
	return http.StatusInternalServerError
}

// HandlerFunc adapts a function that returns an error to an http.HandlerFunc.
// The response body only ever carries the status text, the error itself is logged.
func HandlerFunc[E any](envFn func(r *http.Request) *E, fn func(*E, http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(envFn(r), w, r)
		if err == nil {
			return
		}
		code := StatusOf(err)
		level := slog.LevelInfo
		if code >= 500 {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "http", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(code)
		json.MarshalFull(w, map[string]any{
			"error": http.StatusText(code),
		})
	}
}
