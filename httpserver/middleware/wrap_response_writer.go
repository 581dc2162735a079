/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// WrapResponseWriter is a proxy around an http.ResponseWriter that allows you to hook
// into various parts of the response process. In addition to the hooks provided by
// chi's writer it accounts the total time spent writing the response body.
type WrapResponseWriter interface {
	chimiddleware.WrapResponseWriter

	// ElapsedTime returns the total time spent writing the response body.
	ElapsedTime() time.Duration
}

// NewWrapResponseWriter wraps an http.ResponseWriter, returning a proxy that allows you to
// hook into various parts of the response process.
func NewWrapResponseWriter(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	return &timedResponseWriter{WrapResponseWriter: chimiddleware.NewWrapResponseWriter(rw, protoMajor)}
}

type timedResponseWriter struct {
	chimiddleware.WrapResponseWriter
	elapsed time.Duration
}

func (w *timedResponseWriter) Write(b []byte) (int, error) {
	start := time.Now()
	n, err := w.WrapResponseWriter.Write(b)
	w.elapsed += time.Since(start)
	return n, err
}

// ElapsedTime returns the total time spent writing the response body.
func (w *timedResponseWriter) ElapsedTime() time.Duration {
	return w.elapsed
}
