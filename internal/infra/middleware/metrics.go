package middleware

import (
	"net/http"
	"time"
)

// RequestObserver receives one observation per served request.
type RequestObserver interface {
	ObserveRequest(method, path string, status int, d time.Duration)
}

// Metrics reports method, path, status and duration of every request.
// Paths are reported as registered, so unknown paths collapse into "other".
func Metrics(obs RequestObserver, knownPaths ...string) func(http.Handler) http.Handler {
	known := make(map[string]struct{}, len(knownPaths))
	for _, p := range knownPaths {
		known[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := r.URL.Path
			if _, ok := known[path]; !ok {
				path = "other"
			}
			obs.ObserveRequest(r.Method, path, sw.status, time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
