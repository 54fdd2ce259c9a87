package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/loanbook/pkg/metrics"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLogger logs method, path, status, duration and remote address for
// every request.
func requestLogger(log *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rw.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
			})
			if rw.status >= http.StatusInternalServerError {
				entry.Warn("request")
				return
			}
			entry.Info("request")
		})
	}
}

type routeKey struct{}

// instrument records request counts and latency by matched route template.
// Requests no route matched are recorded as "unmatched".
func instrument(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := "unmatched"
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), routeKey{}, &route)))
			m.ObserveRequest(r.Method, route, rw.status, time.Since(start))
		})
	}
}

// tagRoute runs inside the router and hands the matched route template back
// to instrument.
func tagRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route, ok := r.Context().Value(routeKey{}).(*string); ok {
			if cur := mux.CurrentRoute(r); cur != nil {
				if tmpl, err := cur.GetPathTemplate(); err == nil {
					*route = tmpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
