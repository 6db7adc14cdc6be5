package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type contextKey string

const correlationKey contextKey = "correlation_id"

func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = generateCorrelationID()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), correlationKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateCorrelationID() string {
	return uuid.Must(uuid.NewV4()).String()
}

func correlationIDFromContext(ctx context.Context) string {
	if value, ok := ctx.Value(correlationKey).(string); ok {
		return value
	}
	return ""
}

// observeMiddleware logs each request and records its latency.
func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		routeName := "unknown"
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				routeName = tmpl
			}
		}
		labels := prometheus.Labels{"route": routeName, "method": r.Method, "code": strconv.Itoa(m.Code)}
		s.httpMetrics.With(labels).Observe(m.Duration.Seconds())
		s.requestCounter.With(labels).Inc()

		s.cfg.Logger.Info("http_request",
			zap.String("method", r.Method),
			zap.String("route", routeName),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Int64("bytes", m.Written),
			zap.Duration("duration", m.Duration),
			zap.String("request_id", correlationIDFromContext(r.Context())),
		)
	})
}
