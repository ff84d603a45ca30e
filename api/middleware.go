package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trbojevicstefan/taskwise/observability"
)

// routeMetrics records a RouteMetric for every request. The route is the
// matched chi pattern so IDs do not explode label cardinality.
func (a *API) routeMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		err := a.recorder.RecordRoute(r.Context(), observability.RouteMetric{
			Route:      route,
			Method:     r.Method,
			StatusCode: status,
			UserID:     r.Header.Get(UserHeader),
			Duration:   time.Since(start),
			RecordedAt: time.Now().UTC(),
		})
		if err != nil {
			a.logger.Warn("record route metric failed", "route", route, "error", err)
		}
	})
}
