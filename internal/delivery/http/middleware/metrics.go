package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/user/a11y-audit-service/pkg/metrics"
)

// Metrics records request counts and latency per route. Paths are labelled
// with the matched chi pattern so ids in the URL do not create new series.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		labels := []string{r.Method, routeLabel(r), statusLabel(ww.Status())}
		metrics.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
	})
}

func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusLabel maps a handler that never wrote a header to the implicit 200.
func statusLabel(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	return strconv.Itoa(code)
}
