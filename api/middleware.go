package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/shutter-network/SealedBidRFP/log"
	"github.com/shutter-network/SealedBidRFP/metrics"
)

type contextKey string

// RequestIDContextKey carries the per-request UUID assigned by the
// metrics middleware.
const RequestIDContextKey = contextKey("request_id")

// normalizeEndpoint removes all unique identifiers from the URL in order to
// make it possible to group the Prometheus metrics nicely.
func normalizeEndpoint(url string) string {
	var nels []string

	els := strings.Split(url, "/")
	for _, e := range els {
		// All unique IDs that we use are integers or hex blobs, so we can
		// just cut everything that's too long or looks like an int here.
		isTooLong := len(e) >= 32
		isInt := len(e) > 0 && strings.IndexFunc(e, func(c rune) bool { return c < '0' || c > '9' }) == -1
		if isTooLong || isInt {
			nels = append(nels, "*")
		} else {
			nels = append(nels, e)
		}
	}

	return strings.Join(nels, "/")
}

// statusRecorder captures the final HTTP status code of a request.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// MetricsMiddleware measures the start and end of each request, as well
// as other useful request information. It should be used as the
// outermost middleware, so it can
// - set a requestID and make it available to all handlers and
// - observe the final HTTP status code at the end of the request.
func MetricsMiddleware(m metrics.RequestMetrics, logger log.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Pre-work and initial logging.
			requestID := uuid.New()
			logger.Info("starting request",
				"endpoint", r.URL.Path,
				"request_id", requestID,
			)
			t := time.Now()
			metricName := normalizeEndpoint(r.URL.Path)
			timer := m.RequestTimer(metricName)

			// Serve the request.
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(
				context.WithValue(r.Context(), RequestIDContextKey, requestID),
			))

			// Observe results and log/record them.
			latency := time.Since(t)
			logger.Info("ending request",
				"query_path", r.URL.Path,
				"query_params", r.URL.RawQuery,
				"request_id", requestID,
				"latency", latency,
				"latency_bin", binQueryLatency(latency),
				"status_code", recorder.status,
			)

			statusTxt := "failure"
			if recorder.status >= 200 && recorder.status < 400 {
				statusTxt = "success"
			} else if recorder.status >= 400 && recorder.status < 500 {
				statusTxt = "failure_4xx"
			}
			m.RequestCounter(metricName, statusTxt).Inc()
			timer.ObserveDuration()
		})
	}
}

// Bin request durations to make it easier to search
// for slow queries in the logs.
func binQueryLatency(t time.Duration) string {
	switch {
	case t < 100*time.Millisecond:
		return "<100ms"
	case t < 300*time.Millisecond:
		return "100-300ms"
	case t < 500*time.Millisecond:
		return "300-500ms"
	case t < 1000*time.Millisecond:
		return "500-1000ms"
	default:
		return ">1000ms"
	}
}

// CorsMiddleware allows browser frontends on other origins to drive the
// workflows. POST requires answering OPTIONS preflight requests, so this
// has to be the outermost handler to run.
var CorsMiddleware func(http.Handler) http.Handler = cors.New(cors.Options{
	AllowedMethods: []string{
		http.MethodGet,
		http.MethodPost,
	},
	AllowedHeaders:   []string{"Content-Type"},
	AllowCredentials: false,
}).Handler
