// Package metrics exposes Prometheus counters for the HTTP surface, OAuth
// exchanges, provider fetches and assistant turns.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK           = "ok"
	OutcomeNotConnected = "not_connected"
	OutcomeReauth       = "needs_reauth"
	OutcomeError        = "error"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	oauthExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_oauth_exchanges_total",
			Help: "Authorization code exchanges by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	providerFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_provider_fetches_total",
			Help: "Provider data fetches by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_token_refreshes_total",
			Help: "Refresh-and-retry attempts after a provider rejected a token",
		},
		[]string{"provider"},
	)

	assistantTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_assistant_turns_total",
			Help: "Assistant turns by AI provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	assistantCardsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_assistant_cards_total",
			Help: "Cards returned to users",
		},
	)
)

func ObserveOAuthExchange(provider, outcome string) {
	oauthExchangesTotal.WithLabelValues(provider, outcome).Inc()
}

func ObserveProviderFetch(provider, outcome string) {
	providerFetchesTotal.WithLabelValues(provider, outcome).Inc()
}

func ObserveTokenRefresh(provider string) {
	tokenRefreshesTotal.WithLabelValues(provider).Inc()
}

// ObserveAssistantTurn records one finished turn and the cards it produced.
func ObserveAssistantTurn(provider, outcome string, cards int) {
	assistantTurnsTotal.WithLabelValues(provider, outcome).Inc()
	if cards > 0 {
		assistantCardsTotal.Add(float64(cards))
	}
}

// Middleware records request counts and latencies labelled by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern must run after routing so chi has filled in the pattern.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
