package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maxxit_http_requests_total",
			Help: "HTTP requests by handler, method and status code",
		},
		[]string{"handler", "method", "code"},
	)

	httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maxxit_http_errors_total",
			Help: "HTTP responses with a 5xx status code",
		},
		[]string{"handler", "method"},
	)

	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maxxit_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"handler", "method"},
	)

	agentsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maxxit_agents_generated_total",
			Help: "Agent identities generated for new wallets",
		},
	)

	linkCodesIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maxxit_link_codes_issued_total",
			Help: "One-time link codes issued",
		},
	)

	linkConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maxxit_link_confirmations_total",
			Help: "Link confirmations by outcome (linked|unknown_code|error)",
		},
		[]string{"outcome"},
	)

	setupsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maxxit_setups_completed_total",
			Help: "Onboarding flows finalized",
		},
	)

	walletGauges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "maxxit_wallets",
			Help: "Wallet records by onboarding stage (total|linked|setup_complete)",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpErrors, httpLatency)
	prometheus.MustRegister(agentsGenerated, linkCodesIssued, linkConfirmations, setupsCompleted)
	prometheus.MustRegister(walletGauges)
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	httpRequests.WithLabelValues(handler, method, code).Inc()
	if status >= 500 {
		httpErrors.WithLabelValues(handler, method).Inc()
	}
	httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// IncAgentGenerated counts a freshly provisioned agent identity.
func IncAgentGenerated() { agentsGenerated.Inc() }

// IncLinkCodeIssued counts an issued link code.
func IncLinkCodeIssued() { linkCodesIssued.Inc() }

// IncLinkConfirmation counts a confirmation attempt by outcome.
func IncLinkConfirmation(outcome string) { linkConfirmations.WithLabelValues(outcome).Inc() }

// IncSetupCompleted counts a finalized onboarding flow.
func IncSetupCompleted() { setupsCompleted.Inc() }

// SetWalletStats publishes the current wallet-stage gauges.
func SetWalletStats(total, linked, setupComplete int) {
	walletGauges.WithLabelValues("total").Set(float64(total))
	walletGauges.WithLabelValues("linked").Set(float64(linked))
	walletGauges.WithLabelValues("setup_complete").Set(float64(setupComplete))
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
