package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics surface the core and its HTTP handlers record
// against. Init returns either a Prometheus-backed implementation or a
// no-op, so callers never branch on whether metrics are enabled.
type Recorder interface {
	// RecordGrantIssued records an authorization code (or other grant)
	// minted by the authorize endpoint.
	RecordGrantIssued(success bool)

	// RecordGrantExchange records a token endpoint exchange attempt.
	// grantType is "authorization_code" or "refresh_token"; result is
	// "success" or the OAuth error code returned to the client.
	RecordGrantExchange(grantType, result string)

	// RecordTokenIssued records an access or refresh token minted by a
	// successful exchange.
	RecordTokenIssued(tokenType, grantType string, generationTime time.Duration, provider string)

	// RecordTokenRefreshed records a refresh_token grant outcome.
	RecordTokenRefreshed(success bool)

	// RecordTokenRevoked records a refresh token rejected for reuse, or
	// a grant deleted after single use.
	RecordTokenRevoked(reason string)

	// RecordClientAuthFailure records a failed client authentication
	// attempt on the token endpoint, by failure reason.
	RecordClientAuthFailure(reason string)

	// SetActiveGrantsCount records the current number of unredeemed,
	// unexpired grants, for periodic gauge updates.
	SetActiveGrantsCount(count int)

	// RecordDatabaseQueryError records a store error encountered while
	// collecting metrics.
	RecordDatabaseQueryError(operation string)

	String() string
}

var _ Recorder = (*Metrics)(nil)

// Metrics is the Prometheus-backed Recorder.
type Metrics struct {
	GrantsIssuedTotal   *prometheus.CounterVec
	GrantExchangesTotal *prometheus.CounterVec
	GrantsActive        prometheus.Gauge

	TokensIssuedTotal       *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokenGenerationDuration *prometheus.HistogramVec

	ClientAuthFailuresTotal *prometheus.CounterVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag. Uses sync.Once so
// Prometheus metrics are only registered once per process even if Init
// is called more than once (e.g. from tests).
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		GrantsIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_grants_issued_total",
				Help: "Total number of authorization grants issued by the authorize endpoint",
			},
			[]string{"result"}, // success, error
		),
		GrantExchangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_grant_exchanges_total",
				Help: "Total number of token endpoint exchange attempts",
			},
			[]string{"grant_type", "result"},
		),
		GrantsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "oauth_grants_active",
				Help: "Current number of unredeemed, unexpired grants",
			},
		),

		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"token_type", "grant_type"},
		),
		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_refreshed_total",
				Help: "Total number of refresh_token grant outcomes",
			},
			[]string{"result"}, // success, error
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"reason"}, // reuse, single_use
		),
		TokenGenerationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_token_generation_duration_seconds",
				Help:    "Time taken to mint a token via the configured minter",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"}, // local, http_api
		),

		ClientAuthFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_client_auth_failures_total",
				Help: "Total number of failed token endpoint client authentication attempts",
			},
			[]string{"reason"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request latency in seconds",
				Buckets: []float64{
					0.001, 0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
				},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),

		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors during metric collection",
			},
			[]string{"operation"},
		),
	}
}

// GetMetrics returns the global metrics instance, initializing it with
// default settings if Init has not already run.
//
// Deprecated: use Init(true) instead.
func GetMetrics() *Metrics {
	if defaultMetrics == nil {
		once.Do(func() {
			defaultMetrics = initMetrics()
		})
	}
	return defaultMetrics
}
