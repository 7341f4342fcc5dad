package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// HTTPMetricsMiddleware creates a Gin middleware that records HTTP
// request counts, latency, and in-flight requests.
func HTTPMetricsMiddleware(m Recorder) gin.HandlerFunc {
	// Type assert to concrete Metrics for Prometheus access; any other
	// implementation (NoopMetrics included) gets a lightweight no-op.
	metrics, ok := m.(*Metrics)
	if !ok {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		// Skip the metrics endpoint to avoid self-recording.
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()

		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		path := normalizePath(c.FullPath()) // route pattern, not actual path
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// normalizePath returns the matched route pattern, or "unknown" if gin
// never matched a route (e.g. a 404).
func normalizePath(fullPath string) string {
	if fullPath == "" {
		return "unknown"
	}
	return fullPath
}

// RecordGrantIssued records an authorize-endpoint grant issuance.
func (m *Metrics) RecordGrantIssued(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.GrantsIssuedTotal.WithLabelValues(result).Inc()
	if success {
		m.GrantsActive.Inc()
	}
}

// RecordGrantExchange records a token-endpoint exchange attempt. A
// successful authorization_code exchange consumes the grant.
func (m *Metrics) RecordGrantExchange(grantType, result string) {
	m.GrantExchangesTotal.WithLabelValues(grantType, result).Inc()
	if grantType == "authorization_code" && result == resultSuccess {
		m.GrantsActive.Dec()
	}
}

// RecordTokenIssued records a token minted by a successful exchange.
func (m *Metrics) RecordTokenIssued(
	tokenType, grantType string,
	generationTime time.Duration,
	provider string,
) {
	m.TokensIssuedTotal.WithLabelValues(tokenType, grantType).Inc()
	m.TokenGenerationDuration.WithLabelValues(provider).Observe(generationTime.Seconds())
}

// RecordTokenRefreshed records a refresh_token grant outcome.
func (m *Metrics) RecordTokenRefreshed(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokensRefreshedTotal.WithLabelValues(result).Inc()
}

// RecordTokenRevoked records a token revoked outside of the normal
// exchange flow, such as a refresh token rejected for reuse.
func (m *Metrics) RecordTokenRevoked(reason string) {
	m.TokensRevokedTotal.WithLabelValues(reason).Inc()
}

// RecordClientAuthFailure records a failed client authentication
// attempt on the token endpoint.
func (m *Metrics) RecordClientAuthFailure(reason string) {
	m.ClientAuthFailuresTotal.WithLabelValues(reason).Inc()
}

// SetActiveGrantsCount sets the gauge of unredeemed, unexpired grants,
// for periodic updates driven by a store count.
func (m *Metrics) SetActiveGrantsCount(count int) {
	m.GrantsActive.Set(float64(count))
}

// RecordDatabaseQueryError records a store error encountered while
// collecting metrics.
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}

// String formats the metrics for logging.
func (m *Metrics) String() string {
	return "Metrics{Grants: active, Tokens: active, HTTP: enabled}"
}
