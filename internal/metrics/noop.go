package metrics

import "time"

// NoopMetrics is a no-operation Recorder. All methods are empty,
// giving zero overhead when metrics are disabled.
type NoopMetrics struct{}

var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder.
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordGrantIssued(success bool)               {}
func (n *NoopMetrics) RecordGrantExchange(grantType, result string) {}

func (n *NoopMetrics) RecordTokenIssued(
	tokenType, grantType string,
	generationTime time.Duration,
	provider string,
) {
}

func (n *NoopMetrics) RecordTokenRefreshed(success bool)         {}
func (n *NoopMetrics) RecordTokenRevoked(reason string)          {}
func (n *NoopMetrics) RecordClientAuthFailure(reason string)     {}
func (n *NoopMetrics) SetActiveGrantsCount(count int)            {}
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}

func (n *NoopMetrics) String() string { return "NoopMetrics{}" }
