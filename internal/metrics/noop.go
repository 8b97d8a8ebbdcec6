package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder. All methods are
// empty, providing zero overhead when metrics are disabled.
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordInvoiceCreated(result string)                 {}
func (n *NoopMetrics) RecordPaymentEvent(result string)                   {}
func (n *NoopMetrics) RecordTokenMinted(success bool)                     {}
func (n *NoopMetrics) RecordTokenValidation(result string)                {}
func (n *NoopMetrics) RecordDownload(result string)                       {}
func (n *NoopMetrics) RecordRequestsExpired(count int64)                  {}
func (n *NoopMetrics) RecordPaymentConfirmationLatency(d time.Duration)   {}
