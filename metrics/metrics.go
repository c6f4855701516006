// Package metrics is the instrumentation port for the purchase pipeline.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Counter names.
const (
	PurchaseOutcome = "purchase_outcome"
	PaymentVerified = "payment_verified"
	PaymentRejected = "payment_rejected"
	TransferFailed  = "transfer_failed"
	OracleFallback  = "oracle_fallback"
	OracleCacheHit  = "oracle_cache_hit"
	QuoteIssued     = "quote_issued"
	RPCError        = "rpc_error"
)

// Operation names for latency.
const (
	OpVerify    = "verify_payment"
	OpTransfer  = "transfer_asset"
	OpPurchase  = "purchase"
	OpPriceFeed = "price_feed"
)

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}

// NoopRecorder discards every observation.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
