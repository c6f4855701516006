package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorderWith(reg)

	r.IncCounter(PurchaseOutcome, map[string]string{"network": "polygon", "outcome": "Completed"})
	r.IncCounter(PurchaseOutcome, map[string]string{"network": "polygon", "outcome": "Completed"})
	r.IncCounter(PurchaseOutcome, map[string]string{"network": "base", "outcome": "AlreadySold"})
	r.ObserveLatency(OpVerify, 300*time.Millisecond, map[string]string{"network": "polygon"})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.counters.WithLabelValues(PurchaseOutcome, "polygon", "Completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.counters.WithLabelValues(PurchaseOutcome, "base", "AlreadySold")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.histogram))
}

func TestOrNoop(t *testing.T) {
	assert.IsType(t, NoopRecorder{}, OrNoop(nil))
}
