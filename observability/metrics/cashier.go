package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"pixcashier/core/events"
)

// CashierMetrics tracks settlement activity for the prometheus endpoint.
type CashierMetrics struct {
	cashIns          prometheus.Counter
	cashOutRequests  prometheus.Counter
	cashOutConfirms  prometheus.Counter
	cashOutReversals prometheus.Counter
	cashbackSent     prometheus.Counter
	cashbackBypassed prometheus.Counter
	pendingCashOuts  prometheus.Gauge
}

var (
	cashierOnce     sync.Once
	cashierRegistry *CashierMetrics
)

// Cashier returns the process-wide settlement metrics registry.
func Cashier() *CashierMetrics {
	cashierOnce.Do(func() {
		cashierRegistry = &CashierMetrics{
			cashIns: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cashier_cashins_total",
				Help: "Count of completed cash-in operations.",
			}),
			cashOutRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cashier_cashout_requests_total",
				Help: "Count of opened cash-out cycles.",
			}),
			cashOutConfirms: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cashier_cashout_confirms_total",
				Help: "Count of cash-outs settled by burning escrowed funds.",
			}),
			cashOutReversals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cashier_cashout_reversals_total",
				Help: "Count of cash-outs cancelled and refunded.",
			}),
			cashbackSent: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cashback_payouts_total",
				Help: "Count of cashback payouts transferred from the reserve.",
			}),
			cashbackBypassed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cashback_bypassed_total",
				Help: "Count of cashback payouts skipped due to reserve shortfall.",
			}),
			pendingCashOuts: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cashier_pending_cashouts",
				Help: "Number of cash-out cycles currently awaiting settlement.",
			}),
		}
		prometheus.MustRegister(
			cashierRegistry.cashIns,
			cashierRegistry.cashOutRequests,
			cashierRegistry.cashOutConfirms,
			cashierRegistry.cashOutReversals,
			cashierRegistry.cashbackSent,
			cashierRegistry.cashbackBypassed,
			cashierRegistry.pendingCashOuts,
		)
	})
	return cashierRegistry
}

// Emit implements events.Emitter so the registry can sit in the emission
// fan-out alongside the audit archive.
func (m *CashierMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	switch evt.EventType() {
	case events.TypeCashIn:
		m.cashIns.Inc()
	case events.TypeCashOutRequest:
		m.cashOutRequests.Inc()
		m.pendingCashOuts.Inc()
	case events.TypeCashOutConfirm:
		m.cashOutConfirms.Inc()
		m.pendingCashOuts.Dec()
	case events.TypeCashOutReversal:
		m.cashOutReversals.Inc()
		m.pendingCashOuts.Dec()
	case events.TypeCashbackSent:
		m.cashbackSent.Inc()
	case events.TypeCashbackBypassed:
		m.cashbackBypassed.Inc()
	}
}
