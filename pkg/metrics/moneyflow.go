package metrics

import "github.com/prometheus/client_golang/prometheus"

// Capture outcomes reported by the payment state machine.
const (
	CaptureOutcomePaid           = "paid"
	CaptureOutcomeGatewayError   = "gateway_error"
	CaptureOutcomeAmountMismatch = "amount_mismatch"
	CaptureOutcomeDeclined       = "declined"
	CaptureOutcomeSoldRace       = "sold_race"
	CaptureOutcomeCancelFailed   = "cancel_failed"
	CaptureOutcomeCommitFailed   = "commit_failed"
)

// MoneyFlowMetrics counts payment captures, refunds and seller settlements.
type MoneyFlowMetrics struct {
	captures      *prometheus.CounterVec
	refunds       *prometheus.CounterVec
	settlements   prometheus.Counter
	settledAmount prometheus.Counter
	checkoutDeals prometheus.Histogram
}

// NewMoneyFlowMetrics registers the money-flow collectors on reg. A nil
// registerer yields a no-op recorder.
func NewMoneyFlowMetrics(reg prometheus.Registerer) *MoneyFlowMetrics {
	if reg == nil {
		return &MoneyFlowMetrics{}
	}
	m := &MoneyFlowMetrics{
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_payment_capture_total",
			Help: "Payment capture attempts by outcome.",
		}, []string{"outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealflow_deal_refund_total",
			Help: "Seller refund decisions by result.",
		}, []string{"result"}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_settlement_total",
			Help: "Wallet logs settled to sellers.",
		}),
		settledAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealflow_settlement_amount_total",
			Help: "Minor currency units paid out to sellers.",
		}),
		checkoutDeals: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealflow_checkout_deals",
			Help:    "Deals created per checkout.",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		}),
	}
	reg.MustRegister(m.captures, m.refunds, m.settlements, m.settledAmount, m.checkoutDeals)
	return m
}

func (m *MoneyFlowMetrics) IncCapture(outcome string) {
	if m == nil || m.captures == nil {
		return
	}
	m.captures.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *MoneyFlowMetrics) IncRefund(result string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveSettlement records one payout of amount minor units.
func (m *MoneyFlowMetrics) ObserveSettlement(amount int64) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.Inc()
	if amount > 0 {
		m.settledAmount.Add(float64(amount))
	}
}

func (m *MoneyFlowMetrics) ObserveCheckout(deals int) {
	if m == nil || m.checkoutDeals == nil {
		return
	}
	m.checkoutDeals.Observe(float64(deals))
}
