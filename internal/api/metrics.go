package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Claim outcome labels.
const (
	statusSuccess           = "success"
	statusBadRequest        = "bad_request"
	statusNotConfigured     = "not_configured"
	statusInsufficientFunds = "insufficient_funds"
	statusFailed            = "failed"
)

type Metrics struct {
	Claims          *prometheus.CounterVec
	TreasuryBalance prometheus.Gauge
}

// NewMetrics creates the backend metrics and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karma_claims_total",
			Help: "Karma claim requests by outcome.",
		}, []string{"status"}),
		TreasuryBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "karma_treasury_balance_eth",
			Help: "Last observed treasury balance in native units.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Claims, m.TreasuryBalance)
	}
	return m
}

func (m *Metrics) IncClaim(status string) {
	if m == nil || m.Claims == nil {
		return
	}

	m.Claims.WithLabelValues(status).Inc()
}

func (m *Metrics) SetTreasuryBalance(balance decimal.Decimal) {
	if m == nil || m.TreasuryBalance == nil {
		return
	}

	m.TreasuryBalance.Set(balance.InexactFloat64())
}
