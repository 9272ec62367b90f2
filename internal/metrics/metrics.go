package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the game collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BetsSettled    *prometheus.CounterVec
	BetsRejected   *prometheus.CounterVec
	RoundOutcomes  *prometheus.CounterVec
	SettleDuration prometheus.Histogram
	PublishErrors  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BetsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinflip_bets_settled_total",
			Help: "settled bets by result",
		}, []string{"result"}),
		BetsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinflip_bets_rejected_total",
			Help: "rejected bets by reason",
		}, []string{"reason"}),
		RoundOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinflip_round_outcomes_total",
			Help: "announced round outcomes by side",
		}, []string{"side"}),
		SettleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coinflip_settle_duration_seconds",
			Help:    "time spent in the account read-modify-write",
			Buckets: prometheus.DefBuckets,
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinflip_settlement_publish_errors_total",
			Help: "settlement events that failed to publish",
		}),
	}
	reg.MustRegister(m.BetsSettled, m.BetsRejected, m.RoundOutcomes, m.SettleDuration, m.PublishErrors)
	return m
}

func (m *Metrics) ObserveSettled(won bool, took time.Duration) {
	if m == nil {
		return
	}
	result := "lose"
	if won {
		result = "win"
	}
	m.BetsSettled.WithLabelValues(result).Inc()
	m.SettleDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.BetsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveOutcome(side string) {
	if m == nil {
		return
	}
	m.RoundOutcomes.WithLabelValues(side).Inc()
}

func (m *Metrics) ObservePublishError() {
	if m == nil {
		return
	}
	m.PublishErrors.Inc()
}
