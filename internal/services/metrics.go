package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the ledger and webhook counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	postingsTotal      *prometheus.CounterVec
	postedAmountTotal  *prometheus.CounterVec
	reversalsTotal     *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	webhooksTotal      *prometheus.CounterVec
	reviewFlagsTotal   prometheus.Counter
	gateKeysPurged     prometheus.Counter
	gateLastPurgedUnix prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		postingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletpay",
				Subsystem: "ledger",
				Name:      "postings_total",
				Help:      "Balanced ledger pairs written, partitioned by scenario.",
			},
			[]string{"scenario"},
		),
		postedAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletpay",
				Subsystem: "ledger",
				Name:      "posted_amount_total",
				Help:      "Sum of posted amounts in major currency units, partitioned by scenario.",
			},
			[]string{"scenario"},
		),
		reversalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletpay",
				Subsystem: "ledger",
				Name:      "reversals_total",
				Help:      "Compensating pairs written, partitioned by reversed scenario.",
			},
			[]string{"scenario"},
		),
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletpay",
				Subsystem: "state_machine",
				Name:      "transitions_total",
				Help:      "Transition requests partitioned by kind, event and result.",
			},
			[]string{"kind", "event", "result"},
		),
		webhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletpay",
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Inbound gateway webhooks partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		reviewFlagsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "walletpay",
				Subsystem: "webhook",
				Name:      "review_flags_total",
				Help:      "Webhooks pushed to the manual review queue.",
			},
		),
		gateKeysPurged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "walletpay",
				Subsystem: "idempotency",
				Name:      "keys_purged_total",
				Help:      "Expired idempotency keys deleted.",
			},
		),
		gateLastPurgedUnix: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "walletpay",
				Subsystem: "idempotency",
				Name:      "last_purge_unix",
				Help:      "Unix time of the most recent idempotency key purge.",
			},
		),
	}
}

func (m *Metrics) observePosting(scenario string, amount float64) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(scenario).Inc()
	m.postedAmountTotal.WithLabelValues(scenario).Add(amount)
}

func (m *Metrics) observeReversal(scenario string) {
	if m == nil {
		return
	}
	m.reversalsTotal.WithLabelValues(scenario).Inc()
}

func (m *Metrics) observeTransition(kind TransactionKind, event Event, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(kind), string(event), result).Inc()
}

func (m *Metrics) observeWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeReviewFlag() {
	if m == nil {
		return
	}
	m.reviewFlagsTotal.Inc()
}

// ObservePurge records one run of the idempotency key cleanup.
func (m *Metrics) ObservePurge(deleted int64, unix int64) {
	if m == nil {
		return
	}
	m.gateKeysPurged.Add(float64(deleted))
	m.gateLastPurgedUnix.Set(float64(unix))
}
