package metrics

import "github.com/prometheus/client_golang/prometheus"

// Admission outcomes.
const (
	OutcomeAdmitted       = "admitted"
	OutcomeExhausted      = "exhausted"
	OutcomeNotUnlocked    = "not_unlocked"
	OutcomeDegraded       = "degraded"
	OutcomeBillingApplied = "applied"
	OutcomeBillingDup     = "duplicate"
	OutcomeBillingStale   = "stale"
	OutcomeCreditSpent    = "spent"
	OutcomeCreditShort    = "insufficient"
)

// EntitlementMetrics tracks admission decisions, recorded consumption and
// billing event application.
type EntitlementMetrics struct {
	admissions    *prometheus.CounterVec
	recorded      *prometheus.CounterVec
	recordRetries prometheus.Counter
	released      prometheus.Counter
	billingEvents *prometheus.CounterVec
	creditSpend   *prometheus.CounterVec
}

func NewEntitlementMetrics(reg prometheus.Registerer) *EntitlementMetrics {
	if reg == nil {
		return &EntitlementMetrics{}
	}
	m := &EntitlementMetrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlements",
			Name:      "admissions_total",
			Help:      "Admission decisions by outcome and funding source.",
		}, []string{"outcome", "source"}),
		recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlements",
			Name:      "usage_recorded_total",
			Help:      "Usage records written by funding source.",
		}, []string{"source"}),
		recordRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlements",
			Name:      "usage_record_retries_total",
			Help:      "Retried usage record writes.",
		}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlements",
			Name:      "admissions_released_total",
			Help:      "Admissions released without consumption.",
		}),
		billingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "events_total",
			Help:      "Billing events by type and outcome.",
		}, []string{"type", "outcome"}),
		creditSpend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "spend_total",
			Help:      "Credit spend attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.admissions, m.recorded, m.recordRetries, m.released, m.billingEvents, m.creditSpend)
	return m
}

func (m *EntitlementMetrics) IncAdmission(outcome, source string) {
	if m == nil || m.admissions == nil {
		return
	}
	m.admissions.WithLabelValues(normalizeLabel(outcome), normalizeLabel(source)).Inc()
}

func (m *EntitlementMetrics) IncRecorded(source string) {
	if m == nil || m.recorded == nil {
		return
	}
	m.recorded.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *EntitlementMetrics) IncRecordRetry() {
	if m == nil || m.recordRetries == nil {
		return
	}
	m.recordRetries.Inc()
}

func (m *EntitlementMetrics) IncReleased() {
	if m == nil || m.released == nil {
		return
	}
	m.released.Inc()
}

func (m *EntitlementMetrics) IncBillingEvent(eventType, outcome string) {
	if m == nil || m.billingEvents == nil {
		return
	}
	m.billingEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *EntitlementMetrics) IncCreditSpend(outcome string) {
	if m == nil || m.creditSpend == nil {
		return
	}
	m.creditSpend.WithLabelValues(normalizeLabel(outcome)).Inc()
}
