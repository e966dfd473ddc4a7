package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeAllocated    = "allocated"
	OutcomeAlreadyPaid  = "already_paid"
	OutcomeInsufficient = "insufficient_inventory"
	OutcomeMismatch     = "payment_mismatch"
	OutcomeNotFound     = "not_found"
	OutcomeConflict     = "transaction_conflict"
	OutcomeError        = "error"
)

// AllocationMetrics records ticket allocation attempts.
type AllocationMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	retries  prometheus.Counter
	tickets  prometheus.Counter
}

// NewAllocationMetrics registers the allocation metrics on the provided registerer.
func NewAllocationMetrics(reg prometheus.Registerer) *AllocationMetrics {
	if reg == nil {
		return &AllocationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "allocation_duration_seconds",
		Help:    "Duration of ticket allocations including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_outcomes_total",
		Help: "Ticket allocations by outcome.",
	}, []string{"outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_transaction_retries_total",
		Help: "Allocation transactions retried after a write conflict.",
	})
	tickets := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_tickets_assigned_total",
		Help: "Ticket numbers committed to paid orders.",
	})
	reg.MustRegister(duration, outcomes, retries, tickets)
	return &AllocationMetrics{
		duration: duration,
		outcomes: outcomes,
		retries:  retries,
		tickets:  tickets,
	}
}

// Observe records one finished allocation.
func (m *AllocationMetrics) Observe(outcome string, duration time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.outcomes.WithLabelValues(label).Inc()
	m.duration.WithLabelValues(label).Observe(duration.Seconds())
}

// IncRetry counts a conflicted transaction that will be retried.
func (m *AllocationMetrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

// AddTickets counts newly assigned ticket numbers.
func (m *AllocationMetrics) AddTickets(n int) {
	if m == nil || m.tickets == nil || n <= 0 {
		return
	}
	m.tickets.Add(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
