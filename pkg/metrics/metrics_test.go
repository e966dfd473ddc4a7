package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestAllocationMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAllocationMetrics(reg)
	m.Observe(OutcomeAllocated, 40*time.Millisecond)
	m.Observe(OutcomeAllocated, 10*time.Millisecond)
	m.Observe(OutcomeInsufficient, time.Millisecond)
	m.IncRetry()
	m.IncRetry()
	m.AddTickets(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "allocation_outcomes_total", "outcome", OutcomeAllocated); err != nil {
		t.Fatalf("fetch allocated: %v", err)
	} else if got != 2 {
		t.Fatalf("expected allocated=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "allocation_outcomes_total", "outcome", OutcomeInsufficient); err != nil {
		t.Fatalf("fetch insufficient: %v", err)
	} else if got != 1 {
		t.Fatalf("expected insufficient=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "allocation_duration_seconds", "outcome", OutcomeAllocated); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
	if got := fetchPlainCounter(t, mfs, "allocation_transaction_retries_total"); got != 2 {
		t.Fatalf("expected retries=2, got %f", got)
	}
	if got := fetchPlainCounter(t, mfs, "allocation_tickets_assigned_total"); got != 3 {
		t.Fatalf("expected tickets=3, got %f", got)
	}
}

func TestOutboxMetricsLabelsTerminalFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("order_paid")
	m.IncFailed("order_paid", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_published_total", "event_type", "order_paid"); err != nil || got != 1 {
		t.Fatalf("expected published=1, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_publish_failures_total", "terminal", "true"); err != nil || got != 1 {
		t.Fatalf("expected terminal failure=1, got %f err=%v", got, err)
	}
}

func TestHTTPMetricsLabelsRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("POST", "/api/v1/raffles/{raffleId}/orders", 201, 5*time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "route", "/api/v1/raffles/{raffleId}/orders"); err != nil || got != 1 {
		t.Fatalf("expected order route count=1, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "route", "unmatched"); err != nil || got != 1 {
		t.Fatalf("expected unmatched count=1, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "http_request_duration_seconds", "method", "POST"); err != nil || got <= 0 {
		t.Fatalf("expected POST latency > 0, got %f err=%v", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var alloc *AllocationMetrics
	alloc.Observe(OutcomeAllocated, time.Second)
	alloc.IncRetry()
	alloc.AddTickets(1)

	unregistered := NewAllocationMetrics(nil)
	unregistered.Observe(OutcomeConflict, time.Second)

	var outbox *OutboxMetrics
	outbox.IncPublished("x")
	outbox.IncFailed("x", false)

	var httpMetrics *HTTPMetrics
	httpMetrics.Observe("GET", "/", 200, time.Second)

	var cron *CronJobMetrics
	cron.ObserveDuration("x", time.Second)
	cron.IncSuccess("x")
	cron.SetReconciliationPending(3)
}

func TestCronJobMetricsSplitsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.IncSuccess("outbox-retention")
	m.IncSuccess("outbox-retention")
	m.IncFailure("")
	m.ObserveDuration("outbox-retention", 20*time.Millisecond)
	m.SetReconciliationPending(4)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "cron_job_runs_total")
	if mf == nil {
		t.Fatal("cron_job_runs_total missing")
	}
	var success, failure float64
	for _, metric := range mf.GetMetric() {
		switch {
		case matchesLabel(metric.GetLabel(), "result", "success") && matchesLabel(metric.GetLabel(), "job", "outbox-retention"):
			success = metric.GetCounter().GetValue()
		case matchesLabel(metric.GetLabel(), "result", "failure") && matchesLabel(metric.GetLabel(), "job", "unknown"):
			failure = metric.GetCounter().GetValue()
		}
	}
	if success != 2 || failure != 1 {
		t.Fatalf("expected success=2 failure=1, got %f/%f", success, failure)
	}
	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "outbox-retention"); err != nil || got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f err=%v", got, err)
	}
	gauge := findMetricFamily(mfs, "orders_reconciliation_pending")
	if gauge == nil || gauge.GetMetric()[0].GetGauge().GetValue() != 4 {
		t.Fatalf("expected reconciliation gauge 4")
	}
}

func fetchPlainCounter(t *testing.T, mfs []*dto.MetricFamily, name string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		t.Fatalf("metric %q not found", name)
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
