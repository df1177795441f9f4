package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
	"github.com/odyssey-erp/odyssey-billing/jobs"
)

func TestBillingJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Redeliveries are short HTTP posts; most succeed.
	for i := 0; i < 60; i++ {
		tracker := metrics.Track(jobs.TaskCashFlowSync)
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending cash-flow tracker: %v", err)
		}
	}
	metrics.AddProcessed(jobs.TaskCashFlowSync, 60)

	// Nightly repair scans are slower but bounded.
	for i := 0; i < 5; i++ {
		tracker := metrics.Track(jobs.TaskGroupRepair)
		time.Sleep(20 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending repair tracker: %v", err)
		}
	}

	// A webhook outage produces a handful of failures.
	for i := 0; i < 3; i++ {
		tracker := metrics.Track(jobs.TaskCashFlowSync)
		if err := tracker.End(errors.New("503 from cash-flow")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "odyssey_billing_jobs_total", map[string]string{"job": jobs.TaskCashFlowSync, "status": "success"})
	failure := metricValue(t, families, "odyssey_billing_jobs_total", map[string]string{"job": jobs.TaskCashFlowSync, "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no cash-flow job executions recorded")
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("cash-flow redelivery success ratio too low: %f", ratio)
	}
	if failed := metricValue(t, families, "odyssey_billing_jobs_failures_total", map[string]string{"job": jobs.TaskCashFlowSync}); failed != 3 {
		t.Fatalf("expected 3 recorded failures, got %f", failed)
	}
	if processed := metricValue(t, families, "odyssey_billing_job_items_total", map[string]string{"job": jobs.TaskCashFlowSync}); processed != 60 {
		t.Fatalf("expected 60 processed entries, got %f", processed)
	}

	repairDuration := histogramMean(t, families, "odyssey_billing_job_duration_seconds", map[string]string{"job": jobs.TaskGroupRepair})
	if repairDuration > 2.0 {
		t.Fatalf("group repair duration above budget: %f", repairDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
