package monitor

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordRun("python", "success", 0.4)
	m.RecordRun("python", "success", 0.6)
	m.RecordRun("java", "timeout", 10)
	m.RecordProviderError("rate_limited")
	m.RecordRetry("rate_limited")
	m.RecordInjectionSignal("role_change")

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("python", "success")); got != 2 {
		t.Errorf("runs_total{python,success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Retries.WithLabelValues("rate_limited")); got != 1 {
		t.Errorf("retries_total{rate_limited} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RunDuration); got != 2 {
		t.Errorf("run_duration series = %d, want 2", got)
	}

	want := `
# HELP runner_provider_errors_total Provider call failures by failure kind.
# TYPE runner_provider_errors_total counter
runner_provider_errors_total{kind="rate_limited"} 1
`
	if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(want), "runner_provider_errors_total"); err != nil {
		t.Error(err)
	}
}
