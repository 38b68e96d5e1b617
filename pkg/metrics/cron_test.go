package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Unix(1_760_000_000, 0)

	m.ObserveRun("deal-autocomplete", 250*time.Millisecond, finished, nil)
	m.ObserveRun("deal-autocomplete", time.Second, finished.Add(time.Hour), errors.New("db down"))
	m.IncSkipped()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	runs := findMetricFamily(mfs, "dealflow_cron_job_runs_total")
	require.NotNil(t, runs)
	require.Len(t, runs.GetMetric(), 2)
	for _, series := range runs.GetMetric() {
		require.Equal(t, 1.0, series.GetCounter().GetValue())
	}

	last, err := findMetric(mfs, "dealflow_cron_job_last_success_timestamp_seconds", "job", "deal-autocomplete")
	require.NoError(t, err)
	require.Equal(t, float64(finished.Unix()), last.GetGauge().GetValue(), "a failed run must not move the last success time")

	took, err := findMetric(mfs, "dealflow_cron_job_duration_seconds", "job", "deal-autocomplete")
	require.NoError(t, err)
	require.EqualValues(t, 2, took.GetHistogram().GetSampleCount())
	require.InDelta(t, 1.25, took.GetHistogram().GetSampleSum(), 1e-9)

	skipped := findMetricFamily(mfs, "dealflow_cron_cycles_skipped_total")
	require.NotNil(t, skipped)
	require.Equal(t, 1.0, skipped.GetMetric()[0].GetCounter().GetValue())
}

func TestCronJobMetricsLabelsUnnamedJobs(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronJobMetrics(reg).ObserveRun("", time.Millisecond, time.Now(), nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := fetchCounterValue(mfs, "dealflow_cron_job_runs_total", "job", "unknown")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	require.NotPanics(t, func() {
		m.ObserveRun("x", time.Second, time.Now(), nil)
		m.IncSkipped()
		NewCronJobMetrics(nil).ObserveRun("x", time.Second, time.Now(), errors.New("x"))
	})
}
