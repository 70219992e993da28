package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	jobsSubmittedCounter   *prometheus.CounterVec
	jobsFinalizedCounter   *prometheus.CounterVec
	jobsFailedCounter      *prometheus.CounterVec
	jobsTimedOutCounter    *prometheus.CounterVec
	staleResultsCounter    *prometheus.CounterVec
	jobRetriesCounter      *prometheus.CounterVec
	inFlightJobsCountGauge prometheus.Gauge
	handsPlayedCounter     prometheus.Counter
}

func (m *metrics) JobSubmitted(kind string) {
	m.jobsSubmittedCounter.WithLabelValues(kind).Inc()
}

func (m *metrics) JobFinalized(kind string) {
	m.jobsFinalizedCounter.WithLabelValues(kind).Inc()
}

func (m *metrics) JobFailed(kind string) {
	m.jobsFailedCounter.WithLabelValues(kind).Inc()
}

func (m *metrics) JobTimedOut(kind string) {
	m.jobsTimedOutCounter.WithLabelValues(kind).Inc()
}

func (m *metrics) StaleResultDiscarded(kind string) {
	m.staleResultsCounter.WithLabelValues(kind).Inc()
}

func (m *metrics) JobRetried(kind string) {
	m.jobRetriesCounter.WithLabelValues(kind).Inc()
}

func (m *metrics) SetInFlightJobsCount(count int) {
	m.inFlightJobsCountGauge.Set(float64(count))
}

func (m *metrics) HandPlayed() {
	m.handsPlayedCounter.Inc()
}

var Metrics = &metrics{
	jobsSubmittedCounter: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "computation_jobs_submitted_total",
		Help: "Total number of computation jobs submitted to the cluster",
	}, []string{"kind"}),
	jobsFinalizedCounter: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "computation_jobs_finalized_total",
		Help: "Total number of computation jobs finalized by the cluster",
	}, []string{"kind"}),
	jobsFailedCounter: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "computation_jobs_failed_total",
		Help: "Total number of computation jobs reported failed",
	}, []string{"kind"}),
	jobsTimedOutCounter: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "computation_jobs_timed_out_total",
		Help: "Total number of computation jobs that timed out locally",
	}, []string{"kind"}),
	staleResultsCounter: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "computation_stale_results_total",
		Help: "Total number of late computation results discarded as stale",
	}, []string{"kind"}),
	jobRetriesCounter: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "computation_job_retries_total",
		Help: "Total number of job resubmissions with a fresh offset",
	}, []string{"kind"}),
	inFlightJobsCountGauge: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "computation_jobs_in_flight",
		Help: "Count of jobs currently queued or executing",
	}),
	handsPlayedCounter: promauto.NewCounter(prometheus.CounterOpts{
		Name: "hands_played_total",
		Help: "Total number of hands driven to completion",
	}),
}
