// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SkippedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realprice_skipped_entries_total",
			Help: "Wholesale entries skipped while building day series, by reason",
		},
		[]string{"reason"},
	)

	MarketRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realprice_market_requests_total",
			Help: "Day-ahead market requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	MarketRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realprice_market_request_duration_seconds",
			Help:    "Day-ahead market request duration in seconds by provider",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	DataAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realprice_data_available",
			Help: "1 when the day (yesterday, today, tomorrow) has wholesale data",
		},
		[]string{"day"},
	)

	CurrentConsumerPrice = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realprice_current_consumer_price",
			Help: "Composed consumer price of the current hour in currency/kWh",
		},
	)

	CheapRanges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realprice_cheap_ranges",
			Help: "Number of cheap ranges in the latest analysis",
		},
	)

	CheapHours = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realprice_cheap_hours",
			Help: "Number of cheap hours in the latest analysis",
		},
	)
)

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realprice_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realprice_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realprice_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

// UpdateJobMetrics records the duration and outcome of a job run.
func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}

// ObserveMarketRequest records a market request outcome.
func ObserveMarketRequest(provider string, startedAt time.Time, err error) {
	MarketRequestDurationSeconds.WithLabelValues(provider).Observe(time.Since(startedAt).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	MarketRequestsTotal.WithLabelValues(provider, outcome).Inc()
}
