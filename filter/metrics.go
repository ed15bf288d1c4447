package filter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zfind_filter_runs_total",
		Help: "The total number of filter runs.",
	}, []string{"mode"}) // mode=sync|stream

	metricRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zfind_filter_run_seconds",
		Help:    "A histogram of latencies for complete filter runs.",
		Buckets: prometheus.ExponentialBuckets(.001, 4, 8), // 1ms -> 16s
	}, []string{"mode"})

	metricFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zfind_filter_flushes_total",
		Help: "The total number of partial results flushed by streaming runs.",
	}, []string{"reason"})

	metricCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zfind_filter_cancelled_total",
		Help: "The total number of filter runs superseded before they completed.",
	})

	metricCrashes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zfind_filter_crashes_total",
		Help: "The total number of lines whose matching panicked.",
	})

	metricProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zfind_filter_lines_processed_total",
		Help: "The total number of lines that went through a matcher.",
	})
)
