package searcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zfind_searcher_searches_total",
		Help: "The total number of file searches started.",
	}, []string{"mode"}) // mode=grep|blines|files

	metricRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zfind_searcher_running_searches",
		Help: "The number of file searches currently running.",
	})

	metricStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zfind_searcher_stopped_total",
		Help: "The total number of file searches stopped before they finished.",
	})

	metricFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zfind_searcher_files_read_total",
		Help: "The total number of files read by grep searches.",
	})

	metricLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zfind_searcher_lines_processed_total",
		Help: "The total number of lines that went through a matcher while searching files.",
	})
)
