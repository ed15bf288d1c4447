package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sourcegraph/zfind/rpc"
)

var (
	metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zfind_sessions_active",
		Help: "The number of sessions not yet terminated.",
	})

	metricSessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zfind_sessions_started_total",
		Help: "The total number of sessions started.",
	}, []string{"kind"}) // kind=generic|files|grep|blines|recent_files|filer

	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zfind_session_requests_total",
		Help: "The total number of messages routed to sessions.",
	}, []string{"method"}) // method=on_typed|on_move|<key>|unknown

	metricForerunners = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zfind_forerunner_runs_total",
		Help: "The total number of forerunner commands, by outcome.",
	}, []string{"result"}) // result=small|cached|failed|duplicate

	metricPreviewErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zfind_preview_errors_total",
		Help: "The total number of previews that failed.",
	})
)

func methodLabel(method string) string {
	switch method {
	case rpc.MethodOnTyped, rpc.MethodOnMove,
		rpc.KeyCR, rpc.KeyTab, rpc.KeyBackspace,
		rpc.KeyShiftUp, rpc.KeyShiftDown, rpc.KeyCtrlN, rpc.KeyCtrlP:
		return method
	}
	return "unknown"
}
