package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(downloadsFinishedTotal, downloadsAdmittedTotal, downloadFailuresTotal) }

var downloadsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "downloads_finished_total",
		Help: "Total downloads reaching a terminal state, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var downloadsAdmittedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "downloads_admitted_total",
		Help: "Total pending downloads admitted by the scheduler.",
	},
)

var downloadFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "download_failures_total",
		Help: "Terminal download failures by classification.",
	},
	[]string{"kind"},
)

func IncDownloadFinished(status string) {
	downloadsFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func IncDownloadAdmitted() { downloadsAdmittedTotal.Inc() }

func IncDownloadFailure(kind string) {
	downloadFailuresTotal.WithLabelValues(norm(kind)).Inc()
}
