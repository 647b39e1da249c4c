package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(activeDownloads, pendingDownloads, schedulerTickErrors) }

var activeDownloads = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "downloads_active",
		Help: "Downloads currently occupying a concurrency slot.",
	},
)

var pendingDownloads = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "downloads_pending",
		Help: "Downloads waiting for admission.",
	},
)

var schedulerTickErrors = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "scheduler_tick_errors_total",
		Help: "Scheduler ticks that failed and triggered the error backoff.",
	},
)

func SetActiveDownloads(n int)  { activeDownloads.Set(float64(n)) }
func SetPendingDownloads(n int) { pendingDownloads.Set(float64(n)) }
func IncSchedulerTickError()    { schedulerTickErrors.Inc() }
