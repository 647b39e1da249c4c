package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(artifactCacheLookups, probeCacheLookups) }

var artifactCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "artifact_cache_lookups_total",
		Help: "Result-cache lookups against completed downloads, by outcome.",
	},
	[]string{"outcome"}, // 'hit', 'miss', 'stale'
)

var probeCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "probe_cache_lookups_total",
		Help: "Metadata probe cache lookups, by outcome.",
	},
	[]string{"outcome"}, // 'hit', 'miss'
)

func IncArtifactCache(outcome string) {
	artifactCacheLookups.WithLabelValues(norm(outcome)).Inc()
}

func IncProbeCache(outcome string) {
	probeCacheLookups.WithLabelValues(norm(outcome)).Inc()
}
