package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(purchaseDecisionsTotal, filesCleanedTotal) }

var purchaseDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "priority_purchase_decisions_total",
		Help: "Admin decisions on priority purchases, by outcome.",
	},
	[]string{"decision"}, // 'confirmed', 'rejected'
)

var filesCleanedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "storage_files_cleaned_total",
		Help: "Artifacts removed by the storage cleanup worker.",
	},
)

func IncPurchaseDecision(decision string) {
	purchaseDecisionsTotal.WithLabelValues(norm(decision)).Inc()
}

func AddFilesCleaned(n int) { filesCleanedTotal.Add(float64(n)) }
