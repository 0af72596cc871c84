package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(codesGeneratedTotal, codesDeletedTotal, generationRetriesTotal) }

var (
	codesGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activation_codes_generated_total",
			Help: "Generated code slots, labeled by result.",
		},
		[]string{"result"}, // 'created', 'failed'
	)

	codesDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activation_codes_deleted_total",
			Help: "Deleted codes, labeled by the state they were in.",
		},
		[]string{"status"}, // 'unused', 'activated'
	)

	generationRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "activation_code_generation_retries_total",
			Help: "Retries caused by code string collisions.",
		},
	)
)

func AddCodesGenerated(result string, n int) {
	if n <= 0 {
		return
	}
	codesGeneratedTotal.WithLabelValues(norm(result)).Add(float64(n))
}

func AddCodesDeleted(status string, n int) {
	if n <= 0 {
		return
	}
	codesDeletedTotal.WithLabelValues(norm(status)).Add(float64(n))
}

func IncGenerationRetry() { generationRetriesTotal.Inc() }
