package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register queues collectors from each file's init.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// RegisterOn adds every ledger collector to reg.
func RegisterOn(reg prometheus.Registerer) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister exposes the ledger collectors on the default registry. Later
// calls are no-ops.
func MustRegister() {
	once.Do(func() {
		if err := RegisterOn(prometheus.DefaultRegisterer); err != nil {
			panic(err)
		}
	})
}

// norm lower-cases label values so "ALREADY_USED" and "already_used" share a series.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
