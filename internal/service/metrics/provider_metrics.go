package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "barsync",
			Subsystem: "provider",
			Name:      "request_seconds",
			Help:      "Latency of upstream provider requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	ProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barsync",
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Upstream provider errors by backend and kind",
		},
		[]string{"backend", "kind"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ProviderLatency, ProviderErrors)
	})
}
