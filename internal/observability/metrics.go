package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "batchstream",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "batchstream",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	producerStreams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "batchstream",
			Subsystem: "producer",
			Name:      "streams_total",
			Help:      "Producer streams by final outcome.",
		},
		[]string{"outcome"},
	)
	producerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "batchstream",
			Subsystem: "producer",
			Name:      "stream_duration_seconds",
			Help:      "Time from head write to closing bracket.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	producerChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "batchstream",
			Subsystem: "producer",
			Name:      "chunks_total",
			Help:      "Chunk records emitted by kind and status.",
		},
		[]string{"kind", "status"},
	)
	producerPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "batchstream",
			Subsystem: "producer",
			Name:      "pending_chunks",
			Help:      "Registered chunks that have not reached a terminal record.",
		},
	)
	consumerStreams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "batchstream",
			Subsystem: "consumer",
			Name:      "streams_total",
			Help:      "Consumer streams by final outcome.",
		},
		[]string{"outcome"},
	)
	consumerInterrupted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "batchstream",
			Subsystem: "consumer",
			Name:      "interrupted_chunks_total",
			Help:      "Open chunk queues that received the interruption sentinel.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			producerStreams, producerDuration, producerChunks, producerPending,
			consumerStreams, consumerInterrupted,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordProducerStream records one finished producer stream.
func RecordProducerStream(outcome string, duration time.Duration) {
	RegisterMetrics()
	producerStreams.WithLabelValues(outcome).Inc()
	producerDuration.Observe(duration.Seconds())
}

func RecordChunk(kind, status string) {
	RegisterMetrics()
	producerChunks.WithLabelValues(kind, status).Inc()
}

// AddPending moves the pending chunk gauge by delta.
func AddPending(delta int) {
	RegisterMetrics()
	producerPending.Add(float64(delta))
}

func RecordConsumerStream(outcome string) {
	RegisterMetrics()
	consumerStreams.WithLabelValues(outcome).Inc()
}

func RecordInterrupted(n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	consumerInterrupted.Add(float64(n))
}
