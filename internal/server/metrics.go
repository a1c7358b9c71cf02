package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the Prometheus collectors exported on /metrics.
type Metrics struct {
	Asks           *prometheus.CounterVec
	AskDuration    prometheus.Histogram
	IngestedDocs   prometheus.Counter
	IngestedChunks prometheus.Counter
	IngestFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Asks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotae",
			Name:      "asks_total",
			Help:      "Questions answered, by outcome.",
		}, []string{"outcome"}),
		AskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kotae",
			Name:      "ask_duration_seconds",
			Help:      "Time to answer a question, retrieval through generation.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		IngestedDocs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kotae",
			Name:      "ingested_documents_total",
			Help:      "Documents added to the vector store.",
		}),
		IngestedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kotae",
			Name:      "ingested_chunks_total",
			Help:      "Chunks added to the vector store.",
		}),
		IngestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kotae",
			Name:      "ingest_failures_total",
			Help:      "Documents that failed to load or encode.",
		}),
	}
	reg.MustRegister(m.Asks, m.AskDuration, m.IngestedDocs, m.IngestedChunks, m.IngestFailures)
	return m
}
