// Package metrics holds the prometheus collectors for conversions. A CLI run
// has no scrape endpoint, so the registry is exported as a textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConversionsTotal counts finished per-format conversions by outcome.
	ConversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framecast_conversions_total",
		Help: "Total per-format conversions by outcome",
	}, []string{"format", "outcome"})

	// FallbacksTotal counts switches from the external tool to the in-process encoder.
	FallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framecast_encoder_fallbacks_total",
		Help: "Total fallbacks from external to in-process encoders",
	}, []string{"format", "reason"})

	FramesEncodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framecast_frames_encoded_total",
		Help: "Total frames written by encoder",
	}, []string{"format", "encoder"})

	EncodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framecast_encode_duration_seconds",
		Help:    "Duration of one per-format encode",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 14), // 10ms to ~80s
	}, []string{"format", "encoder"})

	// ProcSignalsTotal counts lifecycle signals sent to external process groups.
	ProcSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framecast_proc_signals_total",
		Help: "Total signals sent to external encoder process groups",
	}, []string{"signal", "result"})

	CompressionBytesSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framecast_compression_bytes_saved_total",
		Help: "Total bytes removed by post-compression",
	}, []string{"kind"})
)

func IncConversion(format, outcome string) {
	ConversionsTotal.WithLabelValues(format, outcome).Inc()
}

func IncFallback(format, reason string) {
	FallbacksTotal.WithLabelValues(format, reason).Inc()
}

func AddFrames(format, encoder string, n int) {
	FramesEncodedTotal.WithLabelValues(format, encoder).Add(float64(n))
}

func ObserveEncode(format, encoder string, seconds float64) {
	EncodeDuration.WithLabelValues(format, encoder).Observe(seconds)
}

func IncProcSignal(signal, result string) {
	ProcSignalsTotal.WithLabelValues(signal, result).Inc()
}

func AddBytesSaved(kind string, saved int64) {
	if saved > 0 {
		CompressionBytesSaved.WithLabelValues(kind).Add(float64(saved))
	}
}

// WriteTextfile writes the default registry in the node_exporter textfile
// collector format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
