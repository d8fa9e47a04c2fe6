package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
)

// PrometheusExporter exports metrics in Prometheus text format.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter creates a new Prometheus exporter for the given collector.
// The namespace is prepended to all metric names (e.g., "e2ee_media").
func NewPrometheusExporter(c *Collector, namespace string) *PrometheusExporter {
	return &PrometheusExporter{
		collector: c,
		namespace: namespace,
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		e.WriteMetrics(w)
	})
}

// WriteMetrics writes all metrics in Prometheus text format to the writer.
func (e *PrometheusExporter) WriteMetrics(w io.Writer) {
	snap := e.collector.Snapshot()
	labels := e.formatLabels(snap.Labels)

	// --- Audio Frame Metrics ---
	e.writeHelp(w, "audio_encrypt_success_total", "Total audio frames encrypted successfully")
	e.writeType(w, "audio_encrypt_success_total", "counter")
	e.writeMetric(w, "audio_encrypt_success_total", labels, float64(snap.AudioEncryptSuccess))

	e.writeHelp(w, "audio_encrypt_failure_total", "Total audio frame encryption failures")
	e.writeType(w, "audio_encrypt_failure_total", "counter")
	e.writeMetric(w, "audio_encrypt_failure_total", labels, float64(snap.AudioEncryptFailure))

	e.writeHelp(w, "audio_encrypt_attempts_total", "Total ciphertext-validation attempts across audio encrypt calls")
	e.writeType(w, "audio_encrypt_attempts_total", "counter")
	e.writeMetric(w, "audio_encrypt_attempts_total", labels, float64(snap.AudioEncryptAttempts))

	e.writeHelp(w, "audio_decrypt_success_total", "Total audio frames decrypted successfully")
	e.writeType(w, "audio_decrypt_success_total", "counter")
	e.writeMetric(w, "audio_decrypt_success_total", labels, float64(snap.AudioDecryptSuccess))

	e.writeHelp(w, "audio_decrypt_failure_total", "Total audio frame decryption failures")
	e.writeType(w, "audio_decrypt_failure_total", "counter")
	e.writeMetric(w, "audio_decrypt_failure_total", labels, float64(snap.AudioDecryptFailure))

	e.writeHelp(w, "audio_passthrough_total", "Total audio frames that bypassed encryption or decryption")
	e.writeType(w, "audio_passthrough_total", "counter")
	e.writeMetric(w, "audio_passthrough_total", labels, float64(snap.AudioPassthrough))

	// --- Video Frame Metrics ---
	e.writeHelp(w, "video_encrypt_success_total", "Total video frames encrypted successfully")
	e.writeType(w, "video_encrypt_success_total", "counter")
	e.writeMetric(w, "video_encrypt_success_total", labels, float64(snap.VideoEncryptSuccess))

	e.writeHelp(w, "video_encrypt_failure_total", "Total video frame encryption failures")
	e.writeType(w, "video_encrypt_failure_total", "counter")
	e.writeMetric(w, "video_encrypt_failure_total", labels, float64(snap.VideoEncryptFailure))

	e.writeHelp(w, "video_encrypt_attempts_total", "Total ciphertext-validation attempts across video encrypt calls")
	e.writeType(w, "video_encrypt_attempts_total", "counter")
	e.writeMetric(w, "video_encrypt_attempts_total", labels, float64(snap.VideoEncryptAttempts))

	e.writeHelp(w, "video_decrypt_success_total", "Total video frames decrypted successfully")
	e.writeType(w, "video_decrypt_success_total", "counter")
	e.writeMetric(w, "video_decrypt_success_total", labels, float64(snap.VideoDecryptSuccess))

	e.writeHelp(w, "video_decrypt_failure_total", "Total video frame decryption failures")
	e.writeType(w, "video_decrypt_failure_total", "counter")
	e.writeMetric(w, "video_decrypt_failure_total", labels, float64(snap.VideoDecryptFailure))

	e.writeHelp(w, "video_passthrough_total", "Total video frames that bypassed encryption or decryption")
	e.writeType(w, "video_passthrough_total", "counter")
	e.writeMetric(w, "video_passthrough_total", labels, float64(snap.VideoPassthrough))

	// --- Ratchet Metrics ---
	e.writeHelp(w, "ratchet_transitions_total", "Total key ratchet transitions applied")
	e.writeType(w, "ratchet_transitions_total", "counter")
	e.writeMetric(w, "ratchet_transitions_total", labels, float64(snap.RatchetTransitions))

	e.writeHelp(w, "replayed_nonces_total", "Total nonces rejected as replayed or out of window")
	e.writeType(w, "replayed_nonces_total", "counter")
	e.writeMetric(w, "replayed_nonces_total", labels, float64(snap.ReplayedNonces))

	// --- Uptime ---
	e.writeHelp(w, "uptime_seconds", "Time since the collector was created")
	e.writeType(w, "uptime_seconds", "gauge")
	e.writeMetric(w, "uptime_seconds", labels, snap.Uptime.Seconds())

	// --- Histograms ---
	e.writeHistogram(w, "audio_encrypt_duration_microseconds", "Audio encrypt duration in microseconds", labels, snap.AudioEncryptLatency)
	e.writeHistogram(w, "audio_decrypt_duration_microseconds", "Audio decrypt duration in microseconds", labels, snap.AudioDecryptLatency)
	e.writeHistogram(w, "video_encrypt_duration_microseconds", "Video encrypt duration in microseconds", labels, snap.VideoEncryptLatency)
	e.writeHistogram(w, "video_decrypt_duration_microseconds", "Video decrypt duration in microseconds", labels, snap.VideoDecryptLatency)
}

// writeHelp writes a HELP line.
func (e *PrometheusExporter) writeHelp(w io.Writer, name, help string) {
	fmt.Fprintf(w, "# HELP %s_%s %s\n", e.namespace, name, help)
}

// writeType writes a TYPE line.
func (e *PrometheusExporter) writeType(w io.Writer, name, typ string) {
	fmt.Fprintf(w, "# TYPE %s_%s %s\n", e.namespace, name, typ)
}

// writeMetric writes a single metric line.
func (e *PrometheusExporter) writeMetric(w io.Writer, name, labels string, value float64) {
	if labels != "" {
		fmt.Fprintf(w, "%s_%s{%s} %g\n", e.namespace, name, labels, value)
	} else {
		fmt.Fprintf(w, "%s_%s %g\n", e.namespace, name, value)
	}
}

// writeHistogram writes a histogram in Prometheus format.
func (e *PrometheusExporter) writeHistogram(w io.Writer, name, help, labels string, h HistogramSummary) {
	e.writeHelp(w, name, help)
	e.writeType(w, name, "histogram")

	fullName := e.namespace + "_" + name

	// Write bucket counts
	for _, b := range h.Buckets {
		le := fmt.Sprintf("%g", b.UpperBound)
		if math.IsInf(b.UpperBound, 1) {
			le = "+Inf"
		}
		if labels != "" {
			fmt.Fprintf(w, "%s_bucket{%s,le=\"%s\"} %d\n", fullName, labels, le, b.Count)
		} else {
			fmt.Fprintf(w, "%s_bucket{le=\"%s\"} %d\n", fullName, le, b.Count)
		}
	}

	// Write sum and count
	if labels != "" {
		fmt.Fprintf(w, "%s_sum{%s} %g\n", fullName, labels, h.Sum)
		fmt.Fprintf(w, "%s_count{%s} %d\n", fullName, labels, h.Count)
	} else {
		fmt.Fprintf(w, "%s_sum %g\n", fullName, h.Sum)
		fmt.Fprintf(w, "%s_count %d\n", fullName, h.Count)
	}
}

// formatLabels converts Labels to Prometheus label format.
func (e *PrometheusExporter) formatLabels(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		// Escape label values
		v := escapePromValue(labels[k])
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", k, v))
	}

	return strings.Join(parts, ",")
}

// escapePromValue escapes a string for use as a Prometheus label value.
func escapePromValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// --- Convenience Functions ---

// ServePrometheus starts an HTTP server serving Prometheus metrics.
// This is a convenience function for simple use cases.
func ServePrometheus(addr string, c *Collector, namespace string) error {
	exp := NewPrometheusExporter(c, namespace)
	http.Handle("/metrics", exp.Handler())
	return http.ListenAndServe(addr, nil)
}
