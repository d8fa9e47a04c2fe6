// Package metrics provides observability primitives for the e2ee-media library.
//
// The package includes:
//   - Per-media Collector counters and a Histogram metric type
//   - Prometheus-compatible metrics export
//   - OpenTelemetry tracing support
//   - Structured logging with levels
//   - Health check functionality
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates metrics from the audio and video frame transforms.
type Collector struct {
	// Audio frame metrics
	audioEncryptSuccess atomic.Uint64
	audioEncryptFailure atomic.Uint64
	audioEncryptAttempts atomic.Uint64
	audioDecryptSuccess atomic.Uint64
	audioDecryptFailure atomic.Uint64
	audioPassthrough    atomic.Uint64
	audioEncryptLatency *Histogram
	audioDecryptLatency *Histogram

	// Video frame metrics
	videoEncryptSuccess  atomic.Uint64
	videoEncryptFailure  atomic.Uint64
	videoEncryptAttempts atomic.Uint64
	videoDecryptSuccess  atomic.Uint64
	videoDecryptFailure  atomic.Uint64
	videoPassthrough     atomic.Uint64
	videoEncryptLatency  *Histogram
	videoDecryptLatency  *Histogram

	// Ratchet metrics
	ratchetTransitions atomic.Uint64
	replayedNonces     atomic.Uint64

	// Creation time for uptime tracking
	createdAt time.Time

	// Labels for this collector instance
	labels Labels
}

// Labels represents key-value pairs for metric labeling.
type Labels map[string]string

// Default bucket configurations for histograms.
var (
	// RatchetLatencyBuckets for ratchet transition duration (milliseconds).
	RatchetLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}

	// LatencyBuckets for encrypt/decrypt frame operations (microseconds).
	LatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// NewCollector creates a new metrics collector.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = make(Labels)
	}

	return &Collector{
		audioEncryptLatency: NewHistogram(LatencyBuckets),
		audioDecryptLatency: NewHistogram(LatencyBuckets),
		videoEncryptLatency: NewHistogram(LatencyBuckets),
		videoDecryptLatency: NewHistogram(LatencyBuckets),
		createdAt:           time.Now(),
		labels:              labels,
	}
}

// --- Encrypt Metrics ---

// RecordEncrypt records the outcome and latency of one Encrypt call.
func (c *Collector) RecordEncrypt(audio bool, success bool, attempts uint64, d time.Duration) {
	if audio {
		if success {
			c.audioEncryptSuccess.Add(1)
		} else {
			c.audioEncryptFailure.Add(1)
		}
		c.audioEncryptAttempts.Add(attempts)
		c.audioEncryptLatency.Observe(float64(d.Microseconds()))
		return
	}
	if success {
		c.videoEncryptSuccess.Add(1)
	} else {
		c.videoEncryptFailure.Add(1)
	}
	c.videoEncryptAttempts.Add(attempts)
	c.videoEncryptLatency.Observe(float64(d.Microseconds()))
}

// --- Decrypt Metrics ---

// RecordDecrypt records the outcome and latency of one Decrypt call.
func (c *Collector) RecordDecrypt(audio bool, success bool, d time.Duration) {
	if audio {
		if success {
			c.audioDecryptSuccess.Add(1)
		} else {
			c.audioDecryptFailure.Add(1)
		}
		c.audioDecryptLatency.Observe(float64(d.Microseconds()))
		return
	}
	if success {
		c.videoDecryptSuccess.Add(1)
	} else {
		c.videoDecryptFailure.Add(1)
	}
	c.videoDecryptLatency.Observe(float64(d.Microseconds()))
}

// RecordPassthrough records a frame that bypassed encryption or decryption.
func (c *Collector) RecordPassthrough(audio bool) {
	if audio {
		c.audioPassthrough.Add(1)
		return
	}
	c.videoPassthrough.Add(1)
}

// --- Ratchet Metrics ---

// RecordRatchetTransition records a key ratchet transition.
func (c *Collector) RecordRatchetTransition() {
	c.ratchetTransitions.Add(1)
}

// RecordReplayedNonce records a rejected replayed or out-of-window nonce.
func (c *Collector) RecordReplayedNonce() {
	c.replayedNonces.Add(1)
}

// --- Snapshot ---

// Snapshot returns a point-in-time snapshot of all metrics.
type Snapshot struct {
	// Timestamp of the snapshot
	Timestamp time.Time

	// Uptime since collector creation
	Uptime time.Duration

	AudioEncryptSuccess  uint64
	AudioEncryptFailure  uint64
	AudioEncryptAttempts uint64
	AudioDecryptSuccess  uint64
	AudioDecryptFailure  uint64
	AudioPassthrough     uint64

	VideoEncryptSuccess  uint64
	VideoEncryptFailure  uint64
	VideoEncryptAttempts uint64
	VideoDecryptSuccess  uint64
	VideoDecryptFailure  uint64
	VideoPassthrough     uint64

	RatchetTransitions uint64
	ReplayedNonces     uint64

	AudioEncryptLatency HistogramSummary
	AudioDecryptLatency HistogramSummary
	VideoEncryptLatency HistogramSummary
	VideoDecryptLatency HistogramSummary

	// Labels
	Labels Labels
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:            time.Now(),
		Uptime:               time.Since(c.createdAt),
		AudioEncryptSuccess:  c.audioEncryptSuccess.Load(),
		AudioEncryptFailure:  c.audioEncryptFailure.Load(),
		AudioEncryptAttempts: c.audioEncryptAttempts.Load(),
		AudioDecryptSuccess:  c.audioDecryptSuccess.Load(),
		AudioDecryptFailure:  c.audioDecryptFailure.Load(),
		AudioPassthrough:     c.audioPassthrough.Load(),
		VideoEncryptSuccess:  c.videoEncryptSuccess.Load(),
		VideoEncryptFailure:  c.videoEncryptFailure.Load(),
		VideoEncryptAttempts: c.videoEncryptAttempts.Load(),
		VideoDecryptSuccess:  c.videoDecryptSuccess.Load(),
		VideoDecryptFailure:  c.videoDecryptFailure.Load(),
		VideoPassthrough:     c.videoPassthrough.Load(),
		RatchetTransitions:   c.ratchetTransitions.Load(),
		ReplayedNonces:       c.replayedNonces.Load(),
		AudioEncryptLatency:  c.audioEncryptLatency.Summary(),
		AudioDecryptLatency:  c.audioDecryptLatency.Summary(),
		VideoEncryptLatency:  c.videoEncryptLatency.Summary(),
		VideoDecryptLatency:  c.videoDecryptLatency.Summary(),
		Labels:               c.labels,
	}
}

// Reset clears all metrics (useful for testing).
func (c *Collector) Reset() {
	c.audioEncryptSuccess.Store(0)
	c.audioEncryptFailure.Store(0)
	c.audioEncryptAttempts.Store(0)
	c.audioDecryptSuccess.Store(0)
	c.audioDecryptFailure.Store(0)
	c.audioPassthrough.Store(0)
	c.videoEncryptSuccess.Store(0)
	c.videoEncryptFailure.Store(0)
	c.videoEncryptAttempts.Store(0)
	c.videoDecryptSuccess.Store(0)
	c.videoDecryptFailure.Store(0)
	c.videoPassthrough.Store(0)
	c.ratchetTransitions.Store(0)
	c.replayedNonces.Store(0)
	c.audioEncryptLatency.Reset()
	c.audioDecryptLatency.Reset()
	c.videoEncryptLatency.Reset()
	c.videoDecryptLatency.Reset()
	c.createdAt = time.Now()
}

// --- Global Collector ---

var (
	globalCollector     *Collector
	globalCollectorOnce sync.Once
)

// Global returns the global metrics collector.
// Creates one with default settings if not already initialized.
func Global() *Collector {
	globalCollectorOnce.Do(func() {
		globalCollector = NewCollector(Labels{"instance": "default"})
	})
	return globalCollector
}

// SetGlobal sets the global metrics collector.
// Should be called during initialization before any metrics are recorded.
func SetGlobal(c *Collector) {
	globalCollectorOnce.Do(func() {})
	globalCollector = c
}
