// Package metrics provides observability primitives for the e2ee-media library.
//
// # Overview
//
// The metrics package offers a complete observability solution including:
//   - Metrics collection (counters, gauges, histograms)
//   - Prometheus-compatible metrics export
//   - Distributed tracing support (OpenTelemetry-compatible interface)
//   - Structured logging with levels
//   - Health check endpoints
//
// # Quick Start
//
// Basic usage with global collector:
//
//	import "github.com/pzverkov/e2ee-media/pkg/metrics"
//
//	// Record metrics
//	metrics.Global().RecordEncrypt(true, true, 1, 120*time.Microsecond)
//	metrics.Global().RecordDecrypt(true, true, 80*time.Microsecond)
//
//	// Start Prometheus server
//	go metrics.ServePrometheus(":9090", metrics.Global(), "e2ee_media")
//
// # Metrics Collection
//
// The Collector type aggregates metrics from the audio and video frame
// transforms:
//
//	collector := metrics.NewCollector(metrics.Labels{
//		"instance": "node-1",
//		"region":   "us-west-2",
//	})
//
//	// Frame metrics
//	collector.RecordEncrypt(true, true, 1, d)
//	collector.RecordDecrypt(true, true, d)
//	collector.RecordPassthrough(true)
//
//	// Ratchet metrics
//	collector.RecordRatchetTransition()
//	collector.RecordReplayedNonce()
//
//	// Get snapshot
//	snap := collector.Snapshot()
//
// # Prometheus Export
//
// Export metrics in Prometheus format:
//
//	exporter := metrics.NewPrometheusExporter(collector, "e2ee_media")
//	http.Handle("/metrics", exporter.Handler())
//
// # Tracing
//
// The package provides a Tracer interface compatible with OpenTelemetry:
//
//	// Use the simple tracer for testing
//	tracer := metrics.NewSimpleTracer()
//	metrics.SetTracer(tracer)
//
//	// OpenTelemetry adapter (uses global provider)
//	otelTracer := metrics.NewOTelTracer("e2ee-media")
//	metrics.SetTracer(otelTracer)
//	// Build with -tags otel to enable the adapter.
//
//	// Start spans
//	ctx, end := metrics.StartSpan(ctx, metrics.SpanEncryptFrame)
//	defer end(nil) // or end(err) on error
//
//	// Use with OpenTelemetry SDK (implement the Tracer interface)
//	// metrics.SetTracer(myOTelAdapter)
//
// # Structured Logging
//
// The Logger provides structured logging with levels:
//
//	logger := metrics.NewLogger(
//		metrics.WithLevel(metrics.LevelInfo),
//		metrics.WithFormat(metrics.FormatJSON),
//		metrics.WithFields(metrics.Fields{"service": "e2ee-media"}),
//	)
//
//	logger.Info("ratchet transitioned", metrics.Fields{
//		"generation": generation,
//	})
//
//	// Child loggers
//	frameLog := logger.Named("frame").With(metrics.Fields{"ssrc": ssrc})
//	frameLog.Debug("encrypting frame")
//
// # Health Checks
//
// Provide health check endpoints for Kubernetes and load balancers:
//
//	health := metrics.NewHealthCheck(collector, "1.0.0")
//	health.AddCheck("ratchet", func() error {
//		// Verify a key ratchet is installed
//		return nil
//	})
//
//	http.Handle("/health", health.Handler())
//	http.Handle("/healthz", health.LivenessHandler())
//	http.Handle("/readyz", health.ReadinessHandler())
//
// # Observability Server
//
// Start a complete observability server:
//
//	server := metrics.NewServer(metrics.ServerConfig{
//		Collector:        collector,
//		Version:          "1.0.0",
//		Namespace:        "e2ee_media",
//		EnablePrometheus: true,
//		EnableHealth:     true,
//	})
//
//	go server.ListenAndServe(":9090")
//
// This provides:
//   - /metrics - Prometheus metrics
//   - /health  - Detailed health status
//   - /healthz - Kubernetes liveness probe
//   - /readyz  - Kubernetes readiness probe
package metrics
