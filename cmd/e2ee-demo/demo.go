package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pzverkov/e2ee-media/internal/constants"
	"github.com/pzverkov/e2ee-media/pkg/clock"
	"github.com/pzverkov/e2ee-media/pkg/e2ee"
	"github.com/pzverkov/e2ee-media/pkg/health"
	"github.com/pzverkov/e2ee-media/pkg/metrics"
	"github.com/pzverkov/e2ee-media/pkg/ratchet"
)

type codecSample struct {
	name      string
	codec     constants.Codec
	mediaType constants.MediaType
	frame     []byte
}

func demoSamples(media string) []codecSample {
	all := []codecSample{
		{"opus", constants.CodecOpus, constants.MediaAudio, []byte("synthetic opus payload bytes")},
		{"vp8", constants.CodecVP8, constants.MediaVideo, vp8KeyFrame()},
		{"vp9", constants.CodecVP9, constants.MediaVideo, []byte{0x82, 0x49, 0x83, 0x42, 0xAA, 0xBB, 0xCC}},
		{"h264", constants.CodecH264, constants.MediaVideo, []byte{0x00, 0x00, 0x00, 0x01, 0x21, 0b1110_0000, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE}},
		{"h265", constants.CodecH265, constants.MediaVideo, []byte{0x00, 0x00, 0x00, 0x01, 0x26, 0x01, 0xAF, 0xBC, 0xDD}},
		{"av1", constants.CodecAV1, constants.MediaVideo, []byte{byte(6 << 3) | 0b0_0000_010, 0x03, 0xAA, 0xBB, 0xCC}},
	}

	switch strings.ToLower(media) {
	case "audio":
		return filterMedia(all, constants.MediaAudio)
	case "video":
		return filterMedia(all, constants.MediaVideo)
	default:
		return all
	}
}

func filterMedia(samples []codecSample, mediaType constants.MediaType) []codecSample {
	out := make([]codecSample, 0, len(samples))
	for _, s := range samples {
		if s.mediaType == mediaType {
			out = append(out, s)
		}
	}
	return out
}

func vp8KeyFrame() []byte {
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	data[0] = 0x00
	return data
}

func runDemo(media string, verbose bool, obsAddr, logLevel, logFormat, tracing string) {
	collector, observer, logger, err := setupObservability(logLevel, logFormat, tracing)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║      e2ee-media Frame Transform Demo                     ║")
	fmt.Println("║      AES-128-GCM over a per-sender hash ratchet          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	key := ratchet.MakeStaticSenderKey("demo-sender")
	keyRatchet := ratchet.NewStaticKeyRatchet(key)

	enc := e2ee.NewEncryptor()
	enc.SetObserver(observer)
	enc.SetKeyRatchet(keyRatchet)

	fc := clock.NewFake(time.Now())
	dec := e2ee.NewDecryptor(fc)
	dec.SetObserver(observer)
	dec.TransitionToKeyRatchet(keyRatchet, constants.DefaultTransitionDuration)

	hc := health.NewCheck(collector, getVersion(), enc, dec)

	if obsAddr != "" {
		server := metrics.NewServer(metrics.ServerConfig{
			Collector:        collector,
			Version:          getVersion(),
			Namespace:        "e2ee_media",
			EnablePrometheus: true,
			EnableHealth:     true,
		})
		server.AddHealthCheck("encryptor", health.EncryptorReady(enc))
		server.AddHealthCheck("decryptor", health.DecryptorReady(dec))

		go func() {
			if err := server.ListenAndServe(obsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("observability server error", metrics.Fields{"error": err.Error()})
			}
		}()

		fmt.Printf("✓ Observability server on %s (metrics: /metrics, health: /health)\n\n", obsAddr)
	}

	samples := demoSamples(media)
	if len(samples) == 0 {
		fmt.Fprintf(os.Stderr, "Invalid media: %s (use 'audio', 'video', or 'all')\n", media)
		os.Exit(1)
	}

	var ssrc uint32 = 1000
	for _, s := range samples {
		ssrc++
		enc.AssignSsrcToCodec(ssrc, s.codec)

		encrypted := make([]byte, enc.GetMaxCiphertextByteSize(len(s.frame)))
		n, err := enc.Encrypt(s.mediaType, ssrc, s.frame, encrypted)
		if err != nil {
			fmt.Printf("[%s] ✗ Encrypt failed: %v\n", s.name, err)
			continue
		}
		encrypted = encrypted[:n]

		plaintext := make([]byte, dec.GetMaxPlaintextByteSize(len(encrypted)))
		m, err := dec.Decrypt(s.mediaType, encrypted, plaintext)
		if err != nil {
			fmt.Printf("[%s] ✗ Decrypt failed: %v\n", s.name, err)
			continue
		}
		plaintext = plaintext[:m]

		match := string(plaintext) == string(s.frame)
		status := "✓"
		if !match {
			status = "✗"
		}
		fmt.Printf("%s [%s] %d → %d bytes, round trip %s\n", status, s.name, len(s.frame), len(encrypted), boolLabel(match))

		if verbose {
			fmt.Printf("    ssrc=%d media=%s\n", ssrc, s.mediaType)
		}
	}

	fmt.Println()
	report := hc.Check()
	fmt.Printf("Health: %s\n", report.Status)
	for name, result := range report.Checks {
		fmt.Printf("  %-10s %s\n", name, result.Status)
	}

	snap := collector.Snapshot()
	fmt.Println()
	fmt.Println("Counters:")
	fmt.Printf("  audio encrypt success/failure: %d/%d\n", snap.AudioEncryptSuccess, snap.AudioEncryptFailure)
	fmt.Printf("  video encrypt success/failure: %d/%d\n", snap.VideoEncryptSuccess, snap.VideoEncryptFailure)
	fmt.Printf("  audio decrypt success/failure: %d/%d\n", snap.AudioDecryptSuccess, snap.AudioDecryptFailure)
	fmt.Printf("  video decrypt success/failure: %d/%d\n", snap.VideoDecryptSuccess, snap.VideoDecryptFailure)
	fmt.Printf("  ratchet transitions: %d\n", snap.RatchetTransitions)

	if obsAddr != "" {
		fmt.Println()
		fmt.Println("Observability server still running, press Ctrl+C to exit.")
		select {}
	}
}

func boolLabel(ok bool) string {
	if ok {
		return "OK"
	}
	return "MISMATCH"
}

func setupObservability(logLevel, logFormat, tracing string) (*metrics.Collector, *metrics.FrameObserver, *metrics.Logger, error) {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	format, err := parseLogFormat(logFormat)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := metrics.NewLogger(
		metrics.WithOutput(os.Stderr),
		metrics.WithLevel(level),
		metrics.WithFormat(format),
		metrics.WithFields(metrics.Fields{"app": "e2ee-demo"}),
	)
	metrics.SetLogger(logger)

	switch strings.ToLower(tracing) {
	case "none":
		metrics.SetTracer(metrics.NoOpTracer{})
	case "simple":
		metrics.SetTracer(metrics.NewSimpleTracer())
	case "otel":
		if !metrics.OTelEnabled() {
			return nil, nil, nil, fmt.Errorf("otel tracing not enabled (build with -tags otel)")
		}
		metrics.SetTracer(metrics.NewOTelTracer("e2ee-demo"))
	default:
		return nil, nil, nil, fmt.Errorf("invalid tracing mode: %s (use none, simple, or otel)", tracing)
	}

	collector := metrics.NewCollector(metrics.Labels{
		"service": "e2ee-demo",
	})
	metrics.SetGlobal(collector)

	observer := metrics.NewFrameObserver(metrics.FrameObserverConfig{
		Collector: collector,
		Logger:    logger.Named("e2ee"),
	})

	return collector, observer, logger, nil
}

func parseLogLevel(level string) (metrics.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return metrics.LevelDebug, nil
	case "info":
		return metrics.LevelInfo, nil
	case "warn", "warning":
		return metrics.LevelWarn, nil
	case "error":
		return metrics.LevelError, nil
	case "silent", "off", "none":
		return metrics.LevelSilent, nil
	default:
		return metrics.LevelInfo, fmt.Errorf("invalid log level: %s (use debug, info, warn, error, silent)", level)
	}
}

func parseLogFormat(format string) (metrics.Format, error) {
	switch strings.ToLower(format) {
	case "text":
		return metrics.FormatText, nil
	case "json":
		return metrics.FormatJSON, nil
	default:
		return metrics.FormatText, fmt.Errorf("invalid log format: %s (use text or json)", format)
	}
}
