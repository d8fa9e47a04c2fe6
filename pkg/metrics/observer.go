package metrics

import (
	"context"
	"time"
)

// FrameObserver provides observability hooks for the frame transform.
// Attach this to an Encryptor or Decryptor to automatically record
// metrics and traces for each frame processed, and structured log lines
// for failed frames, ratchet transitions and replayed nonces.
type FrameObserver struct {
	collector *Collector
	tracer    Tracer
	logger    *Logger
}

// FrameObserverConfig configures a frame observer.
type FrameObserverConfig struct {
	Collector *Collector
	Tracer    Tracer
	Logger    *Logger
}

// NewFrameObserver creates a new frame observer.
func NewFrameObserver(cfg FrameObserverConfig) *FrameObserver {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = GetTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}

	return &FrameObserver{
		collector: cfg.Collector,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.Named("e2ee"),
	}
}

// OnEncrypt records encrypt metrics and starts a trace span for one
// Encrypt call. The returned function must be called with the outcome
// and the number of ciphertext-validation attempts it took.
func (o *FrameObserver) OnEncrypt(ctx context.Context, audio bool, attrs SpanAttributes) (context.Context, func(err error, attempts uint64)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanEncryptFrame, WithAttributes(attrs.ToMap()))

	return ctx, func(err error, attempts uint64) {
		duration := time.Since(start)
		o.collector.RecordEncrypt(audio, err == nil, attempts, duration)

		if err != nil {
			o.logger.Debug("encrypt failed", Fields{"error": err.Error(), "ssrc": attrs.Ssrc})
		}
		endSpan(err)
	}
}

// OnDecrypt records decrypt metrics and starts a trace span for one
// Decrypt call.
func (o *FrameObserver) OnDecrypt(ctx context.Context, audio bool, attrs SpanAttributes) (context.Context, func(err error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanDecryptFrame, WithAttributes(attrs.ToMap()))

	return ctx, func(err error) {
		duration := time.Since(start)
		o.collector.RecordDecrypt(audio, err == nil, duration)

		if err != nil {
			o.logger.Debug("decrypt failed", Fields{"error": err.Error()})
		}
		endSpan(err)
	}
}

// OnPassthrough records a frame that bypassed encryption or decryption.
func (o *FrameObserver) OnPassthrough(audio bool) {
	o.collector.RecordPassthrough(audio)
}

// OnRatchetTransition records a key ratchet transition.
func (o *FrameObserver) OnRatchetTransition(ctx context.Context) func(error) {
	o.collector.RecordRatchetTransition()
	_, endSpan := o.tracer.StartSpan(ctx, SpanRatchetTransition)
	o.logger.Info("ratchet transition")
	return endSpan
}

// OnReplayedNonce records a nonce rejected as replayed or out of window.
func (o *FrameObserver) OnReplayedNonce() {
	o.collector.RecordReplayedNonce()
	o.logger.Warn("replayed nonce rejected")
}

// Logger returns the observer's logger for custom logging.
func (o *FrameObserver) Logger() *Logger {
	return o.logger
}
