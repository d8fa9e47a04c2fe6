// Package integration provides end-to-end integration tests for the
// e2ee-media frame transform.
//
// These tests verify the complete flow across pkg/e2ee, pkg/ratchet,
// pkg/metrics, and pkg/health rather than any single package in isolation.
package integration

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pzverkov/e2ee-media/internal/constants"
	"github.com/pzverkov/e2ee-media/pkg/clock"
	"github.com/pzverkov/e2ee-media/pkg/e2ee"
	"github.com/pzverkov/e2ee-media/pkg/health"
	"github.com/pzverkov/e2ee-media/pkg/metrics"
	"github.com/pzverkov/e2ee-media/pkg/ratchet"
)

// TestFullPipelineAllCodecs verifies every supported codec round-trips
// through a single Encryptor/Decryptor pair sharing one ratchet.
func TestFullPipelineAllCodecs(t *testing.T) {
	key := ratchet.MakeStaticSenderKey("integration-sender")
	keyRatchet := ratchet.NewStaticKeyRatchet(key)

	enc := e2ee.NewEncryptor()
	enc.SetKeyRatchet(keyRatchet)

	fc := clock.NewFake(time.Unix(0, 0))
	dec := e2ee.NewDecryptor(fc)
	dec.TransitionToKeyRatchet(keyRatchet, constants.DefaultTransitionDuration)

	samples := []struct {
		name      string
		codec     constants.Codec
		mediaType constants.MediaType
		frame     []byte
	}{
		{"opus", constants.CodecOpus, constants.MediaAudio, []byte("integration opus payload")},
		{"vp8", constants.CodecVP8, constants.MediaVideo, vp8Frame()},
		{"vp9", constants.CodecVP9, constants.MediaVideo, []byte{0x82, 0x49, 0x83, 0x42, 0xAA, 0xBB}},
		{"h264", constants.CodecH264, constants.MediaVideo, []byte{0x00, 0x00, 0x00, 0x01, 0x21, 0b1110_0000, 0xAA, 0xBB, 0xCC}},
		{"h265", constants.CodecH265, constants.MediaVideo, []byte{0x00, 0x00, 0x00, 0x01, 0x26, 0x01, 0xAF, 0xBC}},
		{"av1", constants.CodecAV1, constants.MediaVideo, []byte{byte(6 << 3) | 0b0_0000_010, 0x03, 0xAA, 0xBB, 0xCC}},
	}

	for i, s := range samples {
		s := s
		ssrc := uint32(100 + i)
		t.Run(s.name, func(t *testing.T) {
			enc.AssignSsrcToCodec(ssrc, s.codec)

			ciphertext := make([]byte, enc.GetMaxCiphertextByteSize(len(s.frame)))
			n, err := enc.Encrypt(s.mediaType, ssrc, s.frame, ciphertext)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}

			plaintext := make([]byte, dec.GetMaxPlaintextByteSize(n))
			m, err := dec.Decrypt(s.mediaType, ciphertext[:n], plaintext)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}

			if !bytes.Equal(plaintext[:m], s.frame) {
				t.Errorf("round trip mismatch for %s: got %x, want %x", s.name, plaintext[:m], s.frame)
			}
		})
	}
}

func vp8Frame() []byte {
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	data[0] = 0x00
	return data
}

// TestRatchetTransitionGracePeriod verifies frames encrypted under the
// prior ratchet still decrypt during the transition window, and that the
// old ratchet is rejected once it fully expires.
func TestRatchetTransitionGracePeriod(t *testing.T) {
	oldKey := ratchet.MakeStaticSenderKey("old-sender")
	newKey := ratchet.MakeStaticSenderKey("new-sender")

	enc := e2ee.NewEncryptor()
	enc.SetKeyRatchet(ratchet.NewStaticKeyRatchet(oldKey))
	enc.AssignSsrcToCodec(1, constants.CodecOpus)

	plaintext := []byte("frame sent right before rotation")
	ciphertext := make([]byte, enc.GetMaxCiphertextByteSize(len(plaintext)))
	n, err := enc.Encrypt(constants.MediaAudio, 1, plaintext, ciphertext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	now := time.Unix(5000, 0)
	fc := clock.NewFake(now)
	dec := e2ee.NewDecryptor(fc)
	dec.TransitionToKeyRatchet(ratchet.NewStaticKeyRatchet(oldKey), constants.DefaultTransitionDuration)
	dec.TransitionToKeyRatchet(ratchet.NewStaticKeyRatchet(newKey), constants.DefaultTransitionDuration)

	plaintextBuf := make([]byte, dec.GetMaxPlaintextByteSize(n))
	if _, err := dec.Decrypt(constants.MediaAudio, ciphertext[:n], plaintextBuf); err != nil {
		t.Fatalf("expected old-ratchet frame to decrypt during grace period: %v", err)
	}

	fc.Advance(constants.DefaultTransitionDuration + time.Second)

	if _, err := dec.Decrypt(constants.MediaAudio, ciphertext[:n], plaintextBuf); err == nil {
		t.Fatal("expected old-ratchet frame to be rejected after the grace period expires")
	}
}

// TestPassthroughFallbackAndRestoration verifies a deployment can fall
// back to passthrough mode, then re-enable encryption once every
// participant is ready.
func TestPassthroughFallbackAndRestoration(t *testing.T) {
	key := ratchet.MakeStaticSenderKey("fallback-sender")
	keyRatchet := ratchet.NewStaticKeyRatchet(key)

	enc := e2ee.NewEncryptor()
	enc.SetKeyRatchet(keyRatchet)
	enc.AssignSsrcToCodec(1, constants.CodecOpus)
	enc.SetPassthroughMode(true)

	now := time.Unix(1000, 0)
	fc := clock.NewFake(now)
	dec := e2ee.NewDecryptor(fc)
	dec.TransitionToPassthroughMode(true, constants.DefaultTransitionDuration)

	plaintext := []byte("plaintext during downgrade window")
	out := make([]byte, len(plaintext))
	n, err := enc.Encrypt(constants.MediaAudio, 1, plaintext, out)
	if err != nil {
		t.Fatalf("passthrough encrypt failed: %v", err)
	}
	if !bytes.Equal(out[:n], plaintext) {
		t.Fatal("expected passthrough frame to equal plaintext")
	}

	recovered := make([]byte, dec.GetMaxPlaintextByteSize(n))
	m, err := dec.Decrypt(constants.MediaAudio, out[:n], recovered)
	if err != nil {
		t.Fatalf("passthrough decrypt failed: %v", err)
	}
	if !bytes.Equal(recovered[:m], plaintext) {
		t.Fatal("expected passthrough decrypt to recover plaintext unchanged")
	}

	// Restore encryption on both ends.
	enc.SetPassthroughMode(false)
	dec.TransitionToKeyRatchet(keyRatchet, constants.DefaultTransitionDuration)
	dec.TransitionToPassthroughMode(false, 0)
	fc.Advance(constants.DefaultTransitionDuration + time.Second)

	ciphertext := make([]byte, enc.GetMaxCiphertextByteSize(len(plaintext)))
	n, err = enc.Encrypt(constants.MediaAudio, 1, plaintext, ciphertext)
	if err != nil {
		t.Fatalf("post-restoration encrypt failed: %v", err)
	}
	if bytes.Equal(ciphertext[:n], plaintext) {
		t.Fatal("expected frame to be actually encrypted after restoring encryption")
	}

	recovered = make([]byte, dec.GetMaxPlaintextByteSize(n))
	m, err = dec.Decrypt(constants.MediaAudio, ciphertext[:n], recovered)
	if err != nil {
		t.Fatalf("post-restoration decrypt failed: %v", err)
	}
	if !bytes.Equal(recovered[:m], plaintext) {
		t.Fatal("expected post-restoration round trip to recover plaintext")
	}
}

// TestConcurrentSsrcs verifies concurrent producers on distinct SSRCs can
// share a single Encryptor/Decryptor pair without interference.
func TestConcurrentSsrcs(t *testing.T) {
	key := ratchet.MakeStaticSenderKey("concurrent-sender")
	keyRatchet := ratchet.NewStaticKeyRatchet(key)

	enc := e2ee.NewEncryptor()
	enc.SetKeyRatchet(keyRatchet)

	fc := clock.NewFake(time.Unix(0, 0))
	dec := e2ee.NewDecryptor(fc)
	dec.TransitionToKeyRatchet(keyRatchet, constants.DefaultTransitionDuration)

	const streams = 8
	const framesPerStream = 50

	var wg sync.WaitGroup
	errs := make(chan error, streams)

	for s := 0; s < streams; s++ {
		ssrc := uint32(2000 + s)
		enc.AssignSsrcToCodec(ssrc, constants.CodecOpus)

		wg.Add(1)
		go func(ssrc uint32) {
			defer wg.Done()
			for i := 0; i < framesPerStream; i++ {
				plaintext := []byte("concurrent frame payload")
				ciphertext := make([]byte, enc.GetMaxCiphertextByteSize(len(plaintext)))
				n, err := enc.Encrypt(constants.MediaAudio, ssrc, plaintext, ciphertext)
				if err != nil {
					errs <- err
					return
				}

				recovered := make([]byte, dec.GetMaxPlaintextByteSize(n))
				m, err := dec.Decrypt(constants.MediaAudio, ciphertext[:n], recovered)
				if err != nil {
					errs <- err
					return
				}
				if !bytes.Equal(recovered[:m], plaintext) {
					errs <- errors.New("round trip mismatch")
					return
				}
			}
		}(ssrc)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent stream error: %v", err)
		}
	}
}

// TestObservabilityEndToEnd verifies the Collector, FrameObserver, and
// health.NewCheck wiring all reflect a real encrypt/decrypt/ratchet
// sequence, not just isolated unit calls.
func TestObservabilityEndToEnd(t *testing.T) {
	collector := metrics.NewCollector(metrics.Labels{"service": "integration-test"})
	observer := metrics.NewFrameObserver(metrics.FrameObserverConfig{Collector: collector})

	key := ratchet.MakeStaticSenderKey("observed-sender")
	keyRatchet := ratchet.NewStaticKeyRatchet(key)

	enc := e2ee.NewEncryptor()
	enc.SetObserver(observer)
	enc.SetKeyRatchet(keyRatchet)
	enc.AssignSsrcToCodec(1, constants.CodecVP8)

	fc := clock.NewFake(time.Unix(0, 0))
	dec := e2ee.NewDecryptor(fc)
	dec.SetObserver(observer)
	dec.TransitionToKeyRatchet(keyRatchet, constants.DefaultTransitionDuration)

	hc := health.NewCheck(collector, "test", enc, dec)
	if report := hc.Check(); report.Status != metrics.HealthStatusHealthy {
		t.Fatalf("expected healthy status once both sides are wired up, got %s", report.Status)
	}

	for i := 0; i < 20; i++ {
		plaintext := vp8Frame()
		ciphertext := make([]byte, enc.GetMaxCiphertextByteSize(len(plaintext)))
		n, err := enc.Encrypt(constants.MediaVideo, 1, plaintext, ciphertext)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}

		recovered := make([]byte, dec.GetMaxPlaintextByteSize(n))
		if _, err := dec.Decrypt(constants.MediaVideo, ciphertext[:n], recovered); err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
	}

	snap := collector.Snapshot()
	if snap.VideoEncryptSuccess != 20 {
		t.Errorf("expected 20 video encrypt successes, got %d", snap.VideoEncryptSuccess)
	}
	if snap.VideoDecryptSuccess != 20 {
		t.Errorf("expected 20 video decrypt successes, got %d", snap.VideoDecryptSuccess)
	}
	if snap.RatchetTransitions != 1 {
		t.Errorf("expected 1 ratchet transition, got %d", snap.RatchetTransitions)
	}
}
