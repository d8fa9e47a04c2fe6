package e2ee

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pzverkov/e2ee-media/internal/constants"
	qerrors "github.com/pzverkov/e2ee-media/internal/errors"
	"github.com/pzverkov/e2ee-media/pkg/clock"
	"github.com/pzverkov/e2ee-media/pkg/cryptor"
	"github.com/pzverkov/e2ee-media/pkg/frame"
	"github.com/pzverkov/e2ee-media/pkg/metrics"
	"github.com/pzverkov/e2ee-media/pkg/pool"
	"github.com/pzverkov/e2ee-media/pkg/ratchet"
)

var timeMax = time.Unix(1<<62, 0)

// Decryptor opens inbound media frames against a sequence of ratchet
// transitions: the newest transition's cryptor manager is tried first,
// falling back to older ones while they remain within their transition
// expiry, so frames sent just before a ratchet transition can still be
// decrypted.
type Decryptor struct {
	clock clock.Clock

	mu               sync.Mutex
	cryptorManagers  []*cryptor.Manager
	allowPassthroughUntil time.Time

	processors *pool.InboundProcessorPool

	observer *metrics.FrameObserver

	stats [3]mediaStats

	lastStatsMu   sync.Mutex
	lastStatsTime time.Time
}

// NewDecryptor returns a Decryptor with no ratchet transitions yet;
// passthrough is disabled until TransitionToPassthroughMode is called.
func NewDecryptor(c clock.Clock) *Decryptor {
	return &Decryptor{
		clock:      c,
		processors: pool.NewInboundProcessorPool(),
	}
}

// SetObserver attaches a metrics.FrameObserver so every Decrypt call
// records a trace span and Collector metrics in addition to the
// built-in atomic counters and periodic log lines.
func (d *Decryptor) SetObserver(o *metrics.FrameObserver) {
	d.observer = o
}

// TransitionToKeyRatchet updates the expiry of every existing cryptor
// manager to transitionExpiry from now, then appends a new cryptor manager
// backed by keyRatchet so it becomes the newest (preferred) one.
func (d *Decryptor) TransitionToKeyRatchet(keyRatchet ratchet.KeyRatchet, transitionExpiry time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.updateCryptorManagerExpiryLocked(transitionExpiry)

	if keyRatchet != nil {
		d.cryptorManagers = append(d.cryptorManagers, cryptor.NewManager(d.clock, keyRatchet))
		if d.observer != nil {
			d.observer.OnRatchetTransition(context.Background())(nil)
		}
	}
}

// HasLiveCryptorManager reports whether at least one unexpired cryptor
// manager (installed by TransitionToKeyRatchet) is currently tracked.
func (d *Decryptor) HasLiveCryptorManager() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanupExpiredCryptorManagersLocked()
	return len(d.cryptorManagers) > 0
}

// TransitionToPassthroughMode enables or bounds passthrough (unencrypted
// frame) acceptance. Enabling it removes any expiry; disabling it caps the
// expiry at transitionExpiry from now.
func (d *Decryptor) TransitionToPassthroughMode(passthrough bool, transitionExpiry time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if passthrough {
		d.allowPassthroughUntil = timeMax
		return
	}
	maxExpiry := d.clock.Now().Add(transitionExpiry)
	if maxExpiry.Before(d.allowPassthroughUntil) {
		d.allowPassthroughUntil = maxExpiry
	}
}

func (d *Decryptor) updateCryptorManagerExpiryLocked(expiry time.Duration) {
	maxExpiryTime := d.clock.Now().Add(expiry)
	for _, m := range d.cryptorManagers {
		m.UpdateExpiry(maxExpiryTime)
	}
}

func (d *Decryptor) cleanupExpiredCryptorManagersLocked() {
	for len(d.cryptorManagers) > 0 && d.cryptorManagers[0].IsExpired() {
		d.cryptorManagers = d.cryptorManagers[1:]
	}
}

// GetMaxPlaintextByteSize returns the largest buffer size Decrypt could
// possibly need for an encrypted frame of encryptedFrameSize bytes.
func (d *Decryptor) GetMaxPlaintextByteSize(encryptedFrameSize int) int {
	return encryptedFrameSize
}

// Decrypt parses encryptedFrame's trailer, tries every tracked cryptor
// manager from newest to oldest, and on success reconstructs the decrypted
// frame into plaintextFrame, returning the number of bytes written.
// Opus DTX silence frames and (while passthrough remains allowed)
// unencrypted frames are passed through verbatim.
func (d *Decryptor) Decrypt(mediaType constants.MediaType, encryptedFrame, plaintextFrame []byte) (int, error) {
	if mediaType != constants.MediaAudio && mediaType != constants.MediaVideo {
		return 0, qerrors.ErrInvalidMediaType
	}

	stats := &d.stats[mediaType]
	start := d.clock.Now()

	if mediaType == constants.MediaAudio && bytes.Equal(encryptedFrame, constants.OpusSilencePacket) {
		n := copy(plaintextFrame, encryptedFrame)
		return n, nil
	}

	d.mu.Lock()
	d.cleanupExpiredCryptorManagersLocked()
	canUsePassthrough := d.allowPassthroughUntil.After(start)
	managers := append([]*cryptor.Manager(nil), d.cryptorManagers...)
	d.mu.Unlock()

	var endObserved func(error)
	if d.observer != nil {
		_, endObserved = d.observer.OnDecrypt(context.Background(), mediaType == constants.MediaAudio, metrics.SpanAttributes{
			MediaType:  mediaType.String(),
			FrameBytes: len(encryptedFrame),
		})
	}

	fp := d.processors.Get()
	defer d.processors.Put(fp)

	parseErr := fp.ParseFrame(encryptedFrame)

	if (parseErr != nil || !fp.IsEncrypted()) && canUsePassthrough {
		n := copy(plaintextFrame, encryptedFrame)
		stats.passthroughCount.Add(1)
		if d.observer != nil {
			d.observer.OnPassthrough(mediaType == constants.MediaAudio)
		}
		if endObserved != nil {
			endObserved(nil)
		}
		return n, nil
	}
	if parseErr != nil || !fp.IsEncrypted() {
		stats.decryptFailureCount.Add(1)
		if endObserved != nil {
			endObserved(qerrors.ErrDecryptionFailed)
		}
		return 0, qerrors.ErrDecryptionFailed
	}

	success := false
	for i := len(managers) - 1; i >= 0; i-- {
		if d.decryptWith(managers[i], mediaType, fp) {
			success = true
			break
		}
	}

	var bytesWritten int
	var err error
	if success {
		stats.decryptSuccessCount.Add(1)
		bytesWritten, err = fp.ReconstructFrame(plaintextFrame)
		if err != nil {
			bytesWritten = 0
		}
	} else {
		stats.decryptFailureCount.Add(1)
		err = qerrors.ErrDecryptionFailed
	}

	end := d.clock.Now()
	d.maybeLogStats(end)
	stats.decryptDurationNs.Add(int64(end.Sub(start)))

	if endObserved != nil {
		endObserved(err)
	}

	return bytesWritten, err
}

func (d *Decryptor) decryptWith(m *cryptor.Manager, mediaType constants.MediaType, fp *frame.InboundFrameProcessor) bool {
	tag := fp.Tag()
	truncatedNonce := fp.TruncatedNonce()

	var nonce [constants.AESNonceSize]byte
	binary.BigEndian.PutUint32(nonce[constants.TruncatedNonceOffset:], truncatedNonce)

	generation := m.ComputeWrappedGeneration(truncatedNonce >> constants.RatchetGenerationShiftBits)

	if !m.CanProcessNonce(generation, truncatedNonce) {
		if d.observer != nil {
			d.observer.OnReplayedNonce()
		}
		return false
	}

	cr, ok := m.GetCryptor(generation)
	if !ok {
		return false
	}

	err := cr.Decrypt(fp.PlaintextBuffer(), fp.CiphertextBytes(), nonce[:], fp.AuthenticatedBytes(), tag)
	d.stats[mediaType].decryptAttempts.Add(1)

	if err != nil {
		return false
	}

	m.ReportCryptorSuccess(generation, truncatedNonce)
	return true
}

func (d *Decryptor) maybeLogStats(now time.Time) {
	d.lastStatsMu.Lock()
	due := now.Sub(d.lastStatsTime) > constants.StatsInterval
	if due {
		d.lastStatsTime = now
	}
	d.lastStatsMu.Unlock()
	if !due {
		return
	}
	metrics.GetLogger().Info("decrypt stats", metrics.Fields{
		"audio_success": d.stats[constants.MediaAudio].decryptSuccessCount.Load(),
		"video_success": d.stats[constants.MediaVideo].decryptSuccessCount.Load(),
		"audio_failure": d.stats[constants.MediaAudio].decryptFailureCount.Load(),
		"video_failure": d.stats[constants.MediaVideo].decryptFailureCount.Load(),
	})
}

// Stats returns a snapshot of the accumulated counters for mediaType.
func (d *Decryptor) Stats(mediaType constants.MediaType) Snapshot {
	return d.stats[mediaType].snapshot()
}
