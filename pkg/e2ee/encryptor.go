// Package e2ee wires together the frame dissectors, the AEAD cryptor, and
// the ratchet-backed cryptor manager into the two operations an RTP sender
// or receiver actually calls: Encrypt and Decrypt.
package e2ee

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pzverkov/e2ee-media/internal/constants"
	qerrors "github.com/pzverkov/e2ee-media/internal/errors"
	"github.com/pzverkov/e2ee-media/pkg/aead"
	"github.com/pzverkov/e2ee-media/pkg/codec"
	"github.com/pzverkov/e2ee-media/pkg/cryptor"
	"github.com/pzverkov/e2ee-media/pkg/frame"
	"github.com/pzverkov/e2ee-media/pkg/leb128"
	"github.com/pzverkov/e2ee-media/pkg/metrics"
	"github.com/pzverkov/e2ee-media/pkg/pool"
	"github.com/pzverkov/e2ee-media/pkg/ratchet"
)

// maxCiphertextValidationRetries bounds the encrypt/validate/reroll loop:
// some codecs' packetizers choke on specific byte sequences, so a failed
// validation rerolls the nonce and retries rather than sending an unsafe
// frame.
const maxCiphertextValidationRetries = constants.MaxCiphertextValidationRetries

type ssrcCodec struct {
	ssrc  uint32
	codec constants.Codec
}

// Encryptor seals outbound media frames under a single sender's key
// ratchet, dissecting each frame by codec so that only the bytes a
// depacketizer must see remain unencrypted.
type Encryptor struct {
	keyGenMu             sync.Mutex
	keyRatchet           ratchet.KeyRatchet
	cryptor              aead.Cryptor
	currentKeyGeneration uint32
	truncatedNonce       uint32

	passthroughMode atomic.Bool

	ssrcMu         sync.Mutex
	ssrcCodecPairs []ssrcCodec

	processors *pool.OutboundProcessorPool

	observer *metrics.FrameObserver

	// stats is indexed directly by constants.MediaType; index 0
	// (MediaUnknown) is never used.
	stats [3]mediaStats

	lastStatsMu   sync.Mutex
	lastStatsTime time.Time

	protocolVersionMu       sync.Mutex
	currentProtocolVersion  uint8
	onProtocolVersionChange func(uint8)
}

// NewEncryptor returns an Encryptor with no key ratchet set; callers must
// call SetKeyRatchet before Encrypt will do anything but fail.
func NewEncryptor() *Encryptor {
	return &Encryptor{
		processors: pool.NewOutboundProcessorPool(),
	}
}

// SetKeyRatchet installs keyRatchet as the source of per-generation keys,
// resetting generation/nonce state back to zero.
func (e *Encryptor) SetKeyRatchet(keyRatchet ratchet.KeyRatchet) {
	e.keyGenMu.Lock()
	defer e.keyGenMu.Unlock()
	e.keyRatchet = keyRatchet
	e.cryptor = nil
	e.currentKeyGeneration = 0
	e.truncatedNonce = 0
}

// SetObserver attaches a metrics.FrameObserver so every Encrypt call
// records a trace span and Collector metrics in addition to the
// built-in atomic counters and periodic log lines.
func (e *Encryptor) SetObserver(o *metrics.FrameObserver) {
	e.observer = o
}

// HasKeyRatchet reports whether a key ratchet has been installed via
// SetKeyRatchet. Encrypt fails for every frame until this is true, unless
// passthrough mode is enabled.
func (e *Encryptor) HasKeyRatchet() bool {
	e.keyGenMu.Lock()
	defer e.keyGenMu.Unlock()
	return e.keyRatchet != nil
}

// SetPassthroughMode enables or disables passthrough (unencrypted) mode.
func (e *Encryptor) SetPassthroughMode(passthrough bool) {
	e.passthroughMode.Store(passthrough)
	if passthrough {
		e.updateCurrentProtocolVersion(constants.DisabledVersion)
	} else {
		e.updateCurrentProtocolVersion(constants.CurrentProtocolVersion)
	}
}

// OnProtocolVersionChange registers a callback invoked whenever the
// negotiated protocol version changes.
func (e *Encryptor) OnProtocolVersionChange(fn func(uint8)) {
	e.protocolVersionMu.Lock()
	defer e.protocolVersionMu.Unlock()
	e.onProtocolVersionChange = fn
}

// AssignSsrcToCodec records which codec a given SSRC's frames use.
func (e *Encryptor) AssignSsrcToCodec(ssrc uint32, c constants.Codec) {
	e.ssrcMu.Lock()
	defer e.ssrcMu.Unlock()
	for i := range e.ssrcCodecPairs {
		if e.ssrcCodecPairs[i].ssrc == ssrc {
			e.ssrcCodecPairs[i].codec = c
			return
		}
	}
	e.ssrcCodecPairs = append(e.ssrcCodecPairs, ssrcCodec{ssrc: ssrc, codec: c})
}

// CodecForSsrc returns the codec previously assigned to ssrc, or
// constants.CodecUnknown if none was assigned.
func (e *Encryptor) CodecForSsrc(ssrc uint32) constants.Codec {
	e.ssrcMu.Lock()
	defer e.ssrcMu.Unlock()
	for _, pair := range e.ssrcCodecPairs {
		if pair.ssrc == ssrc {
			return pair.codec
		}
	}
	return constants.CodecUnknown
}

// GetMaxCiphertextByteSize returns the largest buffer size Encrypt could
// possibly need to write frameSize plaintext bytes.
func (e *Encryptor) GetMaxCiphertextByteSize(frameSize int) int {
	return frameSize + constants.SupplementalBytes + constants.TransformPaddingBytes
}

// Encrypt dissects plaintextFrame by the codec assigned to ssrc, encrypts
// the codec-determined ciphertext ranges, and writes the resulting
// wire-format frame (ciphertext + unencrypted ranges + trailer) into
// encryptedFrame, returning the number of bytes written.
func (e *Encryptor) Encrypt(mediaType constants.MediaType, ssrc uint32, plaintextFrame, encryptedFrame []byte) (int, error) {
	if mediaType != constants.MediaAudio && mediaType != constants.MediaVideo {
		return 0, qerrors.ErrInvalidMediaType
	}

	stats := &e.stats[mediaType]

	if e.passthroughMode.Load() {
		n := copy(encryptedFrame, plaintextFrame)
		stats.passthroughCount.Add(1)
		if e.observer != nil {
			e.observer.OnPassthrough(mediaType == constants.MediaAudio)
		}
		return n, nil
	}

	e.keyGenMu.Lock()
	hasRatchet := e.keyRatchet != nil
	e.keyGenMu.Unlock()
	if !hasRatchet {
		stats.encryptFailureCount.Add(1)
		return 0, qerrors.ErrNoKeyRatchet
	}

	start := time.Now()

	var endObserved func(err error, attempts uint64)
	if e.observer != nil {
		_, endObserved = e.observer.OnEncrypt(context.Background(), mediaType == constants.MediaAudio, metrics.SpanAttributes{
			MediaType:  mediaType.String(),
			Ssrc:       ssrc,
			FrameBytes: len(plaintextFrame),
		})
	}

	c := e.CodecForSsrc(ssrc)

	fp := e.processors.Get()
	defer e.processors.Put(fp)

	fp.BeginCodec(c)
	ok := codec.Dissect(fp, c, plaintextFrame)
	fp.FinishDissection(ok, plaintextFrame)

	unencryptedBytes := fp.UnencryptedBytes()
	encryptedBytes := fp.EncryptedBytes()
	ciphertextBytes := fp.CiphertextBytes()
	unencryptedRanges := fp.UnencryptedRanges()

	rangesSize, err := unencryptedRanges.SerializedSize()
	if err != nil {
		stats.encryptFailureCount.Add(1)
		if endObserved != nil {
			endObserved(err, 0)
		}
		return 0, qerrors.NewFrameError(c.String(), err)
	}

	frameSize := len(encryptedBytes) + len(unencryptedBytes)

	bytesWritten, attempts, writeErr := e.encryptWithRetries(fp, frameSize, rangesSize, unencryptedBytes, encryptedBytes, ciphertextBytes, unencryptedRanges, encryptedFrame, stats)

	stats.encryptDurationNs.Add(int64(time.Since(start)))

	if writeErr != nil {
		stats.encryptFailureCount.Add(1)
		e.maybeLogStats(mediaType, ssrc, len(plaintextFrame))
		if endObserved != nil {
			endObserved(writeErr, attempts)
		}
		return 0, writeErr
	}

	stats.encryptSuccessCount.Add(1)
	e.maybeLogStats(mediaType, ssrc, len(plaintextFrame))
	if endObserved != nil {
		endObserved(nil, attempts)
	}
	return bytesWritten, nil
}

func (e *Encryptor) encryptWithRetries(
	fp *frame.OutboundFrameProcessor,
	frameSize, rangesSize int,
	unencryptedBytes, encryptedBytes, ciphertextBytes []byte,
	unencryptedRanges frame.Ranges,
	encryptedFrame []byte,
	stats *mediaStats,
) (int, uint64, error) {
	for attempt := 1; attempt <= maxCiphertextValidationRetries; attempt++ {
		cr, truncatedNonce, genErr := e.getNextCryptorAndNonce()
		if genErr != nil {
			return 0, uint64(attempt), genErr
		}

		var nonce [constants.AESNonceSize]byte
		binary.BigEndian.PutUint32(nonce[constants.TruncatedNonceOffset:], truncatedNonce)

		if len(encryptedFrame) < frameSize+constants.TruncatedTagSize {
			return 0, uint64(attempt), qerrors.ErrBufferTooSmall
		}
		tagBuf := encryptedFrame[frameSize : frameSize+constants.TruncatedTagSize]

		if err := cr.Encrypt(ciphertextBytes, encryptedBytes, nonce[:], unencryptedBytes, tagBuf); err != nil {
			return 0, uint64(attempt), qerrors.NewCryptoError("Encrypt", err)
		}

		stats.encryptAttempts.Add(1)
		stats.bumpMaxAttempts(uint64(attempt))

		reconstructed, err := fp.ReconstructFrame(encryptedFrame)
		if err != nil || reconstructed != frameSize {
			return 0, uint64(attempt), qerrors.ErrEncryptionFailed
		}

		nonceSize := leb128.Size(uint64(truncatedNonce))
		at := frameSize + constants.TruncatedTagSize
		if len(encryptedFrame) < at+nonceSize+rangesSize+1+2 {
			return 0, uint64(attempt), qerrors.ErrBufferTooSmall
		}

		at += leb128.WriteUint64(uint64(truncatedNonce), encryptedFrame[at:])

		n, err := unencryptedRanges.Serialize(encryptedFrame[at:])
		if err != nil {
			return 0, uint64(attempt), err
		}
		at += n

		supplementalBytes := constants.SupplementalBytes + nonceSize + rangesSize
		if supplementalBytes > 0xFF {
			return 0, uint64(attempt), qerrors.ErrEncryptionFailed
		}
		encryptedFrame[at] = byte(supplementalBytes)
		at++

		binary.LittleEndian.PutUint16(encryptedFrame[at:], constants.MagicMarker)
		at += 2

		if codec.ValidateEncryptedFrame(fp, encryptedFrame[:at]) {
			return at, uint64(attempt), nil
		}
		if attempt >= maxCiphertextValidationRetries {
			return 0, uint64(attempt), qerrors.ErrEncryptionFailed
		}
	}
	return 0, maxCiphertextValidationRetries, qerrors.ErrEncryptionFailed
}

func (e *Encryptor) maybeLogStats(mediaType constants.MediaType, ssrc uint32, frameSize int) {
	now := time.Now()
	e.lastStatsMu.Lock()
	due := now.Sub(e.lastStatsTime) > constants.StatsInterval
	if due {
		e.lastStatsTime = now
	}
	e.lastStatsMu.Unlock()
	if !due {
		return
	}
	metrics.GetLogger().Info("encrypt stats", metrics.Fields{
		"audio_success": e.stats[constants.MediaAudio].encryptSuccessCount.Load(),
		"video_success": e.stats[constants.MediaVideo].encryptSuccessCount.Load(),
		"audio_failure": e.stats[constants.MediaAudio].encryptFailureCount.Load(),
		"video_failure": e.stats[constants.MediaVideo].encryptFailureCount.Load(),
		"media_type":    mediaType.String(),
		"ssrc":          ssrc,
		"frame_size":    frameSize,
	})
}

// Stats returns a snapshot of the accumulated counters for mediaType.
func (e *Encryptor) Stats(mediaType constants.MediaType) Snapshot {
	return e.stats[mediaType].snapshot()
}

// getNextCryptorAndNonce increments the truncated nonce, re-derives the
// cryptor's generation from it, and (only if the generation actually
// changed, or no cryptor exists yet) rebuilds the cryptor from the key
// ratchet.
func (e *Encryptor) getNextCryptorAndNonce() (aead.Cryptor, uint32, error) {
	e.keyGenMu.Lock()
	defer e.keyGenMu.Unlock()

	if e.keyRatchet == nil {
		return nil, 0, qerrors.ErrNoKeyRatchet
	}

	e.truncatedNonce++
	generation := cryptor.ComputeWrappedGeneration(e.currentKeyGeneration, e.truncatedNonce>>constants.RatchetGenerationShiftBits)

	if generation != e.currentKeyGeneration || e.cryptor == nil {
		e.currentKeyGeneration = generation
		key := e.keyRatchet.GetKey(e.currentKeyGeneration)
		c, err := aead.CreateCryptor(key)
		if err != nil {
			return nil, 0, err
		}
		e.cryptor = c
	}

	return e.cryptor, e.truncatedNonce, nil
}

func (e *Encryptor) updateCurrentProtocolVersion(version uint8) {
	e.protocolVersionMu.Lock()
	if e.currentProtocolVersion == version {
		e.protocolVersionMu.Unlock()
		return
	}
	e.currentProtocolVersion = version
	cb := e.onProtocolVersionChange
	e.protocolVersionMu.Unlock()
	if cb != nil {
		cb(version)
	}
}
