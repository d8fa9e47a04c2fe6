// Package constants defines the wire-format and lifecycle parameters for the
// end-to-end encrypted media frame transform.
package constants

import "time"

// MagicMarker terminates every encrypted frame trailer.
const MagicMarker uint16 = 0xFAFA

// AES-128-GCM parameters with a truncated authentication tag and a
// truncated, generation-shifted synchronization nonce.
const (
	// AESKeySize is the size of the AES-128 encryption key in bytes.
	AESKeySize = 16

	// AESNonceSize is the full nonce size AES-GCM expects, in bytes.
	AESNonceSize = 12

	// TruncatedNonceSize is the number of low-order nonce bytes carried on
	// the wire; the remaining high-order bytes are always zero.
	TruncatedNonceSize = 4

	// TruncatedNonceOffset is the byte offset of the truncated nonce within
	// the full AESNonceSize nonce buffer.
	TruncatedNonceOffset = AESNonceSize - TruncatedNonceSize

	// TruncatedTagSize is the number of authentication tag bytes carried on
	// the wire, instead of the full 16-byte GCM tag.
	TruncatedTagSize = 8
)

// Ratchet generation parameters.
const (
	// RatchetGenerationBytes is the width, in bytes, of the generation
	// counter folded into the top bits of the synchronization nonce.
	RatchetGenerationBytes = 1

	// RatchetGenerationShiftBits is the bit offset at which the generation
	// counter is packed into a synchronization nonce.
	RatchetGenerationShiftBits = 8 * (TruncatedNonceSize - RatchetGenerationBytes)

	// GenerationWrap is the modulus at which the wire generation counter
	// wraps back to zero.
	GenerationWrap = 256

	// MaxGenerationGap is the largest forward jump in generation a cryptor
	// manager will accept relative to its newest known generation.
	MaxGenerationGap = 250
)

// Frame trailer layout.
const (
	// SupplementalBytes is the fixed portion of trailer overhead: truncated
	// tag + supplemental size byte + magic marker. The nonce and range map
	// are variable length and added on top.
	SupplementalBytes = TruncatedTagSize + 1 /* supplemental size byte */ + 2 /* marker */

	// MinSupplementalBytes is the smallest possible trailer: SupplementalBytes
	// plus a one-byte LEB128 nonce and zero-length range map.
	MinSupplementalBytes = SupplementalBytes + 1

	// TransformPaddingBytes bounds worst-case range-map and nonce growth
	// when sizing scratch output buffers.
	TransformPaddingBytes = 64
)

// Cryptor and replay-tracking lifetime parameters.
const (
	// CryptorExpiry is how long a superseded cryptor remains usable after a
	// newer generation has been reported successful, to absorb reordering.
	CryptorExpiry = 10 * time.Second

	// DefaultTransitionDuration is how long a decryptor accepts passthrough
	// frames after a ratchet transition before requiring encryption.
	DefaultTransitionDuration = 10 * time.Second

	// MaxMissingNonces bounds the replay-tracking deque of big-nonces seen
	// out of order but not yet reported.
	MaxMissingNonces = 1000

	// MaxFramesPerSecond bounds the rate at which generations may advance,
	// used to reject implausibly-future generations.
	MaxFramesPerSecond = 170

	// StatsInterval is the minimum spacing between periodic statistics log
	// lines emitted by the encryptor and decryptor.
	StatsInterval = 10 * time.Second
)

// InitTransitionID is the sentinel transition identifier used before any
// ratchet transition has occurred.
const InitTransitionID = 0

// DisabledVersion marks passthrough (unencrypted) mode.
const DisabledVersion = 0

// CurrentProtocolVersion is the maximum protocol version this module
// produces when not in passthrough mode.
const CurrentProtocolVersion = 1

// MaxCiphertextValidationRetries bounds how many times the encryptor rerolls
// the truncated nonce to avoid a codec-hostile byte sequence in the
// reconstructed ciphertext region.
const MaxCiphertextValidationRetries = 10

// OpusSilencePacket is the well-known DTX/silence Opus packet that the
// decryptor passes through undecrypted regardless of ratchet state.
var OpusSilencePacket = []byte{0xF8, 0xFF, 0xFE}

// MediaType distinguishes audio and video frames, which carry independent
// statistics and codec assignments.
type MediaType uint8

const (
	// MediaUnknown is the zero value and is always rejected.
	MediaUnknown MediaType = iota
	MediaAudio
	MediaVideo
)

func (m MediaType) String() string {
	switch m {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Codec identifies the bitstream format of a frame, used to decide which
// byte ranges must remain unencrypted for downstream packetizers.
type Codec uint8

const (
	CodecUnknown Codec = iota
	CodecOpus
	CodecVP8
	CodecVP9
	CodecH264
	CodecH265
	CodecAV1
)

func (c Codec) String() string {
	switch c {
	case CodecOpus:
		return "opus"
	case CodecVP8:
		return "vp8"
	case CodecVP9:
		return "vp9"
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecAV1:
		return "av1"
	default:
		return "unknown"
	}
}

// IsVideo reports whether c is one of the recognized video codecs.
func (c Codec) IsVideo() bool {
	switch c {
	case CodecVP8, CodecVP9, CodecH264, CodecH265, CodecAV1:
		return true
	default:
		return false
	}
}
