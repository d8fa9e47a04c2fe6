package frame

import (
	"encoding/binary"

	"github.com/pzverkov/e2ee-media/internal/constants"
	qerrors "github.com/pzverkov/e2ee-media/internal/errors"
	"github.com/pzverkov/e2ee-media/pkg/leb128"
)

// InboundFrameProcessor parses an encrypted frame's trailer, splitting the
// body into authenticated-but-unencrypted bytes and ciphertext bytes ready
// for AEAD decryption, and reconstructs the decrypted frame afterward.
type InboundFrameProcessor struct {
	isEncrypted   bool
	originalSize  int
	truncatedNonce uint32
	ranges        Ranges
	tag           []byte

	authenticated []byte
	ciphertext    []byte
	plaintext     []byte
}

// Clear resets all parsed state.
func (p *InboundFrameProcessor) Clear() {
	p.isEncrypted = false
	p.originalSize = 0
	p.truncatedNonce = 0
	p.ranges = p.ranges[:0]
	p.tag = nil
	p.authenticated = p.authenticated[:0]
	p.ciphertext = p.ciphertext[:0]
	p.plaintext = p.plaintext[:0]
}

// ParseFrame parses frame's trailer and splits its body. It clears any
// previous state first; on failure IsEncrypted reports false and the
// frame should be treated as unparseable.
func (p *InboundFrameProcessor) ParseFrame(frameData []byte) error {
	p.Clear()

	if len(frameData) < constants.MinSupplementalBytes {
		return qerrors.ErrFrameTooShort
	}

	markerAt := len(frameData) - 2
	marker := binary.LittleEndian.Uint16(frameData[markerAt:])
	if marker != constants.MagicMarker {
		return qerrors.ErrMarkerMismatch
	}

	sizeByteAt := markerAt - 1
	supplementalBytesSize := int(frameData[sizeByteAt])

	if len(frameData) < supplementalBytesSize {
		return qerrors.ErrSupplementalBytesInvalid
	}
	if supplementalBytesSize < constants.MinSupplementalBytes {
		return qerrors.ErrSupplementalBytesInvalid
	}

	supplementalAt := len(frameData) - supplementalBytesSize
	p.tag = append([]byte(nil), frameData[supplementalAt:supplementalAt+constants.TruncatedTagSize]...)

	nonceAt := supplementalAt + constants.TruncatedTagSize
	nonceValue, n, err := leb128.ReadUint64(frameData[nonceAt:sizeByteAt])
	if err != nil {
		return err
	}
	p.truncatedNonce = uint32(nonceValue)

	rangesAt := nonceAt + n
	ranges, err := DeserializeRanges(frameData[rangesAt:sizeByteAt])
	if err != nil {
		return err
	}
	p.ranges = ranges

	if err := p.ranges.Validate(uint64(len(frameData))); err != nil {
		return err
	}

	p.originalSize = len(frameData)

	frameIndex := 0
	for _, rng := range p.ranges {
		encryptedBytes := int(rng.Offset) - frameIndex
		if encryptedBytes > 0 {
			p.addCiphertextBytes(frameData[frameIndex : frameIndex+encryptedBytes])
		}
		p.addAuthenticatedBytes(frameData[rng.Offset : rng.Offset+rng.Size])
		frameIndex = int(rng.Offset + rng.Size)
	}

	actualFrameSize := len(frameData) - supplementalBytesSize
	if frameIndex < actualFrameSize {
		p.addCiphertextBytes(frameData[frameIndex:actualFrameSize])
	}

	p.plaintext = make([]byte, len(p.ciphertext))
	p.isEncrypted = true
	return nil
}

func (p *InboundFrameProcessor) addAuthenticatedBytes(b []byte) {
	p.authenticated = append(p.authenticated, b...)
}

func (p *InboundFrameProcessor) addCiphertextBytes(b []byte) {
	p.ciphertext = append(p.ciphertext, b...)
}

// IsEncrypted reports whether ParseFrame successfully parsed a trailer.
func (p *InboundFrameProcessor) IsEncrypted() bool { return p.isEncrypted }

// TruncatedNonce returns the wire-carried truncated synchronization nonce.
func (p *InboundFrameProcessor) TruncatedNonce() uint32 { return p.truncatedNonce }

// Tag returns the truncated authentication tag bytes.
func (p *InboundFrameProcessor) Tag() []byte { return p.tag }

// AuthenticatedBytes returns the unencrypted (additional authenticated
// data) bytes, in frame order.
func (p *InboundFrameProcessor) AuthenticatedBytes() []byte { return p.authenticated }

// CiphertextBytes returns the ciphertext bytes ready for AEAD decryption.
func (p *InboundFrameProcessor) CiphertextBytes() []byte { return p.ciphertext }

// PlaintextBuffer returns the scratch buffer decryption should write
// recovered plaintext into; it is sized to match CiphertextBytes.
func (p *InboundFrameProcessor) PlaintextBuffer() []byte { return p.plaintext }

// UnencryptedRanges returns the parsed unencrypted-range map.
func (p *InboundFrameProcessor) UnencryptedRanges() Ranges { return p.ranges }

// ReconstructFrame interleaves the authenticated bytes and decrypted
// plaintext bytes into dst according to the parsed ranges.
func (p *InboundFrameProcessor) ReconstructFrame(dst []byte) (int, error) {
	if !p.isEncrypted {
		return 0, qerrors.ErrFrameTooShort
	}
	if len(p.authenticated)+len(p.plaintext) > len(dst) {
		return 0, qerrors.ErrBufferTooSmall
	}
	return Reconstruct(p.ranges, p.authenticated, p.plaintext, dst)
}
