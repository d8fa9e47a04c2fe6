package frame

import (
	"github.com/pzverkov/e2ee-media/internal/constants"
	qerrors "github.com/pzverkov/e2ee-media/internal/errors"
)

// OutboundFrameProcessor splits a plaintext media frame into the bytes that
// must remain unencrypted (codec headers, start codes) and the bytes that
// are encrypted, tracking the resulting unencrypted-range map so the frame
// can be reconstructed on the wire. It implements codec.Writer.
type OutboundFrameProcessor struct {
	codec      constants.Codec
	frameIndex int

	unencryptedBytes []byte
	encryptedBytes   []byte
	ciphertextBytes  []byte
	ranges           Ranges
}

// Reset clears all processor state so it can be reused for another frame.
func (p *OutboundFrameProcessor) Reset() {
	p.codec = constants.CodecUnknown
	p.frameIndex = 0
	p.unencryptedBytes = p.unencryptedBytes[:0]
	p.encryptedBytes = p.encryptedBytes[:0]
	p.ciphertextBytes = p.ciphertextBytes[:0]
	p.ranges = p.ranges[:0]
}

// AddUnencryptedBytes appends bytes that must stay unencrypted, extending
// the processor's current range if it is contiguous with the last one.
func (p *OutboundFrameProcessor) AddUnencryptedBytes(b []byte) {
	if n := len(p.ranges); n > 0 {
		last := &p.ranges[n-1]
		if last.Offset+last.Size == uint64(p.frameIndex) {
			last.Size += uint64(len(b))
			p.unencryptedBytes = append(p.unencryptedBytes, b...)
			p.frameIndex += len(b)
			return
		}
	}
	p.ranges = append(p.ranges, Range{Offset: uint64(p.frameIndex), Size: uint64(len(b))})
	p.unencryptedBytes = append(p.unencryptedBytes, b...)
	p.frameIndex += len(b)
}

// AddEncryptedBytes appends bytes that will be encrypted.
func (p *OutboundFrameProcessor) AddEncryptedBytes(b []byte) {
	p.encryptedBytes = append(p.encryptedBytes, b...)
	p.frameIndex += len(b)
}

// BeginCodec resets the processor and marks the codec the frame belongs to.
// Callers then dissect the frame via codec.Dissect(processor, codec, frame)
// before calling FinishDissection.
func (p *OutboundFrameProcessor) BeginCodec(c constants.Codec) {
	p.Reset()
	p.codec = c
}

// FinishDissection is called after dissection completes. If ok is false
// (the dissector rejected the frame, or no codec-aware dissector applies),
// the processor falls back to encrypting the frame in its entirety.
func (p *OutboundFrameProcessor) FinishDissection(ok bool, frame []byte) {
	if !ok {
		p.frameIndex = 0
		p.unencryptedBytes = p.unencryptedBytes[:0]
		p.encryptedBytes = p.encryptedBytes[:0]
		p.ranges = p.ranges[:0]
		p.AddEncryptedBytes(frame)
	}
	p.ciphertextBytes = append(p.ciphertextBytes[:0], make([]byte, len(p.encryptedBytes))...)
}

// Codec returns the codec this processor was most recently configured for.
func (p *OutboundFrameProcessor) Codec() constants.Codec { return p.codec }

// UnencryptedBytes returns the accumulated unencrypted (additional
// authenticated data) bytes, in frame order.
func (p *OutboundFrameProcessor) UnencryptedBytes() []byte { return p.unencryptedBytes }

// EncryptedBytes returns the accumulated plaintext bytes to be encrypted,
// in frame order.
func (p *OutboundFrameProcessor) EncryptedBytes() []byte { return p.encryptedBytes }

// CiphertextBytes returns the scratch buffer encryption should write
// ciphertext into; it is sized to match EncryptedBytes.
func (p *OutboundFrameProcessor) CiphertextBytes() []byte { return p.ciphertextBytes }

// UnencryptedRanges returns the unencrypted-range map accumulated so far.
func (p *OutboundFrameProcessor) UnencryptedRanges() Ranges { return p.ranges }

// ReconstructFrame interleaves the unencrypted bytes and ciphertext bytes
// into dst according to the accumulated ranges.
func (p *OutboundFrameProcessor) ReconstructFrame(dst []byte) (int, error) {
	if len(p.unencryptedBytes)+len(p.ciphertextBytes) > len(dst) {
		return 0, qerrors.ErrBufferTooSmall
	}
	return Reconstruct(p.ranges, p.unencryptedBytes, p.ciphertextBytes, dst)
}
