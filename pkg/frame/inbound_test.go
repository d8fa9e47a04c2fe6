package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/pzverkov/e2ee-media/internal/constants"
	qerrors "github.com/pzverkov/e2ee-media/internal/errors"
	"github.com/pzverkov/e2ee-media/pkg/leb128"
)

// buildFrame assembles a wire-format encrypted frame: body bytes followed
// by the trailer (truncated tag, LEB128 nonce, serialized ranges,
// supplemental-size byte, magic marker), matching what the encryptor
// writes in pkg/e2ee.
func buildFrame(t *testing.T, body []byte, tag []byte, nonce uint64, ranges Ranges) []byte {
	t.Helper()

	nonceBuf := make([]byte, leb128.Size(nonce))
	leb128.WriteUint64(nonce, nonceBuf)

	rangesBuf := make([]byte, 64)
	rn, err := ranges.Serialize(rangesBuf)
	if err != nil {
		t.Fatalf("Serialize(ranges) failed: %v", err)
	}
	rangesBuf = rangesBuf[:rn]

	supplemental := constants.SupplementalBytes + len(nonceBuf) + len(rangesBuf)

	out := make([]byte, 0, len(body)+supplemental)
	out = append(out, body...)
	out = append(out, tag...)
	out = append(out, nonceBuf...)
	out = append(out, rangesBuf...)
	out = append(out, byte(supplemental))

	marker := make([]byte, 2)
	binary.LittleEndian.PutUint16(marker, constants.MagicMarker)
	out = append(out, marker...)
	return out
}

func sampleTag() []byte {
	return bytes.Repeat([]byte{0xAB}, constants.TruncatedTagSize)
}

func TestParseFrameAllCiphertextNoRanges(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04}
	wire := buildFrame(t, body, sampleTag(), 7, nil)

	var p InboundFrameProcessor
	if err := p.ParseFrame(wire); err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	if !p.IsEncrypted() {
		t.Fatal("expected IsEncrypted() to be true")
	}
	if p.TruncatedNonce() != 7 {
		t.Errorf("TruncatedNonce() = %d, want 7", p.TruncatedNonce())
	}
	if !bytes.Equal(p.Tag(), sampleTag()) {
		t.Errorf("Tag() = %x, want %x", p.Tag(), sampleTag())
	}
	if !bytes.Equal(p.CiphertextBytes(), body) {
		t.Errorf("CiphertextBytes() = %x, want %x", p.CiphertextBytes(), body)
	}
	if len(p.AuthenticatedBytes()) != 0 {
		t.Errorf("AuthenticatedBytes() = %x, want empty", p.AuthenticatedBytes())
	}
	if len(p.PlaintextBuffer()) != len(body) {
		t.Errorf("PlaintextBuffer() has length %d, want %d", len(p.PlaintextBuffer()), len(body))
	}
}

func TestParseFrameWithUnencryptedRange(t *testing.T) {
	body := []byte{0xAA, 0xBB, 0x01, 0x02, 0x03, 0xCC}
	// Bytes [0:2) and [5:6) stay unencrypted; [2:5) is ciphertext.
	ranges := Ranges{{Offset: 0, Size: 2}, {Offset: 5, Size: 1}}
	wire := buildFrame(t, body, sampleTag(), 1, ranges)

	var p InboundFrameProcessor
	if err := p.ParseFrame(wire); err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	wantCiphertext := []byte{0x01, 0x02, 0x03}
	if !bytes.Equal(p.CiphertextBytes(), wantCiphertext) {
		t.Errorf("CiphertextBytes() = %x, want %x", p.CiphertextBytes(), wantCiphertext)
	}

	wantAuthenticated := []byte{0xAA, 0xBB, 0xCC}
	if !bytes.Equal(p.AuthenticatedBytes(), wantAuthenticated) {
		t.Errorf("AuthenticatedBytes() = %x, want %x", p.AuthenticatedBytes(), wantAuthenticated)
	}
}

func TestParseFrameThenReconstructFrame(t *testing.T) {
	body := []byte{0xAA, 0xBB, 0x01, 0x02, 0x03, 0xCC}
	ranges := Ranges{{Offset: 0, Size: 2}, {Offset: 5, Size: 1}}
	wire := buildFrame(t, body, sampleTag(), 1, ranges)

	var p InboundFrameProcessor
	if err := p.ParseFrame(wire); err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	// Simulate AEAD decryption having recovered the plaintext in place.
	copy(p.PlaintextBuffer(), p.CiphertextBytes())

	dst := make([]byte, len(body))
	n, err := p.ReconstructFrame(dst)
	if err != nil {
		t.Fatalf("ReconstructFrame failed: %v", err)
	}
	if n != len(body) {
		t.Fatalf("ReconstructFrame wrote %d bytes, want %d", n, len(body))
	}
	if !bytes.Equal(dst, body) {
		t.Errorf("ReconstructFrame = %x, want %x", dst, body)
	}
}

func TestReconstructFrameBeforeParseFails(t *testing.T) {
	var p InboundFrameProcessor
	_, err := p.ReconstructFrame(make([]byte, 16))
	if !errors.Is(err, qerrors.ErrFrameTooShort) {
		t.Fatalf("ReconstructFrame before ParseFrame = %v, want ErrFrameTooShort", err)
	}
}

func TestReconstructFrameBufferTooSmall(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04}
	wire := buildFrame(t, body, sampleTag(), 1, nil)

	var p InboundFrameProcessor
	if err := p.ParseFrame(wire); err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	_, err := p.ReconstructFrame(make([]byte, len(body)-1))
	if !errors.Is(err, qerrors.ErrBufferTooSmall) {
		t.Fatalf("ReconstructFrame with undersized dst = %v, want ErrBufferTooSmall", err)
	}
}

func TestParseFrameTooShort(t *testing.T) {
	var p InboundFrameProcessor
	err := p.ParseFrame(make([]byte, constants.MinSupplementalBytes-1))
	if !errors.Is(err, qerrors.ErrFrameTooShort) {
		t.Fatalf("ParseFrame on undersized frame = %v, want ErrFrameTooShort", err)
	}
	if p.IsEncrypted() {
		t.Error("IsEncrypted() should be false after a failed parse")
	}
}

func TestParseFrameMarkerMismatch(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04}
	wire := buildFrame(t, body, sampleTag(), 1, nil)
	wire[len(wire)-1] ^= 0xFF // corrupt the magic marker

	var p InboundFrameProcessor
	err := p.ParseFrame(wire)
	if !errors.Is(err, qerrors.ErrMarkerMismatch) {
		t.Fatalf("ParseFrame with corrupted marker = %v, want ErrMarkerMismatch", err)
	}
}

func TestParseFrameSupplementalSizeExceedsFrame(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04}
	wire := buildFrame(t, body, sampleTag(), 1, nil)

	sizeByteAt := len(wire) - 3
	wire[sizeByteAt] = 0xFF // claim a supplemental size larger than the frame

	err := (&InboundFrameProcessor{}).ParseFrame(wire)
	if !errors.Is(err, qerrors.ErrSupplementalBytesInvalid) {
		t.Fatalf("ParseFrame with oversized supplemental byte = %v, want ErrSupplementalBytesInvalid", err)
	}
}

func TestParseFrameSupplementalSizeBelowMinimum(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04}
	wire := buildFrame(t, body, sampleTag(), 1, nil)

	sizeByteAt := len(wire) - 3
	wire[sizeByteAt] = byte(constants.MinSupplementalBytes - 1)

	err := (&InboundFrameProcessor{}).ParseFrame(wire)
	if !errors.Is(err, qerrors.ErrSupplementalBytesInvalid) {
		t.Fatalf("ParseFrame with undersized supplemental byte = %v, want ErrSupplementalBytesInvalid", err)
	}
}

func TestParseFrameOverflowingRangesRejected(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04}
	// A range claiming bytes past the end of the whole wire frame.
	ranges := Ranges{{Offset: 2, Size: 100}}
	wire := buildFrame(t, body, sampleTag(), 1, ranges)

	err := (&InboundFrameProcessor{}).ParseFrame(wire)
	if !errors.Is(err, qerrors.ErrRangesOverflowFrame) {
		t.Fatalf("ParseFrame with overflowing ranges = %v, want ErrRangesOverflowFrame", err)
	}
}

func TestParseFrameUnorderedRangesRejected(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	// Second range starts before the first one ends: disordered, but each
	// individually fits within the frame, so this exercises the generic
	// ErrRangesInvalid path distinct from ErrRangesOverflowFrame.
	ranges := Ranges{{Offset: 3, Size: 3}, {Offset: 0, Size: 2}}
	wire := buildFrame(t, body, sampleTag(), 1, ranges)

	err := (&InboundFrameProcessor{}).ParseFrame(wire)
	if !errors.Is(err, qerrors.ErrRangesInvalid) {
		t.Fatalf("ParseFrame with unordered ranges = %v, want ErrRangesInvalid", err)
	}
}

func TestParseFrameClearsPreviousState(t *testing.T) {
	var p InboundFrameProcessor

	first := buildFrame(t, []byte{0x01, 0x02, 0x03, 0x04}, sampleTag(), 1, nil)
	if err := p.ParseFrame(first); err != nil {
		t.Fatalf("first ParseFrame failed: %v", err)
	}

	// A second, too-short frame must leave no residue from the first parse.
	if err := p.ParseFrame(make([]byte, 1)); err == nil {
		t.Fatal("expected the second ParseFrame to fail")
	}
	if p.IsEncrypted() {
		t.Error("IsEncrypted() should be false after a failed re-parse")
	}
	if len(p.CiphertextBytes()) != 0 {
		t.Errorf("CiphertextBytes() = %x, want empty after Clear", p.CiphertextBytes())
	}
}
