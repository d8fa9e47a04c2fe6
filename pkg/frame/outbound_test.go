package frame

import (
	"bytes"
	"testing"

	"github.com/pzverkov/e2ee-media/internal/constants"
)

func TestOutboundAddUnencryptedBytesMergesContiguousRanges(t *testing.T) {
	var p OutboundFrameProcessor
	p.BeginCodec(constants.CodecVP8)

	p.AddUnencryptedBytes([]byte{0x01, 0x02})
	p.AddUnencryptedBytes([]byte{0x03})

	ranges := p.UnencryptedRanges()
	if len(ranges) != 1 {
		t.Fatalf("got %d ranges, want 1 merged range", len(ranges))
	}
	if ranges[0] != (Range{Offset: 0, Size: 3}) {
		t.Errorf("merged range = %+v, want {Offset:0 Size:3}", ranges[0])
	}

	want := []byte{0x01, 0x02, 0x03}
	if !bytes.Equal(p.UnencryptedBytes(), want) {
		t.Errorf("UnencryptedBytes() = %x, want %x", p.UnencryptedBytes(), want)
	}
}

func TestOutboundAddUnencryptedBytesSplitsNonContiguousRanges(t *testing.T) {
	var p OutboundFrameProcessor
	p.BeginCodec(constants.CodecVP8)

	p.AddUnencryptedBytes([]byte{0x01})
	p.AddEncryptedBytes([]byte{0xAA})
	p.AddUnencryptedBytes([]byte{0x02})

	ranges := p.UnencryptedRanges()
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2 distinct ranges", len(ranges))
	}
	if ranges[0] != (Range{Offset: 0, Size: 1}) {
		t.Errorf("first range = %+v, want {Offset:0 Size:1}", ranges[0])
	}
	if ranges[1] != (Range{Offset: 2, Size: 1}) {
		t.Errorf("second range = %+v, want {Offset:2 Size:1}", ranges[1])
	}
}

func TestOutboundFinishDissectionSuccess(t *testing.T) {
	var p OutboundFrameProcessor
	p.BeginCodec(constants.CodecOpus)

	p.AddUnencryptedBytes([]byte{0x01})
	p.AddEncryptedBytes([]byte{0xAA, 0xBB})
	p.FinishDissection(true, []byte{0x01, 0xAA, 0xBB})

	if len(p.CiphertextBytes()) != len(p.EncryptedBytes()) {
		t.Errorf("CiphertextBytes() has length %d, want %d (matching EncryptedBytes)",
			len(p.CiphertextBytes()), len(p.EncryptedBytes()))
	}
	if len(p.UnencryptedRanges()) != 1 {
		t.Errorf("got %d ranges after successful dissection, want 1", len(p.UnencryptedRanges()))
	}
}

func TestOutboundFinishDissectionFallback(t *testing.T) {
	var p OutboundFrameProcessor
	p.BeginCodec(constants.CodecUnknown)

	// A dissector that rejected the frame, or no codec-aware dissector,
	// must fall back to encrypting the whole frame.
	p.AddUnencryptedBytes([]byte{0x01})
	frame := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	p.FinishDissection(false, frame)

	if len(p.UnencryptedRanges()) != 0 {
		t.Errorf("got %d ranges after fallback, want 0", len(p.UnencryptedRanges()))
	}
	if !bytes.Equal(p.EncryptedBytes(), frame) {
		t.Errorf("EncryptedBytes() = %x, want %x (the entire frame)", p.EncryptedBytes(), frame)
	}
	if len(p.CiphertextBytes()) != len(frame) {
		t.Errorf("CiphertextBytes() has length %d, want %d", len(p.CiphertextBytes()), len(frame))
	}
}

func TestOutboundResetClearsState(t *testing.T) {
	var p OutboundFrameProcessor
	p.BeginCodec(constants.CodecVP9)
	p.AddUnencryptedBytes([]byte{0x01})
	p.AddEncryptedBytes([]byte{0xAA})

	p.Reset()

	if p.Codec() != constants.CodecUnknown {
		t.Errorf("Codec() after Reset = %v, want CodecUnknown", p.Codec())
	}
	if len(p.UnencryptedBytes()) != 0 || len(p.EncryptedBytes()) != 0 || len(p.UnencryptedRanges()) != 0 {
		t.Error("Reset did not clear accumulated state")
	}
}

func TestOutboundReconstructFrameRoundTrip(t *testing.T) {
	var p OutboundFrameProcessor
	p.BeginCodec(constants.CodecVP8)

	p.AddUnencryptedBytes([]byte{0xAA, 0xBB})
	p.AddEncryptedBytes([]byte{0x01, 0x02, 0x03})
	p.FinishDissection(true, nil)

	// Simulate AEAD encryption having written ciphertext in place.
	copy(p.CiphertextBytes(), p.EncryptedBytes())

	dst := make([]byte, len(p.UnencryptedBytes())+len(p.CiphertextBytes()))
	n, err := p.ReconstructFrame(dst)
	if err != nil {
		t.Fatalf("ReconstructFrame failed: %v", err)
	}
	if n != len(dst) {
		t.Fatalf("ReconstructFrame wrote %d bytes, want %d", n, len(dst))
	}

	want := []byte{0xAA, 0xBB, 0x01, 0x02, 0x03}
	if !bytes.Equal(dst, want) {
		t.Errorf("ReconstructFrame = %x, want %x", dst, want)
	}
}

func TestOutboundReconstructFrameBufferTooSmall(t *testing.T) {
	var p OutboundFrameProcessor
	p.BeginCodec(constants.CodecOpus)
	p.AddEncryptedBytes([]byte{0x01, 0x02, 0x03})
	p.FinishDissection(true, nil)

	if _, err := p.ReconstructFrame(make([]byte, 1)); err == nil {
		t.Fatal("expected an error for an undersized destination buffer")
	}
}
