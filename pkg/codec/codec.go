// Package codec implements codec-aware bitstream dissection: for each
// supported media codec it decides which byte ranges of a frame must
// remain unencrypted so that downstream RTP packetizers and depacketizers
// keep working, and which byte ranges can be safely encrypted.
package codec

import (
	"github.com/pzverkov/e2ee-media/internal/constants"
	"github.com/pzverkov/e2ee-media/pkg/frame"
)

// Writer receives the unencrypted and to-be-encrypted byte ranges a
// dissector identifies, in frame order. frame.OutboundFrameProcessor
// implements this interface.
type Writer interface {
	AddUnencryptedBytes(b []byte)
	AddEncryptedBytes(b []byte)
}

// Dissect splits data according to the rules for codec c, reporting the
// byte ranges via w. It returns false if the codec is unrecognized or the
// frame is malformed for that codec; callers should then treat the whole
// frame as encrypted.
func Dissect(w Writer, c constants.Codec, data []byte) bool {
	switch c {
	case constants.CodecOpus:
		return processOpus(w, data)
	case constants.CodecVP8:
		return processVP8(w, data)
	case constants.CodecVP9:
		return processVP9(w, data)
	case constants.CodecH264:
		return processH264(w, data)
	case constants.CodecH265:
		return processH265(w, data)
	case constants.CodecAV1:
		return processAV1(w, data)
	default:
		return false
	}
}

func processOpus(w Writer, data []byte) bool {
	w.AddEncryptedBytes(data)
	return true
}

func processVP9(w Writer, data []byte) bool {
	// The payload descriptor carrying everything the depacketizer needs is
	// conveyed out of band (RTP payload descriptor), so the full VP9
	// payload can be encrypted.
	w.AddEncryptedBytes(data)
	return true
}

const (
	vp8KeyFrameUnencryptedBytes   = 10
	vp8DeltaFrameUnencryptedBytes = 1
)

func processVP8(w Writer, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	// RFC 7741 section 4.3: bit 0 of byte 0 is an inverse key-frame flag.
	// Key frames need 10 header bytes available to the depacketizer;
	// delta frames only need the first byte (where the flag itself lives).
	unencrypted := vp8DeltaFrameUnencryptedBytes
	if data[0]&0x01 == 0 {
		unencrypted = vp8KeyFrameUnencryptedBytes
	}
	if unencrypted > len(data) {
		unencrypted = len(data)
	}

	w.AddUnencryptedBytes(data[:unencrypted])
	w.AddEncryptedBytes(data[unencrypted:])
	return true
}

// RangeSource exposes the codec and unencrypted-range map of an
// already-dissected frame, for post-encryption validation.
type RangeSource interface {
	Codec() constants.Codec
	UnencryptedRanges() frame.Ranges
}

// ValidateEncryptedFrame reports whether encryptedFrame is safe to send: for
// H.264/H.265 it checks that no encrypted byte range accidentally produced a
// 3- or 4-byte Annex-B start code sequence that would confuse the
// packetizer. Other codecs are always considered valid.
func ValidateEncryptedFrame(src RangeSource, encryptedFrame []byte) bool {
	c := src.Codec()
	if c != constants.CodecH264 && c != constants.CodecH265 {
		return true
	}

	const padding = h26xShortStartCodeSize - 1

	encryptedSectionStart := 0
	for _, rng := range src.UnencryptedRanges() {
		if encryptedSectionStart == int(rng.Offset) {
			encryptedSectionStart += int(rng.Size)
			continue
		}

		start := encryptedSectionStart - min(encryptedSectionStart, padding)
		end := min(int(rng.Offset)+padding, len(encryptedFrame))
		if _, _, found := findNextH26xNaluIndex(encryptedFrame[start:end], 0); found {
			return false
		}

		encryptedSectionStart = int(rng.Offset + rng.Size)
	}

	if encryptedSectionStart == len(encryptedFrame) {
		return true
	}

	start := encryptedSectionStart - min(encryptedSectionStart, padding)
	if _, _, found := findNextH26xNaluIndex(encryptedFrame[start:], 0); found {
		return false
	}
	return true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
