// Package frame implements the unencrypted-range model and the
// outbound/inbound frame processors that interleave plaintext and
// ciphertext bytes around a trailer-carried map of unencrypted regions.
package frame

import (
	"math"

	"github.com/pzverkov/e2ee-media/pkg/leb128"

	qerrors "github.com/pzverkov/e2ee-media/internal/errors"
)

// Range describes a byte region of a frame that must remain unencrypted,
// expressed as a byte offset and a length.
type Range struct {
	Offset uint64
	Size   uint64
}

// Ranges is an ordered, non-overlapping set of unencrypted byte regions.
type Ranges []Range

// overflowAdd returns a+b and whether the addition overflowed uint64.
func overflowAdd(a, b uint64) (sum uint64, overflowed bool) {
	sum = a + b
	return sum, sum < a
}

// SerializedSize returns the number of bytes Serialize will emit.
func (r Ranges) SerializedSize() (int, error) {
	size := 0
	for _, rng := range r {
		size += leb128.Size(rng.Offset) + leb128.Size(rng.Size)
	}
	if size > math.MaxUint8 {
		return 0, qerrors.ErrRangesInvalid
	}
	return size, nil
}

// Serialize writes r as alternating LEB128 offset/size pairs into dst and
// returns the number of bytes written.
func (r Ranges) Serialize(dst []byte) (int, error) {
	size, err := r.SerializedSize()
	if err != nil {
		return 0, err
	}
	if len(dst) < size {
		return 0, qerrors.ErrBufferTooSmall
	}

	at := 0
	for _, rng := range r {
		at += leb128.WriteUint64(rng.Offset, dst[at:])
		at += leb128.WriteUint64(rng.Size, dst[at:])
	}
	return at, nil
}

// DeserializeRanges parses a run of alternating LEB128 offset/size pairs
// occupying exactly src, returning the parsed ranges.
func DeserializeRanges(src []byte) (Ranges, error) {
	var ranges Ranges
	at := 0
	for at < len(src) {
		offset, n, err := leb128.ReadUint64(src[at:])
		if err != nil {
			return nil, err
		}
		at += n

		size, n, err := leb128.ReadUint64(src[at:])
		if err != nil {
			return nil, err
		}
		at += n

		ranges = append(ranges, Range{Offset: offset, Size: size})
	}
	if at != len(src) {
		return nil, qerrors.ErrRangesInvalid
	}
	return ranges, nil
}

// Validate reports whether ranges are strictly ordered, non-overlapping,
// and fit within a frame of frameSize bytes. It returns ErrRangesOverflowFrame
// when a range's end runs past frameSize, and ErrRangesInvalid for any other
// ordering or overlap violation.
func (r Ranges) Validate(frameSize uint64) error {
	for i, current := range r {
		currentEnd, overflowed := overflowAdd(current.Offset, current.Size)
		if overflowed {
			return qerrors.ErrRangesInvalid
		}
		if currentEnd > frameSize {
			return qerrors.ErrRangesOverflowFrame
		}
		if i+1 < len(r) && currentEnd > r[i+1].Offset {
			return qerrors.ErrRangesInvalid
		}
	}
	return nil
}

// Reconstruct interleaves rangeBytes (the bytes covered by ranges, in
// order) and otherBytes (everything else, in order) into output according
// to ranges, and returns the number of bytes written.
func Reconstruct(ranges Ranges, rangeBytes, otherBytes, output []byte) (int, error) {
	frameIndex := 0
	rangeIdx := 0
	otherIdx := 0

	copyOther := func(size int) error {
		if otherIdx+size > len(otherBytes) || frameIndex+size > len(output) {
			return qerrors.ErrBufferTooSmall
		}
		copy(output[frameIndex:frameIndex+size], otherBytes[otherIdx:otherIdx+size])
		otherIdx += size
		frameIndex += size
		return nil
	}

	copyRange := func(size int) error {
		if rangeIdx+size > len(rangeBytes) || frameIndex+size > len(output) {
			return qerrors.ErrBufferTooSmall
		}
		copy(output[frameIndex:frameIndex+size], rangeBytes[rangeIdx:rangeIdx+size])
		rangeIdx += size
		frameIndex += size
		return nil
	}

	for _, rng := range ranges {
		if int(rng.Offset) > frameIndex {
			if err := copyOther(int(rng.Offset) - frameIndex); err != nil {
				return 0, err
			}
		}
		if err := copyRange(int(rng.Size)); err != nil {
			return 0, err
		}
	}

	if otherIdx < len(otherBytes) {
		if err := copyOther(len(otherBytes) - otherIdx); err != nil {
			return 0, err
		}
	}

	return frameIndex, nil
}
