package codec

import "github.com/pzverkov/e2ee-media/pkg/leb128"

const (
	av1ObuHeaderHasExtensionMask = 0b0_0000_100
	av1ObuHeaderHasSizeMask      = 0b0_0000_010
	av1ObuHeaderTypeMask         = 0b0_1111_000
	obuTypeTemporalDelimiter     = 2
	obuTypeTileList              = 8
	obuTypePadding               = 15
	obuExtensionSizeBytes        = 1
)

// processAV1 walks a frame's OBUs (open bitstream units), leaving the
// temporal-delimiter/tile-list/padding OBUs out of the range map entirely
// (the packetizer drops them) and encrypting every other OBU's payload
// while keeping its header (and, if present, its LEB128 size field)
// unencrypted. If a retained OBU whose payload ends exactly at the end of
// the frame carries an explicit size, the has-size bit is cleared instead of
// emitting the size field, to leave room for trailer bytes appended after
// the frame; a retained OBU followed only by dropped OBUs keeps its size.
func processAV1(w Writer, data []byte) bool {
	i := 0
	for i < len(data) {
		obuHeaderIndex := i
		obuHeader := data[obuHeaderIndex]
		i++

		hasExtension := obuHeader&av1ObuHeaderHasExtensionMask != 0
		hasSize := obuHeader&av1ObuHeaderHasSizeMask != 0
		obuType := int(obuHeader&av1ObuHeaderTypeMask) >> 3

		if hasExtension {
			i += obuExtensionSizeBytes
		}
		if i >= len(data) {
			return false
		}

		var obuPayloadSize int
		if hasSize {
			v, n, err := leb128.ReadUint64(data[i:])
			if err != nil {
				return false
			}
			obuPayloadSize = int(v)
			i += n
		} else {
			obuPayloadSize = len(data) - i
		}

		obuPayloadIndex := i
		if obuPayloadIndex+obuPayloadSize > len(data) {
			return false
		}
		i += obuPayloadSize

		if obuType == obuTypeTemporalDelimiter || obuType == obuTypeTileList || obuType == obuTypePadding {
			continue
		}

		rewrittenWithoutSize := false
		if i == len(data) && hasSize {
			obuHeader &^= av1ObuHeaderHasSizeMask
			rewrittenWithoutSize = true
		}

		w.AddUnencryptedBytes([]byte{obuHeader})
		if hasExtension {
			w.AddUnencryptedBytes(data[obuHeaderIndex+1 : obuHeaderIndex+2])
		}
		if hasSize && !rewrittenWithoutSize {
			buf := make([]byte, leb128.Size(uint64(obuPayloadSize)))
			n := leb128.WriteUint64(uint64(obuPayloadSize), buf)
			w.AddUnencryptedBytes(buf[:n])
		}
		w.AddEncryptedBytes(data[obuPayloadIndex : obuPayloadIndex+obuPayloadSize])
	}

	return true
}
