package codec

const (
	h26xShortStartCodeSize = 3
)

var h26xLongStartCode = []byte{0, 0, 0, 1}

// findNextH26xNaluIndex scans buffer starting at searchStart for the next
// Annex-B NAL unit start code (3-byte {0,0,1} or 4-byte {0,0,0,1}),
// returning the index of the first byte of the NAL unit (just past the
// start code) and the size of the start code found.
func findNextH26xNaluIndex(buffer []byte, searchStart int) (nalUnitStart, startCodeSize int, found bool) {
	if len(buffer) < h26xShortStartCodeSize {
		return 0, 0, false
	}

	for i := searchStart; i < len(buffer)-h26xShortStartCodeSize; {
		switch {
		case buffer[i+2] > 1:
			i += h26xShortStartCodeSize
		case buffer[i+2] == 1:
			if buffer[i+1] == 0 && buffer[i] == 0 {
				nalStart := i + h26xShortStartCodeSize
				if i >= 1 && buffer[i-1] == 0 {
					return nalStart, 4, true
				}
				return nalStart, 3, true
			}
			i += h26xShortStartCodeSize
		default:
			i++
		}
	}
	return 0, 0, false
}

// bytesCoveringH264PPS returns the number of bytes from the start of an
// H.264 slice/IDR NAL unit payload needed to cover its pic_parameter_set_id,
// the third exp-Golomb ue(v) value in the slice header after
// first_mb_in_slice and slice_type, accounting for RBSP emulation
// prevention bytes. Returns 0 if the value runs implausibly long.
func bytesCoveringH264PPS(payload []byte) int {
	const emulationPreventionByte = 0x03

	sizeRemaining := len(payload)
	payloadBitIndex := 0
	zeroBitCount := 0
	parsedExpGolombValues := 0

	for payloadBitIndex < sizeRemaining*8 && parsedExpGolombValues < 3 {
		bitIndex := payloadBitIndex % 8
		byteIndex := payloadBitIndex / 8
		payloadByte := payload[byteIndex]

		if bitIndex == 0 {
			if byteIndex >= 2 && payloadByte == emulationPreventionByte &&
				payload[byteIndex-1] == 0 && payload[byteIndex-2] == 0 {
				payloadBitIndex += 8
				continue
			}
		}

		if payloadByte&(1<<uint(7-bitIndex)) == 0 {
			zeroBitCount++
			payloadBitIndex++
			if zeroBitCount >= 32 {
				return 0
			}
		} else {
			parsedExpGolombValues++
			payloadBitIndex += 1 + zeroBitCount
			zeroBitCount = 0
		}
	}

	return payloadBitIndex/8 + 1
}

const (
	h264NalHeaderTypeMask = 0x1F
	h264NalTypeSlice      = 1
	h264NalTypeIDR        = 5
	h264NalUnitHeaderSize = 1
)

func processH264(w Writer, data []byte) bool {
	if len(data) < h26xShortStartCodeSize+h264NalUnitHeaderSize {
		return false
	}

	naluStart, _, found := findNextH26xNaluIndex(data, 0)
	for found && naluStart < len(data)-1 {
		nalType := data[naluStart] & h264NalHeaderTypeMask

		w.AddUnencryptedBytes(h26xLongStartCode)

		nextStart, nextStartCodeSize, nextFound := findNextH26xNaluIndex(data, naluStart)
		nextNaluStart := len(data)
		if nextFound {
			nextNaluStart = nextStart - nextStartCodeSize
		}

		if nalType == h264NalTypeSlice || nalType == h264NalTypeIDR {
			payloadStart := naluStart + h264NalUnitHeaderSize
			ppsBytes := 0
			if payloadStart < len(data) {
				ppsBytes = bytesCoveringH264PPS(data[payloadStart:])
			}
			headerEnd := payloadStart + ppsBytes
			if headerEnd > nextNaluStart {
				headerEnd = nextNaluStart
			}
			w.AddUnencryptedBytes(data[naluStart:headerEnd])
			if headerEnd < nextNaluStart {
				w.AddEncryptedBytes(data[headerEnd:nextNaluStart])
			}
		} else {
			w.AddUnencryptedBytes(data[naluStart:nextNaluStart])
		}

		if !nextFound {
			break
		}
		naluStart, found = nextStart, nextFound
	}

	return true
}

const (
	h265NalHeaderTypeMask = 0x7E
	h265NalTypeVCLCutoff  = 32
	h265NalUnitHeaderSize = 2
)

func processH265(w Writer, data []byte) bool {
	if len(data) < h26xShortStartCodeSize+h265NalUnitHeaderSize {
		return false
	}

	naluStart, _, found := findNextH26xNaluIndex(data, 0)
	for found && naluStart < len(data)-1 {
		nalType := (data[naluStart] & h265NalHeaderTypeMask) >> 1

		w.AddUnencryptedBytes(h26xLongStartCode)

		nextStart, nextStartCodeSize, nextFound := findNextH26xNaluIndex(data, naluStart)
		nextNaluStart := len(data)
		if nextFound {
			nextNaluStart = nextStart - nextStartCodeSize
		}

		if int(nalType) < h265NalTypeVCLCutoff {
			headerEnd := naluStart + h265NalUnitHeaderSize
			if headerEnd > nextNaluStart {
				headerEnd = nextNaluStart
			}
			w.AddUnencryptedBytes(data[naluStart:headerEnd])
			if headerEnd < nextNaluStart {
				w.AddEncryptedBytes(data[headerEnd:nextNaluStart])
			}
		} else {
			w.AddUnencryptedBytes(data[naluStart:nextNaluStart])
		}

		if !nextFound {
			break
		}
		naluStart, found = nextStart, nextFound
	}

	return true
}
