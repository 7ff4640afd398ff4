package link

/*------------------------------------------------------------------
 *
 * Purpose: LZNT1 compression and decompression — the Windows-compatible
 *	sliding-window codec (RtlCompressBuffer / RtlDecompressBuffer
 *	family) used to shrink message content before it is chunked
 *	across acoustic frames.
 *
 * Description:	Input is partitioned into chunks of up to 4096 bytes.
 *	Each chunk gets a 16-bit little-endian header (signature 011 in
 *	bits 12-14, compressed flag in bit 15, size-1 in bits 0-11)
 *	followed by either the raw chunk bytes or a sequence of groups.
 *	Each group is a flags byte (LSB first: 0 = literal byte follows,
 *	1 = 16-bit back-reference follows) tagging up to eight items.
 *
 *	The back-reference field split is position-dependent: the number
 *	of displacement bits grows with the current offset into the
 *	chunk, so implementations that hard-code a fixed split produce
 *	incompatible streams.
 *
 *------------------------------------------------------------------*/

import "fmt"

const (
	lznt1ChunkSize   = 4096
	lznt1HeaderSig   = 0x3000 // signature 011 in bits 12-14
	lznt1CompressedF = 0x8000 // bit 15
)

// dispBits returns the number of displacement bits in force at chunk
// position p: max(4, ceil(log2(p))) for p > 0, else 4.
func dispBits(p int) int {
	if p <= 0 {
		return 4
	}

	// ceil(log2(p)) is the bit length of p-1.
	bits := bitLength(p - 1)
	if bits < 4 {
		return 4
	}

	return bits
}

// bitLength returns the number of bits needed to represent p, i.e. the
// Go equivalent of Python's int.bit_length().
func bitLength(p int) int {
	n := 0
	for p > 0 {
		n++
		p >>= 1
	}

	return n
}

// CompressLZNT1 compresses data using the LZNT1 algorithm. It always
// succeeds: a chunk the matcher cannot shrink is emitted raw.
func CompressLZNT1(data []byte) []byte {
	var result []byte

	for offset := 0; offset < len(data); {
		end := offset + lznt1ChunkSize
		if end > len(data) {
			end = len(data)
		}

		chunk := data[offset:end]
		compressed := compressChunk(chunk)

		if compressed != nil && len(compressed) < len(chunk) {
			header := lznt1CompressedF | lznt1HeaderSig | (len(compressed) - 1)
			result = append(result, byte(header), byte(header>>8))
			result = append(result, compressed...)
		} else {
			header := lznt1HeaderSig | (len(chunk) - 1)
			result = append(result, byte(header), byte(header>>8))
			result = append(result, chunk...)
		}

		offset = end
	}

	return result
}

// compressChunk compresses a single chunk of up to 4096 bytes. It
// returns nil only when the chunk is empty (nothing to emit); otherwise
// it always returns compressed bytes, even if they do not beat the raw
// size — the caller decides whether to keep them.
func compressChunk(data []byte) []byte {
	var result []byte

	pos := 0
	dataLen := len(data)

	for pos < dataLen {
		flagsOffset := len(result)
		result = append(result, 0) // placeholder for the flags byte
		var flags byte

		for bit := 0; bit < 8 && pos < dataLen; bit++ {
			bestLen, bestDisp := 0, 0

			if pos > 0 {
				db := dispBits(pos)
				lb := 16 - db

				maxMatchLen := (1 << lb) + 2
				if rem := dataLen - pos; maxMatchLen > rem {
					maxMatchLen = rem
				}

				maxDisp := 1 << db
				if maxDisp > pos {
					maxDisp = pos
				}

				searchStart := pos - maxDisp

				for s := pos - 1; s >= searchStart; s-- {
					matchLen := 0
					for matchLen < maxMatchLen &&
						pos+matchLen < dataLen &&
						data[s+matchLen] == data[pos+matchLen] {
						matchLen++
					}

					if matchLen >= 3 && matchLen > bestLen {
						bestLen = matchLen
						bestDisp = pos - s

						if matchLen >= maxMatchLen {
							break
						}
					}
				}
			}

			if bestLen >= 3 {
				flags |= 1 << bit

				db := dispBits(pos)
				lb := 16 - db
				ref := ((bestDisp - 1) << lb) | (bestLen - 3)
				result = append(result, byte(ref), byte(ref>>8))
				pos += bestLen
			} else {
				result = append(result, data[pos])
				pos++
			}
		}

		result[flagsOffset] = flags
	}

	return result
}

// DecompressLZNT1 decompresses an LZNT1 stream, stopping at a 0x0000
// header, source exhaustion, or once maxOutput bytes have been
// produced (DecompressCeiling by default — a hard cap against
// decompression bombs). It never panics; malformed input yields
// ErrCorruptInput.
func DecompressLZNT1(compressed []byte, maxOutput int) ([]byte, error) {
	var output []byte

	i := 0
	chunkIndex := 0

	for i < len(compressed)-1 {
		header := int(compressed[i]) | int(compressed[i+1])<<8
		i += 2

		if header == 0 {
			break
		}

		// The signature is validated only from the second chunk onward;
		// the first chunk's header is accepted whatever its signature
		// bits say.
		if chunkIndex > 0 && header&0x7000 != lznt1HeaderSig {
			return nil, fmt.Errorf("%w: bad chunk signature at offset %d", ErrCorruptInput, i-2)
		}
		chunkIndex++

		chunkSize := (header & 0xFFF) + 1
		isCompressed := header&lznt1CompressedF != 0

		chunkEnd := i + chunkSize
		if chunkEnd > len(compressed) {
			chunkEnd = len(compressed)
		}

		if !isCompressed {
			output = append(output, compressed[i:chunkEnd]...)
			i = chunkEnd

			if len(output) >= maxOutput {
				return output[:maxOutput], nil
			}

			continue
		}

		chunkOutputStart := len(output)

		for i < chunkEnd {
			if i >= len(compressed) {
				break
			}

			flags := compressed[i]
			i++

			for bit := 0; bit < 8 && i < chunkEnd; bit++ {
				if len(output) >= maxOutput {
					return output[:maxOutput], nil
				}

				if flags&(1<<bit) == 0 {
					output = append(output, compressed[i])
					i++

					continue
				}

				if i+1 >= len(compressed) {
					return nil, fmt.Errorf("%w: truncated back-reference", ErrCorruptInput)
				}

				ref := int(compressed[i]) | int(compressed[i+1])<<8
				i += 2

				posInChunk := len(output) - chunkOutputStart
				db := dispBits(posInChunk)
				lb := 16 - db

				length := (ref & ((1 << lb) - 1)) + 3
				displacement := (ref >> lb) + 1

				start := len(output) - displacement
				if start < 0 {
					return nil, fmt.Errorf("%w: back-reference before chunk start", ErrCorruptInput)
				}

				for j := 0; j < length; j++ {
					if len(output) >= maxOutput {
						return output[:maxOutput], nil
					}

					output = append(output, output[start+j])
				}
			}
		}
	}

	return output, nil
}
