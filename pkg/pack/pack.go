// Package pack implements the bit-serial codec between logical
// quantized values and the byte-packed layout the accelerator's
// kernels consume: for every group of innerDim consecutive values, the
// bit-width-wide packed integer representations (per qtype.Type's own
// encoding convention) are concatenated least-significant-value-first,
// least-significant-bit-first within a value, then emitted LSB-first
// into bytes, zero-padded up to ceil(innerDim*bits/8) bytes before the
// next group begins. No padding spans group boundaries.
package pack

import (
	"fmt"

	"github.com/finnhost/qxdriver/internal/qerrs"
	"github.com/finnhost/qxdriver/pkg/qtype"
)

// GroupBytes returns the packed byte width of one group of innerDim
// values of the given bit width: ceil(innerDim*bits/8).
func GroupBytes(innerDim, bits int) int {
	return (innerDim*bits + 7) / 8
}

// Pack packs values, interpreted row-major with an innermost dimension
// of innerDim, into a bit-packed byte stream. len(values) must be a
// multiple of innerDim, and every value must satisfy dt.Admits.
func Pack(dt qtype.Type, values []float64, innerDim int) ([]byte, error) {
	if innerDim <= 0 {
		return nil, fmt.Errorf("pack: %w: innerDim must be positive, got %d", qerrs.ErrShape, innerDim)
	}
	if len(values)%innerDim != 0 {
		return nil, fmt.Errorf("pack: %w: %d values is not a multiple of innerDim %d", qerrs.ErrShape, len(values), innerDim)
	}

	bits := dt.BitWidth()
	groupBytes := GroupBytes(innerDim, bits)
	groups := len(values) / innerDim
	out := make([]byte, groups*groupBytes)

	for g := 0; g < groups; g++ {
		bitPos := 0
		base := g * groupBytes
		for k := 0; k < innerDim; k++ {
			idx := g*innerDim + k
			v := values[idx]
			if !dt.Admits(v) {
				return nil, fmt.Errorf("pack: %w: value %v does not admit into %s at index %d", qerrs.ErrDomain, v, dt, idx)
			}
			writeBitsLSBFirst(out[base:base+groupBytes], bitPos, dt.EncodeBits(v), bits)
			bitPos += bits
		}
	}
	return out, nil
}

// Unpack is the strict inverse of Pack: it consumes ceil(innerDim*bits/8)
// bytes per group and emits innerDim values. len(data) must be a
// multiple of the packed group width.
func Unpack(dt qtype.Type, data []byte, innerDim int) ([]float64, error) {
	if innerDim <= 0 {
		return nil, fmt.Errorf("unpack: %w: innerDim must be positive, got %d", qerrs.ErrShape, innerDim)
	}
	bits := dt.BitWidth()
	groupBytes := GroupBytes(innerDim, bits)
	if groupBytes == 0 || len(data)%groupBytes != 0 {
		return nil, fmt.Errorf("unpack: %w: %d bytes is not a multiple of group width %d", qerrs.ErrLength, len(data), groupBytes)
	}

	groups := len(data) / groupBytes
	out := make([]float64, groups*innerDim)

	for g := 0; g < groups; g++ {
		bitPos := 0
		base := g * groupBytes
		for k := 0; k < innerDim; k++ {
			raw := readBitsLSBFirst(data[base:base+groupBytes], bitPos, bits)
			out[g*innerDim+k] = dt.DecodeBits(raw)
			bitPos += bits
		}
	}
	return out, nil
}

// writeBitsLSBFirst writes the low `bits` bits of value into dst
// starting at bit offset bitPos, LSB-first within the value and
// LSB-first within each byte.
func writeBitsLSBFirst(dst []byte, bitPos int, value uint64, bits int) {
	for i := 0; i < bits; i++ {
		bit := (value >> uint(i)) & 1
		pos := bitPos + i
		byteIdx := pos / 8
		bitIdx := uint(pos % 8)
		dst[byteIdx] |= byte(bit) << bitIdx
	}
}

// readBitsLSBFirst is the inverse of writeBitsLSBFirst.
func readBitsLSBFirst(src []byte, bitPos int, bits int) uint64 {
	var value uint64
	for i := 0; i < bits; i++ {
		pos := bitPos + i
		byteIdx := pos / 8
		bitIdx := uint(pos % 8)
		bit := (src[byteIdx] >> bitIdx) & 1
		value |= uint64(bit) << uint(i)
	}
	return value
}
