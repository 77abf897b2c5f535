package pack

import (
	"reflect"
	"testing"

	"github.com/finnhost/qxdriver/pkg/qtype"
)

func TestPackUnsignedInt2RoundTrip(t *testing.T) {
	dt := qtype.UnsignedInt(2)
	values := []float64{0, 1, 2, 3, 3, 2, 1, 0}

	packed, err := Pack(dt, values, 4)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	want := []byte{0xE4, 0x1B}
	if !reflect.DeepEqual(packed, want) {
		t.Fatalf("packed = %#v, want %#v", packed, want)
	}

	unpacked, err := Unpack(dt, packed, 4)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !reflect.DeepEqual(unpacked, values) {
		t.Fatalf("unpacked = %v, want %v", unpacked, values)
	}
}

func TestPackBipolarRoundTrip(t *testing.T) {
	dt := qtype.Bipolar()
	values := []float64{-1, 1, 1, -1, -1, -1, 1, 1}

	packed, err := Pack(dt, values, 8)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	want := []byte{0b11000110}
	if !reflect.DeepEqual(packed, want) {
		t.Fatalf("packed = %#v, want %#v", packed, want)
	}

	unpacked, err := Unpack(dt, packed, 8)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !reflect.DeepEqual(unpacked, values) {
		t.Fatalf("unpacked = %v, want %v", unpacked, values)
	}
}

func TestPackSignedInt4NoPadding(t *testing.T) {
	dt := qtype.SignedInt(4)
	values := []float64{-8, 7, 0, -1, 3, -3, 1, -2}

	packed, err := Pack(dt, values, 2)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(packed) != 4 {
		t.Fatalf("expected 4 bytes for 8 nibble values, got %d", len(packed))
	}

	unpacked, err := Unpack(dt, packed, 2)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !reflect.DeepEqual(unpacked, values) {
		t.Fatalf("unpacked = %v, want %v", unpacked, values)
	}
}

func TestPackDomainError(t *testing.T) {
	dt := qtype.SignedInt(4)
	if _, err := Pack(dt, []float64{100}, 1); err == nil {
		t.Fatal("expected domain error for out-of-range value")
	}
}

func TestPackShapeError(t *testing.T) {
	dt := qtype.UnsignedInt(2)
	if _, err := Pack(dt, []float64{0, 1, 2}, 4); err == nil {
		t.Fatal("expected shape error for non-multiple length")
	}
}

func TestUnpackLengthError(t *testing.T) {
	dt := qtype.UnsignedInt(2)
	// innerDim 8 of 2-bit values packs into 2-byte groups; 3 bytes is not a multiple.
	if _, err := Unpack(dt, []byte{0x01, 0x02, 0x03}, 8); err == nil {
		t.Fatal("expected length error for non-multiple byte count")
	}
}

func TestPackFixedPointRoundTrip(t *testing.T) {
	dt := qtype.Fixed(8, 4)
	values := []float64{1.5, -2.25, 0, 7.9375, -8}

	packed, err := Pack(dt, values, 5)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	unpacked, err := Unpack(dt, packed, 5)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	for i := range values {
		if unpacked[i] != values[i] {
			t.Fatalf("value %d: got %v, want %v", i, unpacked[i], values[i])
		}
	}
}

func TestPackZeroPaddingBoundary(t *testing.T) {
	// 3 values of 3 bits each = 9 bits -> 2 bytes with 7 padding bits.
	dt := qtype.UnsignedInt(3)
	values := []float64{5, 3, 7}
	packed, err := Pack(dt, values, 3)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(packed) != 2 {
		t.Fatalf("expected 2 bytes, got %d", len(packed))
	}
	// top 7 bits of the second byte must be the zero padding.
	if packed[1]&0xFE != 0 {
		t.Fatalf("expected zero padding bits, got %#08b", packed[1])
	}
}

// benchmarkBufferSize mirrors DeviceBufferBenchmark.cpp's constant of
// the same name, standing in for one input buffer's element count.
const benchmarkBufferSize = 10000

func benchValues(n int, dt qtype.Type) []float64 {
	values := make([]float64, n)
	lo, hi := dt.Min(), dt.Max()
	for i := range values {
		values[i] = lo + float64(i%int(hi-lo+1))
	}
	return values
}

func BenchmarkPackUnsignedInt8(b *testing.B) {
	dt := qtype.UnsignedInt(8)
	values := benchValues(benchmarkBufferSize, dt)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Pack(dt, values, 1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPackTernary(b *testing.B) {
	dt := qtype.Ternary()
	values := make([]float64, benchmarkBufferSize)
	domain := []float64{-1, 0, 1}
	for i := range values {
		values[i] = domain[i%len(domain)]
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Pack(dt, values, 1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUnpackUnsignedInt8(b *testing.B) {
	dt := qtype.UnsignedInt(8)
	values := benchValues(benchmarkBufferSize, dt)
	packed, err := Pack(dt, values, 1)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Unpack(dt, packed, 1); err != nil {
			b.Fatal(err)
		}
	}
}
