// Package compression implements the Gorilla time-series codecs: delta-of-delta
// for timestamps and XOR for float values.
package compression

import (
	"math"
	"math/bits"
)

// CompressInt64 encodes values with delta-of-delta coding. Regularly spaced
// timestamps cost one bit each.
func CompressInt64(values []int64) []byte {
	var w bitWriter
	if len(values) == 0 {
		return w.bytes()
	}
	w.writeBits(uint64(values[0]), 64)
	if len(values) == 1 {
		return w.bytes()
	}

	prevDelta := values[1] - values[0]
	w.writeBits(uint64(prevDelta), 64)
	prev := values[1]

	for _, v := range values[2:] {
		delta := v - prev
		dod := delta - prevDelta

		switch {
		case dod == 0:
			w.writeBits(0b0, 1)
		case dod >= -64 && dod <= 63:
			w.writeBits(0b10, 2)
			w.writeBits(uint64(dod)&0x7F, 7)
		case dod >= -256 && dod <= 255:
			w.writeBits(0b110, 3)
			w.writeBits(uint64(dod)&0x1FF, 9)
		case dod >= -2048 && dod <= 2047:
			w.writeBits(0b1110, 4)
			w.writeBits(uint64(dod)&0xFFF, 12)
		default:
			w.writeBits(0b1111, 4)
			w.writeBits(uint64(dod), 64)
		}
		prev, prevDelta = v, delta
	}
	return w.bytes()
}

// DecompressInt64 decodes count values written by CompressInt64.
func DecompressInt64(data []byte, count int) ([]int64, error) {
	out := make([]int64, 0, count)
	if count == 0 {
		return out, nil
	}
	r := bitReader{buf: data}

	first, err := r.readBits(64)
	if err != nil {
		return nil, err
	}
	out = append(out, int64(first))
	if count == 1 {
		return out, nil
	}

	d, err := r.readBits(64)
	if err != nil {
		return nil, err
	}
	prevDelta := int64(d)
	prev := int64(first) + prevDelta
	out = append(out, prev)

	for len(out) < count {
		dod, err := readDoD(&r)
		if err != nil {
			return nil, err
		}
		prevDelta += dod
		prev += prevDelta
		out = append(out, prev)
	}
	return out, nil
}

func readDoD(r *bitReader) (int64, error) {
	// Count leading one bits of the prefix, at most four.
	ones := uint8(0)
	for ones < 4 {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		if !bit {
			break
		}
		ones++
	}

	var width uint8
	switch ones {
	case 0:
		return 0, nil
	case 1:
		width = 7
	case 2:
		width = 9
	case 3:
		width = 12
	default:
		v, err := r.readBits(64)
		return int64(v), err
	}
	v, err := r.readBits(width)
	if err != nil {
		return 0, err
	}
	return signExtend(v, width), nil
}

func signExtend(v uint64, width uint8) int64 {
	shift := 64 - width
	return int64(v<<shift) >> shift
}

// CompressFloat64 encodes values by XOR-ing each with its predecessor and
// storing only the meaningful bits of the result.
func CompressFloat64(values []float64) []byte {
	var w bitWriter
	if len(values) == 0 {
		return w.bytes()
	}

	prev := math.Float64bits(values[0])
	w.writeBits(prev, 64)

	var leading, trailing uint8
	haveWindow := false

	for _, f := range values[1:] {
		cur := math.Float64bits(f)
		xor := cur ^ prev
		prev = cur

		if xor == 0 {
			w.writeBits(0b0, 1)
			continue
		}
		w.writeBits(0b1, 1)

		lz := uint8(bits.LeadingZeros64(xor))
		tz := uint8(bits.TrailingZeros64(xor))
		if haveWindow && lz >= leading && tz >= trailing {
			w.writeBits(0b0, 1)
			w.writeBits(xor>>trailing, 64-leading-trailing)
			continue
		}

		meaningful := 64 - lz - tz
		w.writeBits(0b1, 1)
		w.writeBits(uint64(lz), 6)
		w.writeBits(uint64(meaningful-1), 6)
		w.writeBits(xor>>tz, meaningful)
		leading, trailing, haveWindow = lz, tz, true
	}
	return w.bytes()
}

// DecompressFloat64 decodes count values written by CompressFloat64.
func DecompressFloat64(data []byte, count int) ([]float64, error) {
	out := make([]float64, 0, count)
	if count == 0 {
		return out, nil
	}
	r := bitReader{buf: data}

	prev, err := r.readBits(64)
	if err != nil {
		return nil, err
	}
	out = append(out, math.Float64frombits(prev))

	var leading, trailing uint8
	for len(out) < count {
		changed, err := r.readBit()
		if err != nil {
			return nil, err
		}
		if !changed {
			out = append(out, math.Float64frombits(prev))
			continue
		}

		newWindow, err := r.readBit()
		if err != nil {
			return nil, err
		}
		if newWindow {
			lz, err := r.readBits(6)
			if err != nil {
				return nil, err
			}
			m, err := r.readBits(6)
			if err != nil {
				return nil, err
			}
			leading = uint8(lz)
			trailing = 64 - leading - uint8(m+1)
		}

		v, err := r.readBits(64 - leading - trailing)
		if err != nil {
			return nil, err
		}
		prev ^= v << trailing
		out = append(out, math.Float64frombits(prev))
	}
	return out, nil
}
