package compression

import "errors"

// ErrShortBuffer is returned when a compressed stream ends before the
// expected number of values was decoded.
var ErrShortBuffer = errors.New("compression: truncated stream")

// bitWriter appends bits most-significant first.
type bitWriter struct {
	buf  []byte
	used uint8 // bits used in the last byte, 0 means a new byte is needed
}

func (w *bitWriter) writeBit(bit bool) {
	if w.used == 0 {
		w.buf = append(w.buf, 0)
	}
	if bit {
		w.buf[len(w.buf)-1] |= 1 << (7 - w.used)
	}
	w.used = (w.used + 1) % 8
}

// writeBits writes the low n bits of v.
func (w *bitWriter) writeBits(v uint64, n uint8) {
	for i := int(n) - 1; i >= 0; i-- {
		w.writeBit((v>>uint(i))&1 == 1)
	}
}

func (w *bitWriter) bytes() []byte {
	return w.buf
}

type bitReader struct {
	buf []byte
	pos int // absolute bit position
}

func (r *bitReader) readBit() (bool, error) {
	idx := r.pos / 8
	if idx >= len(r.buf) {
		return false, ErrShortBuffer
	}
	bit := r.buf[idx]&(1<<(7-uint(r.pos%8))) != 0
	r.pos++
	return bit, nil
}

func (r *bitReader) readBits(n uint8) (uint64, error) {
	var v uint64
	for i := uint8(0); i < n; i++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		v <<= 1
		if bit {
			v |= 1
		}
	}
	return v, nil
}
