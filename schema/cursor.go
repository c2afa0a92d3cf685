package schema

import "encoding/binary"

// reader is a bounds-checked cursor over a schema block. After the
// first short read every accessor returns zero values and ok reports
// false, so decode loops need a single check at the end.
type reader struct {
	buf  []byte
	off  int
	fail bool
}

func (r *reader) ok() bool { return !r.fail }

func (r *reader) take(n int) []byte {
	if r.fail || r.off+n > len(r.buf) {
		r.fail = true
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) byte() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) uint16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) uint64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) string() string {
	n := r.uint64()
	if r.fail || n > uint64(len(r.buf)-r.off) {
		r.fail = true
		return ""
	}
	return string(r.take(int(n)))
}

// writer appends fixed-width fields to a pre-sized buffer. Bounds are
// validated by EncodedSize before encoding starts.
type writer struct {
	buf []byte
	off int
}

func (w *writer) byte(b byte) {
	w.buf[w.off] = b
	w.off++
}

func (w *writer) uint16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *writer) uint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *writer) string(s string) {
	w.uint64(uint64(len(s)))
	copy(w.buf[w.off:], s)
	w.off += len(s)
}
