package codec

import "io"

// Buffer is a growable byte slice that implements io.Writer. Unlike
// bytes.Buffer it never reads, so Bytes always returns everything written
// since the last Reset.
type Buffer struct {
	Buf []byte
}

var _ io.Writer = (*Buffer)(nil)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func (bb *Buffer) Grow(n int) (off int) {
	off = len(bb.Buf)
	bb.Buf = ensureCapacity(bb.Buf, off+n)[:off+n]
	return
}

func (bb *Buffer) Write(b []byte) (int, error) {
	off := bb.Grow(len(b))
	copy(bb.Buf[off:], b)
	return len(b), nil
}

func (bb *Buffer) WriteString(s string) (int, error) {
	off := bb.Grow(len(s))
	copy(bb.Buf[off:], s)
	return len(s), nil
}

func (bb *Buffer) WriteByte(v byte) error {
	off := bb.Grow(1)
	bb.Buf[off] = v
	return nil
}

func (bb *Buffer) Bytes() []byte {
	return bb.Buf
}

func (bb *Buffer) Len() int {
	return len(bb.Buf)
}

func (bb *Buffer) Reset() {
	bb.Buf = bb.Buf[:0]
}
