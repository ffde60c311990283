// Package codec implements the primitive binary encoding used by cowdb records
// and snapshot files: fixed-width little-endian integers and u32-length-prefixed
// strings and byte slices on top of io.Writer and io.Reader.
//
// Every function reports a *Error when the underlying stream cannot complete
// the operation. Short reads surface as io.ErrUnexpectedEOF inside the *Error.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrLengthExceeds is returned when a length prefix claims more bytes than the
// reader has left.
var ErrLengthExceeds = errors.New("length prefix exceeds remaining data")

type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opErr(op string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &Error{op, err}
}

// remaining matches *bytes.Reader and *strings.Reader. Size keeps *bufio.Reader
// out: its Len only counts buffered bytes.
type remaining interface {
	Len() int
	Size() int64
}

func writeFull(w io.Writer, op string, b []byte) error {
	n, err := w.Write(b)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return opErr(op, err)
	}
	return nil
}

func readFull(r io.Reader, op string, b []byte) error {
	_, err := io.ReadFull(r, b)
	if err != nil {
		return opErr(op, err)
	}
	return nil
}

func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return writeFull(w, "write u64", buf[:])
}

func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if err := readFull(r, "read u64", buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return writeFull(w, "write u32", buf[:])
}

func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if err := readFull(r, "read u32", buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func WriteInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return writeFull(w, "write i32", buf[:])
}

func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if err := readFull(r, "read i32", buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteFloat64 writes the IEEE-754 bits of v as a u64, so every value
// (including NaN payloads and negative zero) survives a round trip.
func WriteFloat64(w io.Writer, v float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	return writeFull(w, "write f64", buf[:])
}

func ReadFloat64(r io.Reader) (float64, error) {
	var buf [8]byte
	if err := readFull(r, "read f64", buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

// WriteString writes a u32 length followed by the raw bytes of s. The empty
// string writes only the zero length.
func WriteString(w io.Writer, s string) error {
	if uint64(len(s)) > math.MaxUint32 {
		return opErr("write string", fmt.Errorf("string too long: %d bytes", len(s)))
	}
	if err := WriteUint32(w, uint32(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	if sw, ok := w.(io.StringWriter); ok {
		n, err := sw.WriteString(s)
		if err == nil && n < len(s) {
			err = io.ErrShortWrite
		}
		if err != nil {
			return opErr("write string", err)
		}
		return nil
	}
	return writeFull(w, "write string", []byte(s))
}

func ReadString(r io.Reader) (string, error) {
	b, err := readVarBytes(r, "read string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteBytes uses the same framing as WriteString.
func WriteBytes(w io.Writer, b []byte) error {
	if uint64(len(b)) > math.MaxUint32 {
		return opErr("write bytes", fmt.Errorf("too long: %d bytes", len(b)))
	}
	if err := WriteUint32(w, uint32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return writeFull(w, "write bytes", b)
}

func ReadBytes(r io.Reader) ([]byte, error) {
	return readVarBytes(r, "read bytes")
}

func readVarBytes(r io.Reader, op string) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if rem, ok := r.(remaining); ok && int64(n) > int64(rem.Len()) {
		return nil, opErr(op, fmt.Errorf("%w: %d bytes remaining, %d wanted", ErrLengthExceeds, rem.Len(), n))
	}
	b := make([]byte, n)
	if err := readFull(r, op, b); err != nil {
		return nil, err
	}
	return b, nil
}
