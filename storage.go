package cowdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/andreyvit/cowdb/codec"
)

// Snapshot file layout (all integers little-endian):
//
//	file   = count:u64 record*
//	record = typeName:string payloadLen:u64 payload
//	string = len:u32 bytes
//
// The payload is whatever the record's Serialize wrote. Because it is length
// prefixed, loaders skip records of other types without decoding them.

const maxTypeNameLen = 1 << 16

// Save writes every record to path, replacing the file atomically: the data
// goes to a temporary file in the same directory which is then renamed over
// path. Records are written in ascending id order.
func (s *Store) Save(path string) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return ioErrf(path, err, "save: open")
	}
	tmpName := f.Name()
	closed := false
	defer func() {
		if !closed {
			f.Close()
		}
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(f)
	n, err := s.writeTo(w)
	if err != nil {
		return ioErrf(path, err, "save: writing")
	}
	if err := w.Flush(); err != nil {
		return ioErrf(path, err, "save: writing")
	}
	if err := f.Chmod(0o644); err != nil {
		return ioErrf(path, err, "save: chmod")
	}
	if err := f.Sync(); err != nil {
		return ioErrf(path, err, "save: sync")
	}
	closed = true
	if err := f.Close(); err != nil {
		return ioErrf(path, err, "save: close")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return ioErrf(path, err, "save: rename")
	}
	tmpName = ""

	if s.verbose {
		s.logf("cowdb: SAVE %s => %d records", path, n)
	}
	return nil
}

// WriteTo writes the snapshot format to w without any file handling.
func (s *Store) WriteTo(w io.Writer) error {
	_, err := s.writeTo(w)
	return err
}

func (s *Store) writeTo(w io.Writer) (int, error) {
	bb := payloadBufPool.Get().(*codec.Buffer)
	defer releasePayloadBuf(bb)

	ids := s.IDs()
	if err := codec.WriteUint64(w, uint64(len(ids))); err != nil {
		return 0, err
	}
	for i, id := range ids {
		rec := s.records[id]
		bb.Reset()
		if err := rec.Serialize(bb); err != nil {
			return i, fmt.Errorf("serializing %s/%d: %w", rec.TypeName(), id, err)
		}
		if err := codec.WriteString(w, rec.TypeName()); err != nil {
			return i, err
		}
		if err := codec.WriteUint64(w, uint64(bb.Len())); err != nil {
			return i, err
		}
		if _, err := w.Write(bb.Bytes()); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// Load restores every T from the snapshot at path, keeping the ids and
// versions recorded in the file; records of other types are skipped. Call it
// once per record type to restore a whole store. An empty file is not an
// error and loads nothing.
//
// The file is fully read and validated before the store is modified, so a
// failed Load leaves the store as it was.
func Load[T Record](s *Store, path string) error {
	typeName := TypeNameOf[T]()

	f, err := os.Open(path)
	if err != nil {
		return ioErrf(path, err, "load %s: open", typeName)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return ioErrf(path, err, "load %s: stat", typeName)
	}
	if st.Size() == 0 {
		if s.verbose {
			s.logf("cowdb: LOAD.EMPTY %s", path)
		}
		return nil
	}

	recs, err := decodeSnapshot[T](bufio.NewReader(f), typeName, path, st.Size())
	if err != nil {
		return err
	}
	for _, rec := range recs {
		s.restore(rec)
	}
	if s.verbose {
		s.logf("cowdb: LOAD %s %s => %d records", path, typeName, len(recs))
	}
	return nil
}

// LoadFrom is Load for an arbitrary reader. Empty input loads nothing.
func LoadFrom[T Record](s *Store, r io.Reader) error {
	typeName := TypeNameOf[T]()
	br := bufio.NewReader(r)
	if _, err := br.Peek(1); err == io.EOF {
		return nil
	}
	recs, err := decodeSnapshot[T](br, typeName, "", -1)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		s.restore(rec)
	}
	return nil
}

type countingReader struct {
	r *bufio.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// decodeSnapshot reads all records of the snapshot from r, decoding those
// named typeName. size is the total input size, or -1 if unknown.
func decodeSnapshot[T Record](r *bufio.Reader, typeName, path string, size int64) ([]T, error) {
	cr := &countingReader{r: r}
	remaining := func() int64 {
		if size < 0 {
			return -1
		}
		return size - cr.n
	}
	ioErr := func(err error, format string, args ...any) error {
		return ioErrf(path, err, "load %s: %s", typeName, fmt.Sprintf(format, args...))
	}
	decErr := func(err error, format string, args ...any) error {
		e := decodeErrf(typeName, nil, int(cr.n), err, format, args...)
		e.Path = path
		return e
	}

	count, err := codec.ReadUint64(cr)
	if err != nil {
		return nil, ioErr(err, "reading record count")
	}

	var result []T
	for i := uint64(0); i < count; i++ {
		nameLen, err := codec.ReadUint32(cr)
		if err != nil {
			return nil, ioErr(err, "reading record %d type", i)
		}
		if nameLen > maxTypeNameLen {
			return nil, decErr(nil, "record %d: malformed type name length %d", i, nameLen)
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(cr, nameBuf); err != nil {
			return nil, ioErr(err, "reading record %d type", i)
		}
		name := string(nameBuf)

		payloadLen, err := codec.ReadUint64(cr)
		if err != nil {
			return nil, ioErr(err, "reading record %d payload length", i)
		}
		if rem := remaining(); payloadLen > math.MaxInt64 || (rem >= 0 && payloadLen > uint64(rem)) {
			return nil, decErr(nil, "record %d (%s): payload length %d exceeds %d remaining bytes", i, name, payloadLen, rem)
		}

		if name != typeName {
			skipped, err := io.CopyN(io.Discard, cr, int64(payloadLen))
			if err != nil {
				return nil, decErr(unexpectedEOF(err), "record %d (%s): payload has %d of %d bytes", i, name, skipped, payloadLen)
			}
			continue
		}

		payload, err := readPayload(cr, payloadLen, size >= 0)
		if err != nil {
			return nil, decErr(err, "record %d: payload has %d of %d bytes", i, len(payload), payloadLen)
		}
		rec, err := Decode[T](payload)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				de.Path = path
				de.Msg = fmt.Sprintf("record %d: %s", i, de.Msg)
			}
			return nil, err
		}
		if rec.ID() == 0 {
			return nil, decErr(nil, "record %d has zero id", i)
		}
		result = append(result, rec)
	}
	return result, nil
}

// readPayload reads exactly n bytes. When the input size isn't known up front,
// the buffer grows as data arrives instead of trusting n.
func readPayload(r io.Reader, n uint64, sized bool) ([]byte, error) {
	if sized {
		payload := make([]byte, n)
		k, err := io.ReadFull(r, payload)
		if err != nil {
			return payload[:k], unexpectedEOF(err)
		}
		return payload, nil
	}
	payload, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return payload, err
	}
	if uint64(len(payload)) < n {
		return payload, io.ErrUnexpectedEOF
	}
	return payload, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
