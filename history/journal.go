// Package history implements an append-only journal of cowdb store changes.
//
// Hook a Journal into cowdb.Options.OnChange and every add, update, removal
// and load gets appended as a checksummed frame. The file can later be read
// back in order, e.g. for auditing or to rebuild a store.
//
// File format:
//
//   - file = frame*
//   - frame = size:32 data checksum:64
//   - data = op:8 seq:64 typeName:string id:64 version:64 payload:bytes
//   - string, bytes = len:32 raw
//
// All integers are little-endian. The checksum is the xxhash64 of data. A
// frame that is truncated or fails its checksum marks the end of the
// journal; Open trims such a tail before appending.
package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/cowdb"
	"github.com/andreyvit/cowdb/codec"
)

var (
	ErrClosed    = errors.New("journal is closed")
	errCorrupted = errors.New("corrupted journal frame")
)

// MaxFrameSize bounds the data of a single frame. Larger size fields are
// treated as corruption.
const MaxFrameSize = 64 * 1024 * 1024

const (
	frameHeaderSize  = 4
	frameTrailerSize = 8
)

type Options struct {
	Context context.Context
	Logger  *slog.Logger
	Verbose bool
}

// Entry is one decoded frame.
type Entry struct {
	Seq      uint64
	Op       cowdb.Op
	TypeName string
	ID       uint64
	Version  uint64
	Payload  []byte // nil for removals
}

// Journal appends frames to a single file. It is safe for concurrent use.
type Journal struct {
	context context.Context
	path    string
	logger  *slog.Logger
	verbose bool

	writeLock sync.Mutex
	f         *os.File
	size      int64
	seq       uint64
	writeErr  error
	buf       codec.Buffer
}

// Open opens the journal at path for appending, creating it if necessary.
// Existing frames are validated; anything after the last valid frame is
// trimmed with a warning, and sequence numbers continue from that frame.
func Open(path string, o Options) (*Journal, error) {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	var ok bool
	defer closeUnlessOK(f, &ok)

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	var lastSeq uint64
	valid, err := readFrames(bufio.NewReader(f), func(e Entry) error {
		lastSeq = e.Seq
		return nil
	})
	if errors.Is(err, errCorrupted) {
		o.Logger.LogAttrs(o.Context, slog.LevelWarn, "history: trimming corrupted tail", slog.String("file", path), slog.Int64("size", st.Size()), slog.Int64("valid", valid), slog.Any("err", err))
		if err := f.Truncate(valid); err != nil {
			return nil, fmt.Errorf("history: trimming %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("history: reading %s: %w", path, err)
	}
	if _, err := f.Seek(valid, io.SeekStart); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	if o.Verbose {
		o.Logger.LogAttrs(o.Context, slog.LevelDebug, "history: opened", slog.String("file", path), slog.Int64("size", valid), slog.Uint64("seq", lastSeq))
	}

	ok = true
	return &Journal{
		context: o.Context,
		path:    path,
		logger:  o.Logger,
		verbose: o.Verbose,
		f:       f,
		size:    valid,
		seq:     lastSeq,
	}, nil
}

func (j *Journal) String() string {
	return j.path
}

// Seq returns the sequence number of the last appended frame.
func (j *Journal) Seq() uint64 {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	return j.seq
}

// Append writes ch as the next frame. After a write failure the journal
// stays failed and every later Append returns the same error.
func (j *Journal) Append(ch *cowdb.Change) error {
	var payload []byte
	if ch.HasRecord() {
		var err error
		payload, err = cowdb.Encode(ch.Record())
		if err != nil {
			return fmt.Errorf("history: serializing %s/%d: %w", ch.TypeName(), ch.ID(), err)
		}
	}

	j.writeLock.Lock()
	defer j.writeLock.Unlock()

	if j.writeErr != nil {
		return j.writeErr
	}
	if j.f == nil {
		return ErrClosed
	}

	seq := j.seq + 1
	frame := appendFrame(&j.buf, Entry{
		Seq:      seq,
		Op:       ch.Op(),
		TypeName: ch.TypeName(),
		ID:       ch.ID(),
		Version:  ch.Version(),
		Payload:  payload,
	})
	if _, err := j.f.Write(frame); err != nil {
		return j.fail(err)
	}
	j.seq = seq
	j.size += int64(len(frame))

	if j.verbose {
		j.logger.LogAttrs(j.context, slog.LevelDebug, "history: append", slog.Uint64("seq", seq), slog.String("op", ch.Op().String()), slog.String("type", ch.TypeName()), slog.Uint64("id", ch.ID()), slog.Uint64("ver", ch.Version()))
	}
	return nil
}

// Hook returns a function suitable for cowdb.Options.OnChange. The store
// cannot receive errors from it; check Err after a batch of changes.
func (j *Journal) Hook() func(ch *cowdb.Change) {
	return func(ch *cowdb.Change) {
		if err := j.Append(ch); err != nil {
			j.writeLock.Lock()
			defer j.writeLock.Unlock()
			if j.writeErr == nil && err != ErrClosed {
				j.writeErr = err
			}
		}
	}
}

// Err returns the first error that made the journal fail, if any.
func (j *Journal) Err() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	return j.writeErr
}

// Sync flushes appended frames to stable storage.
func (j *Journal) Sync() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	if j.f == nil {
		return ErrClosed
	}
	if err := j.f.Sync(); err != nil {
		return j.fail(err)
	}
	return nil
}

func (j *Journal) Close() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

func (j *Journal) fail(err error) error {
	j.logger.LogAttrs(j.context, slog.LevelError, "history: failed", slog.String("file", j.path), slog.Any("err", err))
	if j.writeErr == nil {
		j.writeErr = fmt.Errorf("history: %s: %w", j.path, err)
	}
	return j.writeErr
}

// Read calls fn for every valid frame of the journal at path, in order.
// Reading stops quietly at the first corrupted frame, or with fn's error if
// fn fails.
func Read(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer f.Close()

	_, err = readFrames(bufio.NewReader(f), fn)
	if errors.Is(err, errCorrupted) {
		return nil
	}
	return err
}

func appendFrame(bb *codec.Buffer, e Entry) []byte {
	bb.Reset()
	off := bb.Grow(frameHeaderSize)
	bb.WriteByte(byte(e.Op))
	codec.WriteUint64(bb, e.Seq)
	codec.WriteString(bb, e.TypeName)
	codec.WriteUint64(bb, e.ID)
	codec.WriteUint64(bb, e.Version)
	codec.WriteBytes(bb, e.Payload)

	data := bb.Buf[off+frameHeaderSize:]
	binary.LittleEndian.PutUint32(bb.Buf[off:], uint32(len(data)))
	codec.WriteUint64(bb, xxhash.Sum64(data))
	return bb.Bytes()
}

// readFrames returns the offset just past the last valid frame. A damaged
// frame yields an error wrapping errCorrupted.
func readFrames(r *bufio.Reader, fn func(Entry) error) (int64, error) {
	var valid int64
	var hdr [frameHeaderSize]byte
	for {
		_, err := io.ReadFull(r, hdr[:])
		if err == io.EOF {
			return valid, nil
		} else if err == io.ErrUnexpectedEOF {
			return valid, fmt.Errorf("%w at %d: truncated header", errCorrupted, valid)
		} else if err != nil {
			return valid, err
		}

		size := binary.LittleEndian.Uint32(hdr[:])
		if size > MaxFrameSize {
			return valid, fmt.Errorf("%w at %d: size %d too large", errCorrupted, valid, size)
		}
		buf := make([]byte, int(size)+frameTrailerSize)
		if _, err := io.ReadFull(r, buf); err == io.EOF || err == io.ErrUnexpectedEOF {
			return valid, fmt.Errorf("%w at %d: truncated frame", errCorrupted, valid)
		} else if err != nil {
			return valid, err
		}

		data := buf[:size]
		if sum := binary.LittleEndian.Uint64(buf[size:]); sum != xxhash.Sum64(data) {
			return valid, fmt.Errorf("%w at %d: checksum mismatch", errCorrupted, valid)
		}
		e, err := decodeEntry(data)
		if err != nil {
			return valid, fmt.Errorf("%w at %d: %v", errCorrupted, valid, err)
		}

		if err := fn(e); err != nil {
			return valid, err
		}
		valid += frameHeaderSize + int64(size) + frameTrailerSize
	}
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	r := bytes.NewReader(data)
	op, err := r.ReadByte()
	if err != nil {
		return e, err
	}
	e.Op = cowdb.Op(op)
	if e.Seq, err = codec.ReadUint64(r); err != nil {
		return e, err
	}
	if e.TypeName, err = codec.ReadString(r); err != nil {
		return e, err
	}
	if e.ID, err = codec.ReadUint64(r); err != nil {
		return e, err
	}
	if e.Version, err = codec.ReadUint64(r); err != nil {
		return e, err
	}
	if e.Payload, err = codec.ReadBytes(r); err != nil {
		return e, err
	}
	if r.Len() != 0 {
		return e, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return e, nil
}

func closeUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
}
