package cowdb

import (
	"bytes"
	"fmt"
	"io"
	"reflect"

	"github.com/andreyvit/cowdb/codec"
)

// Record is the unit of storage. Concrete types usually embed Meta for the
// identity and version bookkeeping and implement the rest themselves.
//
// TypeName must not depend on any field and must work on a zero value: it is
// used as the on-disk and in-index discriminator, and the store calls it on a
// freshly allocated value to learn which records a typed operation wants.
//
// Serialize must write the id and version along with all fields; Deserialize
// must be its exact inverse. Clone must return a value of the same concrete
// type that shares no mutable state with the receiver.
type Record interface {
	ID() uint64
	Version() uint64
	SetID(id uint64)
	SetVersion(ver uint64)
	TypeName() string
	Serialize(w io.Writer) error
	Deserialize(r io.Reader) error
	Clone() Record
}

// Indexer is implemented by records that want some of their fields indexed.
// The map is keyed by field name; values are compared as strings.
type Indexer interface {
	IndexValues() map[string]string
}

// NumericIndexer designates indexed fields that range queries compare as
// floating-point numbers instead of strings.
type NumericIndexer interface {
	NumericFields() []string
}

// Meta implements the identity half of Record.
type Meta struct {
	id      uint64
	version uint64
}

func (m *Meta) ID() uint64 {
	return m.id
}

func (m *Meta) Version() uint64 {
	return m.version
}

func (m *Meta) SetID(id uint64) {
	m.id = id
}

func (m *Meta) SetVersion(ver uint64) {
	m.version = ver
}

// WriteMeta writes id then version, which is how every record payload starts.
func (m *Meta) WriteMeta(w io.Writer) error {
	if err := codec.WriteUint64(w, m.id); err != nil {
		return err
	}
	return codec.WriteUint64(w, m.version)
}

func (m *Meta) ReadMeta(r io.Reader) error {
	id, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	ver, err := codec.ReadUint64(r)
	if err != nil {
		return err
	}
	m.id, m.version = id, ver
	return nil
}

var emptyIndexValues = map[string]string{}

// IndexValues returns the index values of rec, or an empty map if rec's type
// doesn't index anything. The result must not be modified.
func IndexValues(rec Record) map[string]string {
	if ixr, ok := rec.(Indexer); ok {
		if m := ixr.IndexValues(); m != nil {
			return m
		}
	}
	return emptyIndexValues
}

// IndexValue returns a single index value of rec, or "" if rec doesn't have
// one for field.
func IndexValue(rec Record, field string) string {
	return IndexValues(rec)[field]
}

func isNumericField(rec Record, field string) bool {
	nix, ok := rec.(NumericIndexer)
	if !ok {
		return false
	}
	for _, f := range nix.NumericFields() {
		if f == field {
			return true
		}
	}
	return false
}

// NewRecord allocates a zero record of type T, which must be a pointer to a struct.
func NewRecord[T Record]() T {
	rt := reflect.TypeFor[T]()
	if rt.Kind() != reflect.Ptr || rt.Elem().Kind() != reflect.Struct {
		panic(fmt.Errorf("record type must be a pointer to a struct, got %v", rt))
	}
	return reflect.New(rt.Elem()).Interface().(T)
}

// TypeNameOf returns T's type discriminator.
func TypeNameOf[T Record]() string {
	return NewRecord[T]().TypeName()
}

// Encode serializes rec into a new payload.
func Encode(rec Record) ([]byte, error) {
	var bb codec.Buffer
	if err := rec.Serialize(&bb); err != nil {
		return nil, fmt.Errorf("cowdb: serializing %s/%d: %w", rec.TypeName(), rec.ID(), err)
	}
	return bb.Bytes(), nil
}

// Decode deserializes a payload produced by Encode. Truncated payloads,
// oversized length prefixes and trailing garbage are all *DecodeError.
func Decode[T Record](payload []byte) (T, error) {
	rec := NewRecord[T]()
	r := bytes.NewReader(payload)
	err := rec.Deserialize(r)
	if err != nil {
		var zero T
		return zero, decodeErrf(rec.TypeName(), payload, int(r.Size())-r.Len(), err, "decoding payload")
	}
	if r.Len() != 0 {
		var zero T
		return zero, decodeErrf(rec.TypeName(), payload, int(r.Size())-r.Len(), nil, "%d trailing bytes after payload", r.Len())
	}
	return rec, nil
}

func cloneAs[T Record](rec Record) T {
	c, ok := rec.Clone().(T)
	if !ok {
		panic(fmt.Errorf("%s: Clone returned %T, expected %v", rec.TypeName(), rec.Clone(), reflect.TypeFor[T]()))
	}
	return c
}

func cloneRecord(rec Record) Record {
	c := rec.Clone()
	if reflect.TypeOf(c) != reflect.TypeOf(rec) {
		panic(fmt.Errorf("%s: Clone returned %T, expected %T", rec.TypeName(), c, rec))
	}
	return c
}
