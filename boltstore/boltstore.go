// Package boltstore keeps cowdb snapshots in a bbolt database instead of the
// flat snapshot file.
//
// Every record type gets its own top-level bucket named after the type; keys
// are big-endian ids, so a cursor walks records in id order, and values are
// the record payloads exactly as Serialize writes them. A separate bucket
// remembers the id allocator, which lets a reload avoid reusing the ids of
// records that were removed before the save.
package boltstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/andreyvit/cowdb"
)

var (
	metaBucket = []byte(".meta")
	nextIDKey  = []byte("next_id")
)

// ErrReservedTypeName is returned by Save for a record type whose name clashes
// with the bucket that holds the allocator state.
var ErrReservedTypeName = errors.New("type name is reserved")

func open(path string, readOnly bool) (*bbolt.DB, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	bopt.ReadOnly = readOnly
	return bbolt.Open(path, 0o666, &bopt)
}

func idKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}

// Save writes every record of s into the bbolt database at path, creating it
// if needed. All existing buckets are dropped first, so after a successful
// Save the database mirrors the store exactly. Everything happens in a single
// bbolt transaction.
func Save(s *cowdb.Store, path string) error {
	bdb, err := open(path, false)
	if err != nil {
		return &cowdb.IOError{Op: "bolt save: open", Path: path, Err: err}
	}

	err = bdb.Update(func(btx *bbolt.Tx) error {
		var names [][]byte
		err := btx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, slices.Clone(name))
			return nil
		})
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := btx.DeleteBucket(name); err != nil {
				return err
			}
		}

		buckets := make(map[string]*bbolt.Bucket)
		for rec := range s.All() {
			typeName := rec.TypeName()
			b := buckets[typeName]
			if b == nil {
				if typeName == string(metaBucket) {
					return fmt.Errorf("%q: %w", typeName, ErrReservedTypeName)
				}
				b, err = btx.CreateBucket([]byte(typeName))
				if err != nil {
					return fmt.Errorf("bucket %s: %w", typeName, err)
				}
				buckets[typeName] = b
			}
			payload, err := cowdb.Encode(rec)
			if err != nil {
				return fmt.Errorf("serializing %s/%d: %w", typeName, rec.ID(), err)
			}
			if err := b.Put(idKey(rec.ID()), payload); err != nil {
				return err
			}
		}

		meta, err := btx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		return meta.Put(nextIDKey, idKey(s.NextID()))
	})
	cerr := bdb.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		return &cowdb.IOError{Op: "bolt save", Path: path, Err: err}
	}
	return nil
}

// Load restores every T stored in the bbolt database at path, keeping ids and
// versions, and moves the store's id allocator past anything the database
// had allocated. A missing or empty file, or a database without a bucket for
// T, loads nothing.
//
// As with cowdb.Load, all records are decoded before the store is touched.
func Load[T cowdb.Record](s *cowdb.Store, path string) error {
	typeName := cowdb.TypeNameOf[T]()

	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return &cowdb.IOError{Op: "bolt load " + typeName + ": stat", Path: path, Err: err}
	}
	if st.Size() == 0 {
		return nil
	}

	bdb, err := open(path, true)
	if err != nil {
		return &cowdb.IOError{Op: "bolt load " + typeName + ": open", Path: path, Err: err}
	}
	defer bdb.Close()

	var recs []T
	var nextID uint64
	err = bdb.View(func(btx *bbolt.Tx) error {
		if meta := btx.Bucket(metaBucket); meta != nil {
			if v := meta.Get(nextIDKey); len(v) == 8 {
				nextID = binary.BigEndian.Uint64(v)
			}
		}

		b := btx.Bucket([]byte(typeName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return &cowdb.DecodeError{TypeName: typeName, Path: path, Data: slices.Clone(k), Msg: "malformed key"}
			}
			id := binary.BigEndian.Uint64(k)
			if v == nil {
				return &cowdb.DecodeError{TypeName: typeName, Path: path, Msg: fmt.Sprintf("key %d is a nested bucket", id)}
			}
			// v is only valid for the life of the transaction
			rec, err := cowdb.Decode[T](slices.Clone(v))
			if err != nil {
				var de *cowdb.DecodeError
				if errors.As(err, &de) {
					de.Path = path
					de.Msg = fmt.Sprintf("key %d: %s", id, de.Msg)
				}
				return err
			}
			if rec.ID() != id {
				return &cowdb.DecodeError{TypeName: typeName, Path: path, Msg: fmt.Sprintf("key %d holds record %d", id, rec.ID())}
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		var de *cowdb.DecodeError
		if errors.As(err, &de) {
			return err
		}
		return &cowdb.IOError{Op: "bolt load " + typeName, Path: path, Err: err}
	}

	for _, rec := range recs {
		s.Restore(rec)
	}
	s.ReserveIDs(nextID)
	return nil
}
