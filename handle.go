package cowdb

// Handle is a typed view of one version of a record. Handles never alias each
// other's data: the store gives every Get its own copy, and NewVersion clones.
//
// The zero Handle is empty, which is how lookups report "not found".
type Handle[T Record] struct {
	id      uint64
	version uint64
	rec     T
	ok      bool
}

// NewHandle wraps rec as-is, taking its id and version from the record.
func NewHandle[T Record](rec T) Handle[T] {
	return Handle[T]{rec.ID(), rec.Version(), rec, true}
}

func (h Handle[T]) ID() uint64 {
	return h.id
}

func (h Handle[T]) Version() uint64 {
	return h.version
}

// Get returns the record, or the zero T for an empty handle.
func (h Handle[T]) Get() T {
	return h.rec
}

// Valid reports whether the handle holds a record.
func (h Handle[T]) Valid() bool {
	return h.ok
}

// NewVersion derives the next version: a detached clone of the record with
// the same id and version+1. The receiver is unaffected. The store is not
// touched either; write the result back with Store.Update.
func (h Handle[T]) NewVersion() Handle[T] {
	if !h.ok {
		return Handle[T]{}
	}
	next := cloneAs[T](h.rec)
	next.SetID(h.id)
	next.SetVersion(h.version + 1)
	return Handle[T]{h.id, h.version + 1, next, true}
}
