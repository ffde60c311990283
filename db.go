package cowdb

import (
	"iter"
	"slices"
)

// Store keeps records of any number of types in memory, keyed by an id that
// is unique across all types. It is not safe for concurrent use; callers that
// share a Store between goroutines must serialize access themselves.
type Store struct {
	nextID  uint64
	records map[uint64]Record

	// type name -> field -> ids in insertion order
	indexes map[string]map[string][]uint64

	logf     func(format string, args ...any)
	verbose  bool
	onChange func(ch *Change)
}

type Options struct {
	Logf    func(format string, args ...any)
	Verbose bool

	// OnChange is called after every mutation, including records restored
	// by loaders.
	OnChange func(ch *Change)
}

func New(opt Options) *Store {
	if opt.Logf == nil {
		opt.Logf = func(format string, args ...any) {}
	}
	return &Store{
		nextID:   1,
		records:  make(map[uint64]Record),
		indexes:  make(map[string]map[string][]uint64),
		logf:     opt.Logf,
		verbose:  opt.Verbose,
		onChange: opt.OnChange,
	}
}

// NextID returns the id the next Add will assign.
func (s *Store) NextID() uint64 {
	return s.nextID
}

func (s *Store) Len() int {
	return len(s.records)
}

// IDs returns the ids of all stored records in ascending order.
func (s *Store) IDs() []uint64 {
	ids := make([]uint64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// All iterates over copies of all stored records in ascending id order.
func (s *Store) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, id := range s.IDs() {
			rec, ok := s.records[id]
			if !ok {
				continue // removed while iterating
			}
			if !yield(cloneRecord(rec)) {
				return
			}
		}
	}
}

// Has reports whether a record with the given id exists, of any type.
func (s *Store) Has(id uint64) bool {
	_, ok := s.records[id]
	return ok
}

// TypeNameOfID returns the type name of the record stored under id, or "".
func (s *Store) TypeNameOfID(id uint64) string {
	if rec, ok := s.records[id]; ok {
		return rec.TypeName()
	}
	return ""
}

// ReserveIDs makes sure ids below next are never allocated by Add. It never
// moves the allocator backwards.
func (s *Store) ReserveIDs(next uint64) {
	if next > s.nextID {
		s.nextID = next
	}
}

func (s *Store) advanceNextID(id uint64) {
	if id >= s.nextID {
		s.nextID = id + 1
	}
}

func (s *Store) notify(op Op, rec Record) {
	if s.onChange == nil {
		return
	}
	ch := &Change{op, rec.TypeName(), rec.ID(), rec.Version(), nil}
	if op != OpRemove {
		ch.rec = cloneRecord(rec)
	}
	s.onChange(ch)
}
