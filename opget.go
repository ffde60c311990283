package cowdb

// Get returns a handle to a private copy of the record stored under id. The
// handle is empty if there is no such record or if it's not a T; the two
// cases are deliberately indistinguishable.
func Get[T Record](s *Store, id uint64) Handle[T] {
	rec, ok := s.records[id]
	if !ok {
		if s.verbose {
			s.logf("cowdb: GET.NOTFOUND %d", id)
		}
		return Handle[T]{}
	}
	if _, ok := rec.(T); !ok {
		if s.verbose {
			s.logf("cowdb: GET.MISMATCH %d is %s", id, rec.TypeName())
		}
		return Handle[T]{}
	}
	if s.verbose {
		s.logf("cowdb: GET %s/%d v%d", rec.TypeName(), id, rec.Version())
	}
	return NewHandle(cloneAs[T](rec))
}

// Exists reports whether id holds a T.
func Exists[T Record](s *Store, id uint64) bool {
	rec, ok := s.records[id]
	if !ok {
		return false
	}
	_, ok = rec.(T)
	return ok
}

// All returns handles to every stored T in ascending id order.
func All[T Record](s *Store) []Handle[T] {
	var result []Handle[T]
	for _, id := range s.IDs() {
		if rec, ok := s.records[id].(T); ok {
			result = append(result, NewHandle(cloneAs[T](rec)))
		}
	}
	return result
}
