package cowdb

// Query returns every T whose index value for field equals value exactly,
// in index order. Unknown types and fields yield no results.
func Query[T Record](s *Store, field, value string) []Handle[T] {
	typeName := TypeNameOf[T]()
	var result []Handle[T]
	for _, id := range s.indexedIDs(typeName, field) {
		rec, ok := s.records[id].(T)
		if !ok {
			continue
		}
		if IndexValue(rec, field) == value {
			result = append(result, NewHandle(cloneAs[T](rec)))
		}
	}
	if s.verbose {
		s.logf("cowdb: QUERY %s.%s=%q => %d", typeName, field, value, len(result))
	}
	return result
}

// Lookup returns the first T whose field equals value, or an empty handle.
func Lookup[T Record](s *Store, field, value string) Handle[T] {
	for _, id := range s.indexedIDs(TypeNameOf[T](), field) {
		rec, ok := s.records[id].(T)
		if ok && IndexValue(rec, field) == value {
			return NewHandle(cloneAs[T](rec))
		}
	}
	return Handle[T]{}
}
