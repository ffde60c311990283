package cowdb

// Remove deletes the record stored under id and drops id from the indexes of
// its type. Ids are never reused. Returns false if there was nothing to remove.
func (s *Store) Remove(id uint64) bool {
	rec, ok := s.records[id]
	if !ok {
		if s.verbose {
			s.logf("cowdb: REMOVE.NOTFOUND %d", id)
		}
		return false
	}
	delete(s.records, id)
	s.unindex(rec.TypeName(), id)

	if s.verbose {
		s.logf("cowdb: REMOVE %s/%d v%d", rec.TypeName(), id, rec.Version())
	}
	s.notify(OpRemove, rec)
	return true
}
