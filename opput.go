package cowdb

import "fmt"

// Add stores a copy of rec under a newly allocated id and returns the id.
// rec's own id and version are overwritten with the assigned id and 0.
func (s *Store) Add(rec Record) uint64 {
	if rec == nil {
		panic("cowdb: Add(nil)")
	}
	id := s.nextID
	s.nextID++
	rec.SetID(id)
	rec.SetVersion(0)

	stored := cloneRecord(rec)
	s.put(id, stored)

	if s.verbose {
		s.logf("cowdb: ADD %s/%d v0 %s", rec.TypeName(), id, loggableRecord(stored))
	}
	s.notify(OpAdd, stored)
	return id
}

// Update replaces whatever is stored under id with a copy of rec and
// recomputes the indexes for id. The last writer wins: the version carried by
// rec is stored as-is and not checked against the stored one. Use
// CompareAndUpdate to reject stale writes.
//
// rec's id is set to id. Updating an id that was never allocated stores the
// record anyway and moves the allocator past it. Id 0 is never valid and
// panics.
func (s *Store) Update(id uint64, rec Record) {
	if rec == nil {
		panic("cowdb: Update(nil)")
	}
	if id == 0 {
		panic(fmt.Errorf("cowdb: cannot update %s with zero id", rec.TypeName()))
	}
	rec.SetID(id)
	stored := cloneRecord(rec)
	s.put(id, stored)
	s.advanceNextID(id)

	if s.verbose {
		s.logf("cowdb: UPDATE %s/%d v%d %s", rec.TypeName(), id, rec.Version(), loggableRecord(stored))
	}
	s.notify(OpUpdate, stored)
}

// CompareAndUpdate is Update that only succeeds if rec was derived from the
// version currently stored under id, i.e. a record of the same type with
// version rec.Version()-1 exists there. Otherwise it returns *ConflictError
// and leaves the store untouched.
func (s *Store) CompareAndUpdate(id uint64, rec Record) error {
	if rec == nil {
		panic("cowdb: CompareAndUpdate(nil)")
	}
	if id == 0 {
		panic(fmt.Errorf("cowdb: cannot update %s with zero id", rec.TypeName()))
	}
	cur, ok := s.records[id]
	if !ok || cur.TypeName() != rec.TypeName() {
		return &ConflictError{TypeName: rec.TypeName(), ID: id, NewVersion: rec.Version(), Missing: true}
	}
	if rec.Version() == 0 || cur.Version() != rec.Version()-1 {
		if s.verbose {
			s.logf("cowdb: UPDATE.CONFLICT %s/%d stored=v%d new=v%d", rec.TypeName(), id, cur.Version(), rec.Version())
		}
		return &ConflictError{TypeName: rec.TypeName(), ID: id, StoredVersion: cur.Version(), NewVersion: rec.Version()}
	}
	s.Update(id, rec)
	return nil
}

// Restore stores a copy of rec under its own id and version, as loaders do.
// The id allocator moves past rec's id. A zero id is a programming error.
func (s *Store) Restore(rec Record) {
	if rec == nil {
		panic("cowdb: Restore(nil)")
	}
	s.restore(cloneRecord(rec))
}

func (s *Store) restore(stored Record) {
	id := stored.ID()
	if id == 0 {
		panic(fmt.Errorf("cowdb: cannot restore %s with zero id", stored.TypeName()))
	}
	s.put(id, stored)
	s.advanceNextID(id)

	if s.verbose {
		s.logf("cowdb: RESTORE %s/%d v%d %s", stored.TypeName(), id, stored.Version(), loggableRecord(stored))
	}
	s.notify(OpLoad, stored)
}
