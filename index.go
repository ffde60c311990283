package cowdb

import (
	"fmt"
	"slices"
	"sort"
)

// Indexes are derived state: for every type and field, the ids of the live
// records of that type whose IndexValues contain the field. Lists keep
// insertion order, so a record that gets updated moves to the end. Values
// aren't stored; scans re-read them from the records.

func (s *Store) fieldsOf(typeName string) map[string][]uint64 {
	fields := s.indexes[typeName]
	if fields == nil {
		fields = make(map[string][]uint64)
		s.indexes[typeName] = fields
	}
	return fields
}

// put installs rec, which the store must already own, under id.
func (s *Store) put(id uint64, rec Record) {
	if old, ok := s.records[id]; ok && old.TypeName() != rec.TypeName() {
		s.unindex(old.TypeName(), id)
	}
	s.records[id] = rec
	s.index(id, rec)
}

func (s *Store) index(id uint64, rec Record) {
	fields := s.fieldsOf(rec.TypeName())
	for field, ids := range fields {
		fields[field] = removeID(ids, id)
	}
	for field := range IndexValues(rec) {
		fields[field] = append(fields[field], id)
	}
}

func (s *Store) unindex(typeName string, id uint64) {
	fields := s.indexes[typeName]
	for field, ids := range fields {
		fields[field] = removeID(ids, id)
	}
}

func removeID(ids []uint64, id uint64) []uint64 {
	return slices.DeleteFunc(ids, func(v uint64) bool { return v == id })
}

// indexedIDs returns the id list of the given type and field. The result must
// not be modified.
func (s *Store) indexedIDs(typeName, field string) []uint64 {
	return s.indexes[typeName][field]
}

// IndexedFields returns the fields that have an index for the given type,
// sorted by name.
func (s *Store) IndexedFields(typeName string) []string {
	fields := s.indexes[typeName]
	result := make([]string, 0, len(fields))
	for field := range fields {
		result = append(result, field)
	}
	sort.Strings(result)
	return result
}

// Reindex rebuilds every index from the stored records. Afterwards the id
// lists are in ascending id order.
func (s *Store) Reindex() {
	clear(s.indexes)
	for _, id := range s.IDs() {
		s.index(id, s.records[id])
	}
	if s.verbose {
		s.logf("cowdb: REINDEX %d records", len(s.records))
	}
}

// VerifyIndexes checks that the indexes are exactly what the stored records
// imply: every live record appears once in the list of each field it indexes,
// and nothing else appears anywhere.
func (s *Store) VerifyIndexes() error {
	for typeName, fields := range s.indexes {
		for field, ids := range fields {
			seen := make(map[uint64]bool, len(ids))
			for _, id := range ids {
				if seen[id] {
					return fmt.Errorf("cowdb: index %s.%s lists %d twice", typeName, field, id)
				}
				seen[id] = true
				rec, ok := s.records[id]
				if !ok {
					return fmt.Errorf("cowdb: index %s.%s lists missing record %d", typeName, field, id)
				}
				if rec.TypeName() != typeName {
					return fmt.Errorf("cowdb: index %s.%s lists %d which is a %s", typeName, field, id, rec.TypeName())
				}
				if _, ok := IndexValues(rec)[field]; !ok {
					return fmt.Errorf("cowdb: index %s.%s lists %d which has no such field", typeName, field, id)
				}
			}
		}
	}
	for id, rec := range s.records {
		typeName := rec.TypeName()
		for field := range IndexValues(rec) {
			if !slices.Contains(s.indexes[typeName][field], id) {
				return fmt.Errorf("cowdb: index %s.%s is missing %d", typeName, field, id)
			}
		}
	}
	return nil
}
