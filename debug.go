package cowdb

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpTypeHeaders = DumpFlags(1 << iota)
	DumpRecords
	DumpStats
	DumpIndices

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the store for debugging and tests, grouped by type name.
func (s *Store) Dump(f DumpFlags) string {
	var buf strings.Builder
	st := s.Stats()
	if f.Contains(DumpStats) {
		fmt.Fprintf(&buf, "records = %d, next_id = %d\n", st.Records, st.NextID)
	}
	ids := s.IDs()
	for _, name := range st.TypeNames() {
		s.dumpType(&buf, f, name, st.Types[name], ids)
	}
	return buf.String()
}

func (s *Store) dumpType(w *strings.Builder, f DumpFlags, name string, ts *TypeStats, ids []uint64) {
	if f.Contains(DumpTypeHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d records)\n", name, ts.Records)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: index_fields = %d, index_entries = %d\n", name, ts.IndexFields, ts.IndexEntries)
	}
	if f.Contains(DumpRecords) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		for _, id := range ids {
			rec := s.records[id]
			if rec.TypeName() != name {
				continue
			}
			fmt.Fprintf(w, "%s/%d = (v%d) %s\n", name, id, rec.Version(), loggableRecord(rec))
		}
	}
	if f.Contains(DumpIndices) {
		for _, field := range s.IndexedFields(name) {
			fmt.Fprintln(w, dumpSep2)
			fmt.Fprintf(w, "%s.i.%s\n", name, field)
			for pos, id := range s.indexedIDs(name, field) {
				fmt.Fprintf(w, "%s.i.%s.%d: %q => %d\n", name, field, pos+1, IndexValue(s.records[id], field), id)
			}
		}
	}
}
