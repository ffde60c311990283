package cowdb

import (
	"encoding/json"
	"fmt"
	"sort"
)

type TypeStats struct {
	Records      int
	IndexFields  int
	IndexEntries int
}

type Stats struct {
	Records int
	NextID  uint64
	Types   map[string]*TypeStats
}

// TypeNames returns the names in Types, sorted.
func (st *Stats) TypeNames() []string {
	names := make([]string, 0, len(st.Types))
	for name := range st.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Stats() Stats {
	result := Stats{
		Records: len(s.records),
		NextID:  s.nextID,
		Types:   make(map[string]*TypeStats),
	}
	typeStats := func(name string) *TypeStats {
		ts := result.Types[name]
		if ts == nil {
			ts = &TypeStats{}
			result.Types[name] = ts
		}
		return ts
	}
	for _, rec := range s.records {
		typeStats(rec.TypeName()).Records++
	}
	for name, fields := range s.indexes {
		ts := typeStats(name)
		ts.IndexFields += len(fields)
		for _, ids := range fields {
			ts.IndexEntries += len(ids)
		}
	}
	return result
}

func loggableRecord(rec Record) string {
	if rec == nil {
		return "<none>"
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Sprintf("%+v", rec)
	}
	return string(raw)
}
