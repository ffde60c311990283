package cowdb

import (
	"strconv"
)

// QueryRange returns every T whose index value for field lies within
// [start, end], in index order. Fields that T lists in NumericFields are
// compared as float64; a bound or a stored value that doesn't parse is a
// *ParseError. Other fields are compared as strings.
func QueryRange[T Record](s *Store, field, start, end string) ([]Handle[T], error) {
	zero := NewRecord[T]()
	typeName := zero.TypeName()

	var match func(v string) (bool, error)
	if isNumericField(zero, field) {
		lo, err := parseNumber(typeName, field, start)
		if err != nil {
			return nil, err
		}
		hi, err := parseNumber(typeName, field, end)
		if err != nil {
			return nil, err
		}
		match = func(v string) (bool, error) {
			f, err := parseNumber(typeName, field, v)
			if err != nil {
				return false, err
			}
			return f >= lo && f <= hi, nil
		}
	} else {
		match = func(v string) (bool, error) {
			return v >= start && v <= end, nil
		}
	}

	var result []Handle[T]
	for _, id := range s.indexedIDs(typeName, field) {
		rec, ok := s.records[id].(T)
		if !ok {
			continue
		}
		ok, err := match(IndexValue(rec, field))
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, NewHandle(cloneAs[T](rec)))
		}
	}
	if s.verbose {
		s.logf("cowdb: RANGE %s.%s=[%q, %q] => %d", typeName, field, start, end, len(result))
	}
	return result, nil
}

func parseNumber(typeName, field, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &ParseError{typeName, field, v, err}
	}
	return f, nil
}
