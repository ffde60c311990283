package cowdb

import "fmt"

type (
	// Change describes one mutation, as reported to Options.OnChange.
	Change struct {
		op       Op
		typeName string
		id       uint64
		version  uint64
		rec      Record
	}

	Op int
)

const (
	OpNone   Op = 0
	OpAdd    Op = 1
	OpUpdate Op = 2
	OpRemove Op = 3
	OpLoad   Op = 4
)

func NewChange(op Op, rec Record) *Change {
	return &Change{op, rec.TypeName(), rec.ID(), rec.Version(), rec}
}

func (chg *Change) Op() Op {
	return chg.op
}
func (chg *Change) TypeName() string {
	return chg.typeName
}
func (chg *Change) ID() uint64 {
	return chg.id
}
func (chg *Change) Version() uint64 {
	return chg.version
}

// HasRecord is false for removals.
func (chg *Change) HasRecord() bool {
	return chg.rec != nil
}

// Record returns a copy of the record as stored after the change.
func (chg *Change) Record() Record {
	return chg.rec
}

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	case OpLoad:
		return "load"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}
