package cowdb

import (
	"fmt"
	"strings"
)

// IOError reports a failure to open, read, write or replace a snapshot file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func ioErrf(path string, err error, format string, args ...any) error {
	return &IOError{fmt.Sprintf(format, args...), path, err}
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Error() string {
	var buf strings.Builder
	buf.WriteString("cowdb: ")
	if e.Path != "" {
		buf.WriteString(e.Path)
		buf.WriteString(": ")
	}
	buf.WriteString(e.Op)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// DecodeError reports a payload that is shorter than its declared length, has
// a malformed length prefix, or otherwise fails to deserialize.
type DecodeError struct {
	TypeName string
	Path     string
	Data     []byte
	Off      int
	Err      error
	Msg      string
}

func decodeErrf(typeName string, data []byte, off int, err error, format string, args ...any) *DecodeError {
	return &DecodeError{TypeName: typeName, Data: data, Off: off, Err: err, Msg: fmt.Sprintf(format, args...)}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Error() string {
	const prefixLen = 64
	const suffixLen = 32

	var buf strings.Builder
	buf.WriteString("cowdb: ")
	if e.Path != "" {
		buf.WriteString(e.Path)
		buf.WriteString(": ")
	}
	if e.TypeName != "" {
		buf.WriteString(e.TypeName)
		buf.WriteString(": ")
	}
	buf.WriteString(e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	if e.Data != nil {
		n := len(e.Data)
		if n <= prefixLen+suffixLen {
			fmt.Fprintf(&buf, ": (%d) %x", n, e.Data)
		} else {
			fmt.Fprintf(&buf, ": (%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
		}
	}
	return buf.String()
}

// ParseError reports a numeric range query over a value that does not parse
// as a floating-point number.
type ParseError struct {
	TypeName string
	Field    string
	Value    string
	Err      error
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cowdb: %s.%s: cannot parse %q as a number: %v", e.TypeName, e.Field, e.Value, e.Err)
}

// ConflictError is returned by CompareAndUpdate when the stored record is not
// the version the new record was derived from. NewVersion is the version of
// the rejected record; a successful write needs StoredVersion+1.
type ConflictError struct {
	TypeName      string
	ID            uint64
	StoredVersion uint64
	NewVersion    uint64
	Missing       bool
}

func (e *ConflictError) Error() string {
	if e.Missing {
		return fmt.Sprintf("cowdb: %s/%d: version conflict: no such record", e.TypeName, e.ID)
	}
	return fmt.Sprintf("cowdb: %s/%d: version conflict: stored v%d, cannot write v%d", e.TypeName, e.ID, e.StoredVersion, e.NewVersion)
}
