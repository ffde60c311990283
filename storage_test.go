package cowdb

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/andreyvit/cowdb/codec"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := setup(t)
	u1 := s.Add(&User{Email: "a@example.com", Name: "alice", Score: 12.5})
	w1 := s.Add(&Widget{Label: "gear", Parts: []string{"x", "y"}})
	u2 := s.Add(&User{Email: "b@example.com", Score: -1})
	n1 := s.Add(&Note{Text: "ignored by both loads"})
	w2 := s.Add(&Widget{Label: "cog"})

	h := Get[*User](s, u1).NewVersion()
	h.Get().Email = "alice@example.com"
	s.Update(u1, h.Get())
	s.Remove(w2)

	fn := filepath.Join(t.TempDir(), "store.bin")
	ensure(s.Save(fn))

	s2 := setup(t)
	ensure(Load[*User](s2, fn))
	deepEqual(t, s2.IDs(), []uint64{u1, u2})
	ensure(Load[*Widget](s2, fn))
	deepEqual(t, s2.IDs(), []uint64{u1, w1, u2})

	deepEqual(t, Get[*User](s2, u1).Get(), Get[*User](s, u1).Get())
	deepEqual(t, Get[*User](s2, u1).Version(), uint64(1))
	deepEqual(t, Get[*User](s2, u2).Get(), Get[*User](s, u2).Get())
	deepEqual(t, Get[*Widget](s2, w1).Get(), Get[*Widget](s, w1).Get())
	if Exists[*Note](s2, n1) {
		t.Fatalf("Note loaded without being asked for")
	}
	if s2.NextID() < u2+1 {
		t.Fatalf("NextID = %d, wanted >= %d", s2.NextID(), u2+1)
	}

	deepEqual(t, ids(Query[*User](s2, "email", "alice@example.com")), []uint64{u1})
	ensure(s2.VerifyIndexes())

	ensure(Load[*Note](s2, fn))
	deepEqual(t, s2.NextID(), n1+1)
	deepEqual(t, s2.Add(&Note{}), n1+1)
}

func TestSaveOverwrites(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "store.bin")
	s := setup(t)
	s.Add(&Note{Text: "one"})
	s.Add(&Note{Text: "two"})
	ensure(s.Save(fn))

	s.Remove(1)
	ensure(s.Save(fn))

	s2 := setup(t)
	ensure(Load[*Note](s2, fn))
	deepEqual(t, s2.IDs(), []uint64{2})

	ents, err := os.ReadDir(filepath.Dir(fn))
	ensure(err)
	if len(ents) != 1 {
		t.Fatalf("directory has %d entries, wanted only the snapshot", len(ents))
	}
}

func TestSaveLayout(t *testing.T) {
	s := setup(t)
	s.Add(&Note{Text: "hi"})

	var buf bytes.Buffer
	ensure(s.WriteTo(&buf))

	var want codec.Buffer
	ensure(codec.WriteUint64(&want, 1))
	ensure(codec.WriteString(&want, "Note"))
	ensure(codec.WriteUint64(&want, 8+8+4+2))
	ensure(codec.WriteUint64(&want, 1))
	ensure(codec.WriteUint64(&want, 0))
	ensure(codec.WriteString(&want, "hi"))
	if !bytes.Equal(buf.Bytes(), want.Bytes()) {
		t.Fatalf("snapshot = %x, wanted %x", buf.Bytes(), want.Bytes())
	}
}

func TestLoadEmptyFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "empty.bin")
	ensure(os.WriteFile(fn, nil, 0o644))

	s := setup(t)
	s.Add(&Note{Text: "keep"})
	ensure(Load[*Note](s, fn))
	deepEqual(t, s.Len(), 1)
	deepEqual(t, s.NextID(), uint64(2))

	ensure(LoadFrom[*Note](s, bytes.NewReader(nil)))
	deepEqual(t, s.Len(), 1)
}

func TestLoadMissingFile(t *testing.T) {
	s := setup(t)
	err := Load[*Note](s, filepath.Join(t.TempDir(), "nope.bin"))
	var ioe *IOError
	if !errors.As(err, &ioe) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load = %v, wanted *IOError wrapping ErrNotExist", err)
	}
}

func TestSaveUnwritableTarget(t *testing.T) {
	s := setup(t)
	s.Add(&Note{})
	err := s.Save(filepath.Join(t.TempDir(), "no", "such", "dir", "store.bin"))
	var ioe *IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("Save = %v, wanted *IOError", err)
	}
}

func TestLoadFromReader(t *testing.T) {
	s := setup(t)
	id := s.Add(&Widget{Label: "w", Parts: []string{"a"}})
	s.Add(&Note{Text: "skip me"})
	var buf bytes.Buffer
	ensure(s.WriteTo(&buf))

	s2 := setup(t)
	ensure(LoadFrom[*Widget](s2, io.MultiReader(bytes.NewReader(buf.Bytes()))))
	deepEqual(t, s2.IDs(), []uint64{id})
	deepEqual(t, Get[*Widget](s2, id).Get().Parts, []string{"a"})
}

func snapshotBytes(t testing.TB, recs ...Record) []byte {
	s := setup(t)
	for _, rec := range recs {
		s.Add(rec)
	}
	var buf bytes.Buffer
	ensure(s.WriteTo(&buf))
	return buf.Bytes()
}

func writeTemp(t testing.TB, data []byte) string {
	fn := filepath.Join(t.TempDir(), "store.bin")
	ensure(os.WriteFile(fn, data, 0o644))
	return fn
}

func TestLoadTruncated(t *testing.T) {
	data := snapshotBytes(t, &Note{Text: "hello"}, &User{Email: "a@example.com"})
	noteLen := 4 + len("Note") + 8 + 8 + 8 + 4 + len("hello")

	tests := []struct {
		name      string
		n         int
		wantIO    bool
		wantDecod bool
	}{
		{"inside count", 5, true, false},
		{"inside type name length", 8 + 2, true, false},
		{"inside payload length", 8 + 4 + 4 + 3, true, false},
		{"inside note payload", 8 + noteLen - 3, false, true},
		{"inside user header", 8 + noteLen + 6, true, false},
		{"inside user payload", len(data) - 1, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := writeTemp(t, data[:tt.n])
			s := setup(t)
			err := Load[*User](s, fn)
			var ioe *IOError
			var de *DecodeError
			if tt.wantIO && !errors.As(err, &ioe) {
				t.Fatalf("Load = %v, wanted *IOError", err)
			}
			if tt.wantDecod && !errors.As(err, &de) {
				t.Fatalf("Load = %v, wanted *DecodeError", err)
			}
			if s.Len() != 0 {
				t.Fatalf("failed Load left %d records", s.Len())
			}
		})
	}
}

func TestLoadCorruptPayload(t *testing.T) {
	// claims a 100-byte payload in a tiny file
	var bb codec.Buffer
	ensure(codec.WriteUint64(&bb, 1))
	ensure(codec.WriteString(&bb, "Note"))
	ensure(codec.WriteUint64(&bb, 100))
	ensure(codec.WriteUint64(&bb, 1))
	fn := writeTemp(t, bb.Bytes())

	s := setup(t)
	err := Load[*Note](s, fn)
	var de *DecodeError
	if !errors.As(err, &de) || de.Path != fn {
		t.Fatalf("Load = %v, wanted *DecodeError for %s", err, fn)
	}

	// payload whose string length exceeds the payload itself
	bb.Reset()
	var payload codec.Buffer
	ensure(codec.WriteUint64(&payload, 1))
	ensure(codec.WriteUint64(&payload, 0))
	ensure(codec.WriteUint32(&payload, 50))
	ensure(codec.WriteUint64(&bb, 1))
	ensure(codec.WriteString(&bb, "Note"))
	ensure(codec.WriteUint64(&bb, uint64(payload.Len())))
	_, _ = bb.Write(payload.Bytes())
	fn = writeTemp(t, bb.Bytes())

	err = Load[*Note](s, fn)
	if !errors.As(err, &de) || !errors.Is(err, codec.ErrLengthExceeds) {
		t.Fatalf("Load = %v, wanted *DecodeError wrapping ErrLengthExceeds", err)
	}

	// trailing bytes inside a payload
	bb.Reset()
	payload.Reset()
	ensure((&Note{Meta: Meta{id: 1}}).Serialize(&payload))
	_ = payload.WriteByte(0xFF)
	ensure(codec.WriteUint64(&bb, 1))
	ensure(codec.WriteString(&bb, "Note"))
	ensure(codec.WriteUint64(&bb, uint64(payload.Len())))
	_, _ = bb.Write(payload.Bytes())
	fn = writeTemp(t, bb.Bytes())

	err = Load[*Note](s, fn)
	if !errors.As(err, &de) {
		t.Fatalf("Load = %v, wanted *DecodeError for trailing bytes", err)
	}
	deepEqual(t, s.Len(), 0)
}

func TestLoadReplacesExisting(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "store.bin")
	s := setup(t)
	id := s.Add(&User{Email: "old@example.com"})
	ensure(s.Save(fn))

	h := Get[*User](s, id).NewVersion()
	h.Get().Email = "new@example.com"
	s.Update(id, h.Get())

	ensure(Load[*User](s, fn))
	got := Get[*User](s, id)
	deepEqual(t, got.Version(), uint64(0))
	deepEqual(t, got.Get().Email, "old@example.com")
	isempty(t, Query[*User](s, "email", "new@example.com"))
	ensure(s.VerifyIndexes())
}

func TestDecodeHelpers(t *testing.T) {
	w := &Widget{Label: "l", Parts: []string{"p"}}
	w.SetID(9)
	w.SetVersion(4)
	payload := must(Encode(w))
	got := must(Decode[*Widget](payload))
	deepEqual(t, got, w)
	deepEqual(t, TypeNameOf[*Widget](), "Widget")

	_, err := Decode[*Widget](payload[:len(payload)-1])
	var de *DecodeError
	if !errors.As(err, &de) || de.TypeName != "Widget" {
		t.Fatalf("Decode(truncated) = %v, wanted *DecodeError for Widget", err)
	}
}
