package cowdb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/cowdb/codec"
)

// WriteMsgpack encodes v with MsgPack (map keys sorted, so equal values give
// equal bytes) and writes it as a length-prefixed blob. Record types use it
// for fields that don't warrant a hand-written layout.
func WriteMsgpack(w io.Writer, v any) error {
	var bb codec.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
	}
	return codec.WriteBytes(w, bb.Bytes())
}

// ReadMsgpack reads a blob written by WriteMsgpack into the value pointed to
// by ptr.
func ReadMsgpack(r io.Reader, ptr any) error {
	raw, err := codec.ReadBytes(r)
	if err != nil {
		return err
	}
	var br bytes.Reader
	br.Reset(raw)
	dec := msgpack.GetDecoder()
	dec.Reset(&br)
	err = dec.Decode(ptr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return decodeErrf("", raw, 0, err, "failed to decode msgpack into %T", ptr)
	}
	if br.Len() != 0 {
		return decodeErrf("", raw, len(raw)-br.Len(), nil, "%d trailing bytes after msgpack value", br.Len())
	}
	return nil
}
