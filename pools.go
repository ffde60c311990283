package cowdb

import (
	"sync"

	"github.com/andreyvit/cowdb/codec"
)

const maxPooledPayloadCap = 1 << 20

var payloadBufPool = &sync.Pool{
	New: func() any {
		return &codec.Buffer{Buf: make([]byte, 0, 4096)}
	},
}

func releasePayloadBuf(bb *codec.Buffer) {
	if cap(bb.Buf) > maxPooledPayloadCap {
		return // let oversized buffers go
	}
	bb.Reset()
	payloadBufPool.Put(bb)
}
