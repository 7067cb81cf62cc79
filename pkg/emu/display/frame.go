// Package display carries rendered frames from emulated execution to an
// isolated presentation worker, so painting cost never blocks the execution
// engine.
package display

import (
	"sync"
)

// Frame is one rendered RGBA bitmap. Ownership of Pix transfers to the
// delivery path on Send; the buffer is released to the pool right after it
// is painted and must not be reused by the sender.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// bufferPool recycles pixel buffers between frames
type bufferPool struct {
	pool sync.Pool
	size int
}

func newBufferPool(size int) *bufferPool {
	return &bufferPool{
		size: size,
		pool: sync.Pool{New: func() any {
			buf := make([]byte, size)
			return &buf
		}},
	}
}

func (p *bufferPool) acquire() []byte {
	return *(p.pool.Get().(*[]byte))
}

func (p *bufferPool) release(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}
