package hle

import (
	"log/slog"

	"github.com/nacholabs/nacho/pkg/emu/display"
)

// FrameSink receives completed frames. Implemented by display.Delivery.
type FrameSink interface {
	AcquireBuffer() []byte
	Send(frame display.Frame)
}

// Intent is one message queued through the Intent class
type Intent struct {
	Kind uint32
	Arg  uint32
}

// Env carries the host-side state handlers operate on: the drawing surface,
// the frame sink, the logger and the intent mailbox. Handlers run on the
// single execution thread, so Env needs no locking.
type Env struct {
	Log *slog.Logger

	width  int
	height int
	fb     []byte
	color  uint32

	sink    FrameSink
	intents []Intent

	created  bool
	finished bool
}

func NewEnv(log *slog.Logger, sink FrameSink, width, height int) *Env {
	return &Env{
		Log:    log,
		width:  width,
		height: height,
		fb:     make([]byte, width*height*4),
		sink:   sink,
	}
}

// Finished reports whether the guest called Activity.finish
func (e *Env) Finished() bool {
	return e.finished
}

// Created reports whether Activity.onCreate ran
func (e *Env) Created() bool {
	return e.created
}

// PendingIntents returns the number of queued intents
func (e *Env) PendingIntents() int {
	return len(e.intents)
}

func (e *Env) setPixel(x, y int, rgba uint32) {
	if x < 0 || y < 0 || x >= e.width || y >= e.height {
		return
	}
	idx := (y*e.width + x) * 4
	e.fb[idx] = byte(rgba >> 24)
	e.fb[idx+1] = byte(rgba >> 16)
	e.fb[idx+2] = byte(rgba >> 8)
	e.fb[idx+3] = byte(rgba)
}

func (e *Env) fillRect(x, y, w, h int, rgba uint32) {
	for j := y; j < y+h; j++ {
		for i := x; i < x+w; i++ {
			e.setPixel(i, j, rgba)
		}
	}
}

// present snapshots the surface into a transferable buffer and hands it to
// the frame sink. The engine keeps running; painting happens elsewhere.
func (e *Env) present() {
	if e.sink == nil {
		return
	}

	pix := e.sink.AcquireBuffer()
	copy(pix, e.fb)
	e.sink.Send(display.Frame{Width: e.width, Height: e.height, Pix: pix})
}
