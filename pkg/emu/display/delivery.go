package display

import (
	"sync"
	"sync/atomic"
)

// Presenter paints frames on some surface. Implementations receive frames
// strictly in send order and never acknowledge back.
type Presenter interface {
	// Init prepares the drawable surface for frames of the given size
	Init(width, height int) error
	// Paint draws one frame. The frame's pixel buffer is only valid for
	// the duration of the call.
	Paint(frame Frame) error
	// Close releases the surface
	Close() error
}

// Discard is a Presenter that drops every frame. Useful for headless runs
// and benchmarks.
type Discard struct{}

func (Discard) Init(width, height int) error { return nil }
func (Discard) Paint(frame Frame) error      { return nil }
func (Discard) Close() error                 { return nil }

// Stage is an optional frame post-processing step applied on the worker
// before painting
type Stage func(frame Frame)

// Delivery forwards frames to a presentation worker goroutine through a
// single-slot mailbox. If frames arrive faster than they are painted, only
// the most recent pending frame survives: freshness wins over completeness.
type Delivery struct {
	presenter Presenter
	stages    []Stage
	pool      *bufferPool

	mu      sync.Mutex
	pending *Frame

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	painted atomic.Uint64
	dropped atomic.Uint64

	closeOnce sync.Once
}

// Option configures a Delivery
type Option func(*Delivery)

// WithStages installs post-processing stages run in order before painting
func WithStages(stages ...Stage) Option {
	return func(d *Delivery) {
		d.stages = stages
	}
}

// NewDelivery initializes the presenter for width x height frames and
// starts the presentation worker.
func NewDelivery(presenter Presenter, width, height int, opts ...Option) (*Delivery, error) {
	if err := presenter.Init(width, height); err != nil {
		return nil, err
	}

	d := &Delivery{
		presenter: presenter,
		pool:      newBufferPool(width * height * 4),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	go d.worker()
	return d, nil
}

// AcquireBuffer returns a pixel buffer suitable for one frame. Buffers come
// from the pool the worker releases painted frames into.
func (d *Delivery) AcquireBuffer() []byte {
	return d.pool.acquire()
}

// Send hands a frame over to the presentation worker and returns
// immediately. The caller gives up ownership of frame.Pix. A frame still
// pending from an earlier Send is dropped and its buffer released.
func (d *Delivery) Send(frame Frame) {
	d.mu.Lock()
	if d.pending != nil {
		d.pool.release(d.pending.Pix)
		d.dropped.Add(1)
	}
	d.pending = &frame
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Stats returns how many frames were painted and how many were dropped as
// stale
func (d *Delivery) Stats() (painted, dropped uint64) {
	return d.painted.Load(), d.dropped.Load()
}

// Close tears the delivery path down: the undelivered frame, if any, is
// discarded and the presenter is released. Safe to call more than once.
func (d *Delivery) Close() error {
	d.closeOnce.Do(func() {
		close(d.quit)
	})
	<-d.done
	return d.presenter.Close()
}

func (d *Delivery) worker() {
	defer close(d.done)

	for {
		select {
		case <-d.quit:
			// Flush without painting
			d.mu.Lock()
			if d.pending != nil {
				d.pool.release(d.pending.Pix)
				d.pending = nil
			}
			d.mu.Unlock()
			return

		case <-d.wake:
			d.paintPending()
		}
	}
}

func (d *Delivery) paintPending() {
	d.mu.Lock()
	frame := d.pending
	d.pending = nil
	d.mu.Unlock()

	if frame == nil {
		return
	}

	for _, stage := range d.stages {
		stage(*frame)
	}

	// Painting failures are not surfaced to the sender: frames are
	// fire-and-forget, at most once rendered
	_ = d.presenter.Paint(*frame)
	d.painted.Add(1)
	d.pool.release(frame.Pix)
}
