// Package engine walks optimized IR block by block, routing calls through
// the call router and producing side effects on the guest machine state.
// The engine is a single logical thread of control; HLE handlers run
// synchronously on it and never re-enter it.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nacholabs/nacho/pkg/emu/display"
	"github.com/nacholabs/nacho/pkg/emu/ir"
	"github.com/nacholabs/nacho/pkg/emu/router"
	"github.com/nacholabs/nacho/pkg/emu/translate"
)

var (
	// ErrUnsupportedInstruction reports execution reaching an instruction
	// that was lifted but cannot be executed
	ErrUnsupportedInstruction = errors.New("unsupported instruction")
	// ErrMemoryFault reports a guest memory access out of bounds
	ErrMemoryFault = errors.New("memory access out of bounds")
	// ErrNotReady reports Run on an engine that already ran or is running
	ErrNotReady = errors.New("engine is not ready to run")
)

// State of the execution engine
type State uint8

const (
	State_Ready State = iota
	State_Running
	State_BlockedOnCall
	State_Halted
	State_Faulted
)

func (s State) String() string {
	switch s {
	case State_Ready:
		return "ready"
	case State_Running:
		return "running"
	case State_BlockedOnCall:
		return "blocked-on-call"
	case State_Halted:
		return "halted"
	case State_Faulted:
		return "faulted"
	}
	return "unknown"
}

// Fault is the terminal report of a faulted execution: the originating
// address, the opcode and a symbolic description.
type Fault struct {
	Addr uint64
	Op   ir.Op
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at 0x%08X (%v): %v", f.Addr, f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Config tunes one execution
type Config struct {
	// Strictness of unresolved symbol handling
	Strictness router.Strictness
	// Guest memory size in bytes (stack and data)
	MemorySize uint32
}

func DefaultConfig() Config {
	return Config{
		Strictness: router.Strictness_Strict,
		MemorySize: 64 * 1024,
	}
}

// callFrame is the continuation of one internal call. Created on CALL,
// discarded on RET.
type callFrame struct {
	block *ir.BasicBlock
	index int
}

// Engine executes translated guest code
type Engine struct {
	cfg        Config
	translator *translate.Translator
	router     *router.Router
	delivery   *display.Delivery
	log        *slog.Logger

	regs   [ir.TOTAL_REGISTERS]uint32
	mem    []byte
	frames []callFrame

	state    State
	fault    *Fault
	executed uint64

	// Published copy for concurrent observers (monitor UI)
	mu       sync.Mutex
	snapshot Snapshot
}

// Option configures an Engine
type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithDelivery attaches the frame delivery path torn down on Shutdown
func WithDelivery(delivery *display.Delivery) Option {
	return func(e *Engine) { e.delivery = delivery }
}

func New(translator *translate.Translator, rt *router.Router, opts ...Option) *Engine {
	e := &Engine{
		cfg:        DefaultConfig(),
		translator: translator,
		router:     rt,
		log:        slog.Default(),
		state:      State_Ready,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.mem = make([]byte, e.cfg.MemorySize)
	e.regs[ir.RSP] = e.cfg.MemorySize - 4

	// Map the data section into guest memory
	img := translator.Image()
	if len(img.Data) > 0 && img.DataBase+uint64(len(img.Data)) <= uint64(len(e.mem)) {
		copy(e.mem[img.DataBase:], img.Data)
	}

	e.publish()
	return e
}

// State returns the engine state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.State
}

// Fault returns the terminal fault report, if execution faulted
func (e *Engine) Fault() *Fault {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.Fault
}

// Register returns a guest register value. Only meaningful once the engine
// stopped.
func (e *Engine) Register(id ir.RegisterID) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.Regs[id]
}

// Snapshot is a point-in-time copy of observable engine state, published at
// block boundaries
type Snapshot struct {
	State    State
	Regs     [ir.TOTAL_REGISTERS]uint32
	Executed uint64
	Blocks   int
	Fault    *Fault
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// publish copies observable state for concurrent readers
func (e *Engine) publish() {
	e.mu.Lock()
	e.snapshot = Snapshot{
		State:    e.state,
		Regs:     e.regs,
		Executed: e.executed,
		Blocks:   e.translator.Blocks(),
		Fault:    e.fault,
	}
	e.mu.Unlock()
}

// Shutdown tears the engine down: any undelivered frame is discarded and
// the presentation worker is released. There is no resumable state left
// behind.
func (e *Engine) Shutdown() error {
	if e.delivery == nil {
		return nil
	}
	return e.delivery.Close()
}
