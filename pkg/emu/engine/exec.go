package engine

import (
	"context"
	"errors"

	"github.com/nacholabs/nacho/pkg/emu/hle"
	"github.com/nacholabs/nacho/pkg/emu/ir"
	"github.com/nacholabs/nacho/pkg/emu/router"
	"github.com/nacholabs/nacho/pkg/emu/translate"
	"github.com/nacholabs/nacho/pkg/utils"
)

// Flag bits kept in the RFlags pseudo register
const (
	flagZero = 1 << 0
	flagSign = 1 << 1
)

// Run executes the translated program from its entry point until it halts,
// faults, or the context is canceled. An engine runs exactly once.
func (e *Engine) Run(ctx context.Context) error {
	if e.state != State_Ready {
		return utils.MakeError(ErrNotReady, "state is %v", e.state)
	}
	e.state = State_Running
	e.publish()

	entry := e.translator.Image().Entry
	block, err := e.translator.Block(entry)
	if err != nil {
		return e.faultOut(entry, ir.Op_NOP, err)
	}

	index := 0
	for {
		select {
		case <-ctx.Done():
			e.state = State_Halted
			e.publish()
			return ctx.Err()
		default:
		}

		// Fell past the last instruction of a split block: follow the
		// fall-through edge
		if index >= len(block.Instructions) {
			next, err := e.fallthroughBlock(block)
			if err != nil {
				return e.faultOut(block.Entry, ir.Op_NOP, err)
			}
			block, index = next, 0
			e.publish()
			continue
		}

		instr := block.Instructions[index]
		e.executed++

		switch instr.Op {
		case ir.Op_NOP:
			index++

		case ir.Op_MOV:
			e.setReg(instr.Operands[0].Register, e.eval(instr.Operands[1]))
			index++

		case ir.Op_ADD:
			e.setReg(instr.Operands[0].Register, e.eval(instr.Operands[0])+e.eval(instr.Operands[1]))
			index++

		case ir.Op_SUB:
			e.setReg(instr.Operands[0].Register, e.eval(instr.Operands[0])-e.eval(instr.Operands[1]))
			index++

		case ir.Op_CMP:
			diff := e.eval(instr.Operands[0]) - e.eval(instr.Operands[1])
			var flags uint32
			if diff == 0 {
				flags |= flagZero
			}
			if int32(diff) < 0 {
				flags |= flagSign
			}
			e.regs[ir.RFlags] = flags
			index++

		case ir.Op_LOAD:
			value, err := e.read32(e.effectiveAddr(instr.Operands[1]))
			if err != nil {
				return e.faultOut(instr.Addr, instr.Op, err)
			}
			e.setReg(instr.Operands[0].Register, value)
			index++

		case ir.Op_STORE:
			if err := e.write32(e.effectiveAddr(instr.Operands[0]), e.eval(instr.Operands[1])); err != nil {
				return e.faultOut(instr.Addr, instr.Op, err)
			}
			index++

		case ir.Op_JMP:
			next, err := e.jump(instr.Operands[0].Target)
			if err != nil {
				return e.faultOut(instr.Addr, instr.Op, err)
			}
			block, index = next, 0
			e.publish()

		case ir.Op_JZ, ir.Op_JNZ:
			taken := (e.regs[ir.RFlags]&flagZero != 0) == (instr.Op == ir.Op_JZ)

			var next *ir.BasicBlock
			var err error
			if taken {
				next, err = e.jump(instr.Operands[0].Target)
			} else {
				next, err = e.fallthroughBlock(block)
			}
			if err != nil {
				return e.faultOut(instr.Addr, instr.Op, err)
			}
			block, index = next, 0
			e.publish()

		case ir.Op_CALL:
			next, nextIndex, err := e.call(instr, block, index)
			if err != nil {
				return e.faultOut(instr.Addr, instr.Op, err)
			}
			block, index = next, nextIndex
			e.publish()

		case ir.Op_RET:
			if len(e.frames) == 0 {
				e.state = State_Halted
				e.publish()
				return nil
			}
			top := e.frames[len(e.frames)-1]
			e.frames = e.frames[:len(e.frames)-1]
			block, index = top.block, top.index
			e.publish()

		case ir.Op_UNSUPPORTED:
			return e.faultOut(instr.Addr, instr.Op, ErrUnsupportedInstruction)

		default:
			return e.faultOut(instr.Addr, instr.Op, utils.MakeError(ErrUnsupportedInstruction, "opcode %v has no execution rule", instr.Op))
		}
	}
}

// call routes a CALL instruction. Internal targets push a continuation and
// transfer control; HLE targets marshal the argument window, run the
// handler synchronously and resume at the next instruction.
func (e *Engine) call(instr ir.Instruction, block *ir.BasicBlock, index int) (*ir.BasicBlock, int, error) {
	e.state = State_BlockedOnCall
	e.publish()
	defer func() {
		if e.state == State_BlockedOnCall {
			e.state = State_Running
		}
	}()

	target := instr.Operands[0]

	resolution, err := e.router.Route(target)
	if err != nil {
		if errors.Is(err, router.ErrUnresolvedSymbol) && e.cfg.Strictness == router.Strictness_Lenient {
			// Substitute a fault value and keep going past the call site
			e.log.Warn("unresolved call target, continuing", "target", target.String(), "addr", instr.Addr)
			e.setReg(ir.R0, 0)
			return block, index + 1, nil
		}
		return nil, 0, err
	}

	switch resolution.Kind {
	case router.Resolution_Internal:
		e.frames = append(e.frames, callFrame{block: block, index: index + 1})
		return resolution.Block, 0, nil

	case router.Resolution_HLE:
		window := []hle.Value{
			hle.U32(e.regs[ir.R0]),
			hle.U32(e.regs[ir.R1]),
			hle.U32(e.regs[ir.R2]),
			hle.U32(e.regs[ir.R3]),
		}
		result, err := e.router.CallHLE(resolution.Method, window)
		if err != nil {
			return nil, 0, err
		}
		if !result.Type.IsVoid() {
			e.setReg(ir.R0, result.U32())
		}
		return block, index + 1, nil
	}

	return nil, 0, utils.MakeError(router.ErrUnresolvedSymbol, "%v", target)
}

// jump resolves a branch target block, translating its region on demand
// when the edge was external
func (e *Engine) jump(target uint64) (*ir.BasicBlock, error) {
	return e.translator.Block(target)
}

// fallthroughBlock follows the non-taken successor of a block
func (e *Engine) fallthroughBlock(block *ir.BasicBlock) (*ir.BasicBlock, error) {
	if len(block.Succs) == 0 {
		return nil, utils.MakeError(translate.ErrNoBlock, "execution fell off block 0x%08X", block.Entry)
	}

	// Conditional terminators record [taken, fall-through]; split blocks
	// record their single fall-through edge first
	edge := block.Succs[len(block.Succs)-1]
	if edge.Kind == ir.EdgeKind_FallOff {
		return nil, utils.MakeError(translate.ErrNoBlock, "fall-through past decoded region after block 0x%08X", block.Entry)
	}

	return e.translator.Block(edge.Target)
}

func (e *Engine) faultOut(addr uint64, op ir.Op, err error) error {
	fault := &Fault{Addr: addr, Op: op, Err: err}
	e.state = State_Faulted
	e.fault = fault
	e.publish()
	e.log.Error("execution faulted", "addr", fault.Addr, "op", fault.Op.String(), "err", err)
	return fault
}

func (e *Engine) eval(operand ir.Operand) uint32 {
	switch operand.Kind {
	case ir.OperandKind_Register:
		return e.regs[operand.Register]
	case ir.OperandKind_Immediate:
		return uint32(operand.Value)
	}
	return 0
}

func (e *Engine) setReg(id ir.RegisterID, value uint32) {
	e.regs[id] = value
}

func (e *Engine) effectiveAddr(operand ir.Operand) uint32 {
	return e.regs[operand.Register] + uint32(operand.Offset)
}

func (e *Engine) read32(addr uint32) (uint32, error) {
	if uint64(addr)+4 > uint64(len(e.mem)) {
		return 0, utils.MakeError(ErrMemoryFault, "read at 0x%08X", addr)
	}
	return uint32(e.mem[addr]) |
		uint32(e.mem[addr+1])<<8 |
		uint32(e.mem[addr+2])<<16 |
		uint32(e.mem[addr+3])<<24, nil
}

func (e *Engine) write32(addr uint32, value uint32) error {
	if uint64(addr)+4 > uint64(len(e.mem)) {
		return utils.MakeError(ErrMemoryFault, "write at 0x%08X", addr)
	}
	e.mem[addr] = byte(value)
	e.mem[addr+1] = byte(value >> 8)
	e.mem[addr+2] = byte(value >> 16)
	e.mem[addr+3] = byte(value >> 24)
	return nil
}
