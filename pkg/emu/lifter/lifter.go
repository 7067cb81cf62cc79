// Package lifter maps raw machine instructions to canonical IR.
//
// Every compound machine instruction expands to the full sequence of its
// effects (a read-modify-write through memory becomes LOAD, compute, STORE);
// no intermediate effect is folded into an opaque IR op. Instructions the
// decoder recognizes but the lifter cannot translate become explicit
// UNSUPPORTED markers preserving the source address.
package lifter

import (
	"errors"

	"github.com/nacholabs/nacho/pkg/emu/decoder"
	"github.com/nacholabs/nacho/pkg/emu/image"
	"github.com/nacholabs/nacho/pkg/emu/ir"
	"github.com/nacholabs/nacho/pkg/emu/isa"
	"github.com/nacholabs/nacho/pkg/utils"
)

var ErrLift = errors.New("cannot lift instruction")

// RecoveryPolicy selects how region translation reacts to a decode error
type RecoveryPolicy uint8

const (
	// Stop translating the region at the malformed instruction, keeping
	// everything decoded so far
	RecoveryPolicy_AbortBlock RecoveryPolicy = iota
	// Skip one byte and resynchronize on the next boundary that decodes
	RecoveryPolicy_Resync
)

// Lifter lifts raw instructions into IR, resolving import slots against the
// program image's import table.
type Lifter struct {
	img    *image.Image
	policy RecoveryPolicy
}

func New(img *image.Image, policy RecoveryPolicy) *Lifter {
	return &Lifter{img: img, policy: policy}
}

// wordSize is the operand width of the supported guest subset
const wordSize = ir.Width32

// stackSlot is the byte size of one stack slot
const stackSlot = 4

// Lift returns the IR sequence semantically equivalent to one raw
// instruction
func (l *Lifter) Lift(raw *isa.RawInstruction) ([]ir.Instruction, error) {
	addr := raw.Addr

	reg := func(index uint8) ir.Operand { return ir.Reg(ir.RegisterID(index)) }
	mem := func() ir.Operand { return ir.Mem(ir.RegisterID(raw.RM), raw.Disp, wordSize) }

	switch raw.OpCode {
	case isa.OpCode_NOP:
		return []ir.Instruction{ir.New(ir.Op_NOP, addr)}, nil

	case isa.OpCode_RET, isa.OpCode_HLT:
		// A halt is a return from the outermost frame
		return []ir.Instruction{ir.New(ir.Op_RET, addr)}, nil

	case isa.OpCode_JMP:
		return []ir.Instruction{ir.New(ir.Op_JMP, addr, ir.Label(raw.BranchTarget()))}, nil

	case isa.OpCode_JZ:
		return []ir.Instruction{ir.New(ir.Op_JZ, addr, ir.Label(raw.BranchTarget()))}, nil

	case isa.OpCode_JNZ:
		return []ir.Instruction{ir.New(ir.Op_JNZ, addr, ir.Label(raw.BranchTarget()))}, nil

	case isa.OpCode_CALL:
		return []ir.Instruction{ir.New(ir.Op_CALL, addr, ir.Label(raw.BranchTarget()))}, nil

	case isa.OpCode_CALLF:
		name, err := l.img.ImportName(raw.Slot)
		if err != nil {
			return nil, utils.MakeError(ErrLift, "call at 0x%08X: %v", addr, err)
		}
		return []ir.Instruction{ir.New(ir.Op_CALL, addr, ir.Sym(name))}, nil

	case isa.OpCode_MOV_RI:
		return []ir.Instruction{ir.New(ir.Op_MOV, addr, reg(raw.Reg), ir.Imm(raw.Imm, wordSize, true))}, nil

	case isa.OpCode_MOV_MR:
		if raw.Mode == isa.AddressingMode_RegDirect {
			return []ir.Instruction{ir.New(ir.Op_MOV, addr, reg(raw.RM), reg(raw.Reg))}, nil
		}
		return []ir.Instruction{ir.New(ir.Op_STORE, addr, mem(), reg(raw.Reg))}, nil

	case isa.OpCode_MOV_RM:
		if raw.Mode == isa.AddressingMode_RegDirect {
			return []ir.Instruction{ir.New(ir.Op_MOV, addr, reg(raw.Reg), reg(raw.RM))}, nil
		}
		return []ir.Instruction{ir.New(ir.Op_LOAD, addr, reg(raw.Reg), mem())}, nil

	case isa.OpCode_ADD_MR:
		return l.liftReadModifyWrite(ir.Op_ADD, raw), nil

	case isa.OpCode_SUB_MR:
		return l.liftReadModifyWrite(ir.Op_SUB, raw), nil

	case isa.OpCode_CMP_MR:
		if raw.Mode == isa.AddressingMode_RegDirect {
			return []ir.Instruction{ir.New(ir.Op_CMP, addr, reg(raw.RM), reg(raw.Reg))}, nil
		}
		return []ir.Instruction{
			ir.New(ir.Op_LOAD, addr, ir.Reg(ir.RScratch), mem()),
			ir.New(ir.Op_CMP, addr, ir.Reg(ir.RScratch), reg(raw.Reg)),
		}, nil

	case isa.OpCode_CMP_AI:
		return []ir.Instruction{ir.New(ir.Op_CMP, addr, ir.Reg(ir.R0), ir.Imm(raw.Imm, wordSize, true))}, nil

	case isa.OpCode_PUSH:
		return []ir.Instruction{
			ir.New(ir.Op_SUB, addr, ir.Reg(ir.RSP), ir.Imm(stackSlot, wordSize, false)),
			ir.New(ir.Op_STORE, addr, ir.Mem(ir.RSP, 0, wordSize), reg(raw.Reg)),
		}, nil

	case isa.OpCode_POP:
		return []ir.Instruction{
			ir.New(ir.Op_LOAD, addr, reg(raw.Reg), ir.Mem(ir.RSP, 0, wordSize)),
			ir.New(ir.Op_ADD, addr, ir.Reg(ir.RSP), ir.Imm(stackSlot, wordSize, false)),
		}, nil

	case isa.OpCode_INT:
		// Lifted, but not executable: reaching it is a hard fault
		return []ir.Instruction{ir.New(ir.Op_UNSUPPORTED, addr)}, nil
	}

	return nil, utils.MakeError(ErrLift, "no lifting rule for %v at 0x%08X", raw.OpCode, addr)
}

// liftReadModifyWrite expands an arithmetic instruction whose destination is
// memory into its LOAD / compute / STORE sequence
func (l *Lifter) liftReadModifyWrite(op ir.Op, raw *isa.RawInstruction) []ir.Instruction {
	addr := raw.Addr
	src := ir.Reg(ir.RegisterID(raw.Reg))

	if raw.Mode == isa.AddressingMode_RegDirect {
		return []ir.Instruction{ir.New(op, addr, ir.Reg(ir.RegisterID(raw.RM)), src)}
	}

	target := ir.Mem(ir.RegisterID(raw.RM), raw.Disp, wordSize)
	return []ir.Instruction{
		ir.New(ir.Op_LOAD, addr, ir.Reg(ir.RScratch), target),
		ir.New(op, addr, ir.Reg(ir.RScratch), src),
		ir.New(ir.Op_STORE, addr, target, ir.Reg(ir.RScratch)),
	}
}

// LiftRegion decodes and lifts guest code starting at addr until the end of
// the code section. Decode errors are handled per the recovery policy and
// never abort translation of code already lifted; a region that yields no
// instructions at all reports the underlying decode error.
func (l *Lifter) LiftRegion(addr uint64) ([]ir.Instruction, error) {
	d := decoder.New(l.img.Code, l.img.CodeBase)
	if err := d.SeekTo(addr); err != nil {
		return nil, err
	}

	var lifted []ir.Instruction
	var firstErr error

	for {
		raw, err := d.Next()
		if errors.Is(err, decoder.ErrEndOfCode) {
			break
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if l.policy == RecoveryPolicy_Resync {
				d.Skip(1)
				continue
			}
			break
		}

		instrs, err := l.Lift(raw)
		if err != nil {
			return nil, err
		}
		lifted = append(lifted, instrs...)
	}

	if len(lifted) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, utils.MakeError(ErrLift, "empty region at 0x%08X", addr)
	}

	return lifted, nil
}
