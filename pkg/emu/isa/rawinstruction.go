package isa

import (
	"fmt"
	"strings"

	"github.com/nacholabs/nacho/pkg/utils"
)

// AddressingMode of a ModRM instruction
type AddressingMode uint8

const (
	// Instruction has no ModRM byte
	AddressingMode_None AddressingMode = iota
	// Both operands are registers
	AddressingMode_RegDirect
	// One operand is memory at base register plus displacement
	AddressingMode_MemDisp
)

// RawInstruction is a fully decoded machine instruction: opcode, ordered
// operand values and byte length. Immutable once produced by the decoder.
type RawInstruction struct {
	// Address the instruction was decoded at
	Addr uint64
	// Decoded opcode
	OpCode OpCode
	// Addressing mode, for ModRM forms
	Mode AddressingMode
	// Register operand (the /r field of ModRM forms, or the register
	// embedded in the opcode byte)
	Reg uint8
	// Second register operand: the r/m register for register-direct
	// addressing, or the base register for memory addressing
	RM uint8
	// Memory displacement
	Disp int32
	// Immediate value, or branch displacement for relative forms
	Imm int64
	// Import table slot, for CALLF
	Slot uint32
	// Instruction length in bytes
	Len int
}

// Operands returns the ordered decoded operand values of the instruction
func (instr *RawInstruction) Operands() []int64 {
	switch form := instr.form(); form {
	case EncodingForm_None:
		return nil
	case EncodingForm_Reg:
		return []int64{int64(instr.Reg)}
	case EncodingForm_RegImm32:
		return []int64{int64(instr.Reg), instr.Imm}
	case EncodingForm_Imm32, EncodingForm_Imm8, EncodingForm_Rel32, EncodingForm_Rel8:
		return []int64{instr.Imm}
	case EncodingForm_ImportSlot:
		return []int64{int64(instr.Slot)}
	case EncodingForm_ModRM:
		if instr.Mode == AddressingMode_MemDisp {
			return []int64{int64(instr.Reg), int64(instr.RM), int64(instr.Disp)}
		}
		return []int64{int64(instr.Reg), int64(instr.RM)}
	}
	return nil
}

func (instr *RawInstruction) form() EncodingForm {
	descriptor, err := Opcodes.Descriptor(instr.OpCode)
	if err != nil {
		return EncodingForm_None
	}
	return descriptor.Form
}

func (instr *RawInstruction) String() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("%v", instr.OpCode))

	for i, operand := range instr.Operands() {
		if i == 0 {
			builder.WriteByte(' ')
		} else {
			builder.WriteString(", ")
		}
		builder.WriteString(utils.FormatUintHex(uint64(uint32(operand)), 8))
	}

	return builder.String()
}

// Next returns the address of the instruction following this one
func (instr *RawInstruction) Next() uint64 {
	return instr.Addr + uint64(instr.Len)
}

// BranchTarget returns the absolute target address of a relative branch
func (instr *RawInstruction) BranchTarget() uint64 {
	return uint64(int64(instr.Next()) + instr.Imm)
}
