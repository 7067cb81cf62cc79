package ir

import (
	"fmt"
)

// Width of an operand value, in bits
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// RegisterID identifies an IR register
type RegisterID uint8

const (
	// General purpose registers, r0-r7. r4 is the stack pointer, r5 the frame pointer
	R0 RegisterID = iota
	R1
	R2
	R3
	RSP
	RBP
	R6
	R7
	// Pseudo register written by CMP and read by conditional jumps
	RFlags
	// Scratch register used by the lifter when expanding read-modify-write instructions
	RScratch

	TOTAL_REGISTERS
)

var registerNames = map[RegisterID]string{
	R0:       "r0",
	R1:       "r1",
	R2:       "r2",
	R3:       "r3",
	RSP:      "sp",
	RBP:      "fp",
	R6:       "r6",
	R7:       "r7",
	RFlags:   "flags",
	RScratch: "tmp",
}

func (r RegisterID) String() string {
	if name, hasName := registerNames[r]; hasName {
		return name
	}
	return fmt.Sprintf("r?%d", uint8(r))
}

// OperandKind tags the variant stored in an Operand
type OperandKind uint8

const (
	OperandKind_Register OperandKind = iota
	OperandKind_Immediate
	OperandKind_MemoryRef
	OperandKind_Label
	OperandKind_Symbol
)

func (k OperandKind) String() string {
	switch k {
	case OperandKind_Register:
		return "register"
	case OperandKind_Immediate:
		return "immediate"
	case OperandKind_MemoryRef:
		return "memory"
	case OperandKind_Label:
		return "label"
	case OperandKind_Symbol:
		return "symbol"
	}
	return "unknown"
}

// Operand is a tagged variant over register, immediate, memory reference,
// block label and symbolic call target. An operand is exactly one of those
// kinds; only the fields of the active kind are meaningful.
type Operand struct {
	Kind OperandKind

	// Register operand, or base register of a memory reference
	Register RegisterID
	// Immediate value (sign-extended when Signed)
	Value int64
	// Value width for immediate and memory operands
	Width Width
	// Signedness of the immediate value
	Signed bool
	// Displacement of a memory reference over its base register
	Offset int32
	// Target address of a label operand
	Target uint64
	// Call target name of a symbol operand
	Symbol string
}

// Reg builds a register operand
func Reg(r RegisterID) Operand {
	return Operand{Kind: OperandKind_Register, Register: r}
}

// Imm builds an immediate operand
func Imm(value int64, width Width, signed bool) Operand {
	return Operand{Kind: OperandKind_Immediate, Value: value, Width: width, Signed: signed}
}

// Mem builds a memory reference operand with a base register and a displacement
func Mem(base RegisterID, offset int32, width Width) Operand {
	return Operand{Kind: OperandKind_MemoryRef, Register: base, Offset: offset, Width: width}
}

// Label builds a block label operand pointing at an instruction address
func Label(target uint64) Operand {
	return Operand{Kind: OperandKind_Label, Target: target}
}

// Sym builds a symbolic call target operand
func Sym(name string) Operand {
	return Operand{Kind: OperandKind_Symbol, Symbol: name}
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandKind_Register:
		return o.Register.String()
	case OperandKind_Immediate:
		return fmt.Sprintf("#%d", o.Value)
	case OperandKind_MemoryRef:
		if o.Offset != 0 {
			return fmt.Sprintf("[%v%+d]", o.Register, o.Offset)
		}
		return fmt.Sprintf("[%v]", o.Register)
	case OperandKind_Label:
		return fmt.Sprintf("0x%08X", o.Target)
	case OperandKind_Symbol:
		return fmt.Sprintf("@%s", o.Symbol)
	}
	return "<invalid operand>"
}
