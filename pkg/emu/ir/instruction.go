package ir

import (
	"fmt"
	"strings"
)

// Op is a canonical IR opcode
type Op uint8

const (
	Op_NOP Op = iota
	Op_MOV
	Op_ADD
	Op_SUB
	Op_CMP
	Op_JMP
	Op_JZ
	Op_JNZ
	Op_CALL
	Op_RET
	Op_LOAD
	Op_STORE
	// Marker for machine instructions the lifter recognizes but cannot
	// translate. Executing one is a hard fault, never a no-op.
	Op_UNSUPPORTED

	TOTAL_OPS
)

var opMnemonics = map[Op]string{
	Op_NOP:         "NOP",
	Op_MOV:         "MOV",
	Op_ADD:         "ADD",
	Op_SUB:         "SUB",
	Op_CMP:         "CMP",
	Op_JMP:         "JMP",
	Op_JZ:          "JZ",
	Op_JNZ:         "JNZ",
	Op_CALL:        "CALL",
	Op_RET:         "RET",
	Op_LOAD:        "LOAD",
	Op_STORE:       "STORE",
	Op_UNSUPPORTED: "UNSUPPORTED",
}

func (op Op) String() string {
	if mnemonic, hasMnemonic := opMnemonics[op]; hasMnemonic {
		return mnemonic
	}
	return fmt.Sprintf("OP?%d", uint8(op))
}

// IsControlTransfer returns true if the opcode terminates a basic block
func (op Op) IsControlTransfer() bool {
	switch op {
	case Op_JMP, Op_JZ, Op_JNZ, Op_RET:
		return true
	}
	return false
}

// IsConditional returns true for opcodes with both a taken and a fall-through successor
func (op Op) IsConditional() bool {
	return op == Op_JZ || op == Op_JNZ
}

// Instruction is a single canonical IR instruction. Instructions are
// immutable once built; optimization passes produce new sequences instead of
// editing in place.
type Instruction struct {
	Op       Op
	Operands []Operand
	// Address of the machine instruction this was lifted from, for fault
	// reporting and block identity
	Addr uint64
}

func New(op Op, addr uint64, operands ...Operand) Instruction {
	return Instruction{Op: op, Operands: operands, Addr: addr}
}

func (i Instruction) String() string {
	var builder strings.Builder

	builder.WriteString(i.Op.String())

	for j, operand := range i.Operands {
		if j == 0 {
			builder.WriteByte(' ')
		} else {
			builder.WriteString(", ")
		}
		builder.WriteString(operand.String())
	}

	return builder.String()
}

// Dest returns the register written by the instruction, if any. CMP writes
// the flags pseudo register. STORE writes memory, not a register.
func (i Instruction) Dest() (RegisterID, bool) {
	switch i.Op {
	case Op_MOV, Op_ADD, Op_SUB, Op_LOAD:
		if len(i.Operands) > 0 && i.Operands[0].Kind == OperandKind_Register {
			return i.Operands[0].Register, true
		}
	case Op_CMP:
		return RFlags, true
	}
	return 0, false
}

// Reads returns the registers read by the instruction
func (i Instruction) Reads() []RegisterID {
	var reads []RegisterID

	appendOperandReads := func(o Operand, isDest bool) {
		switch o.Kind {
		case OperandKind_Register:
			if !isDest {
				reads = append(reads, o.Register)
			}
		case OperandKind_MemoryRef:
			reads = append(reads, o.Register)
		}
	}

	switch i.Op {
	case Op_MOV, Op_LOAD:
		// Destination register (operand 0) is written, not read
		for j, operand := range i.Operands {
			appendOperandReads(operand, j == 0 && operand.Kind == OperandKind_Register)
		}
	case Op_ADD, Op_SUB:
		// Destination is also a source
		for _, operand := range i.Operands {
			appendOperandReads(operand, false)
		}
	case Op_CMP, Op_STORE:
		for _, operand := range i.Operands {
			appendOperandReads(operand, false)
		}
	case Op_JZ, Op_JNZ:
		reads = append(reads, RFlags)
	}

	return reads
}
