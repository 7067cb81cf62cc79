package optimizer

import (
	"github.com/nacholabs/nacho/pkg/emu/ir"
)

// EliminateDeadCode removes instructions whose effect cannot influence any
// later use: semantic no-ops, and register writes overwritten before any
// read. Branch targets, control transfers, calls, stores and unsupported
// markers are never eligible. The pass runs to a fixpoint, so applying it
// twice yields the same sequence as applying it once.
func EliminateDeadCode(instrs []ir.Instruction) []ir.Instruction {
	seq := make([]ir.Instruction, len(instrs))
	copy(seq, instrs)

	for {
		next := eliminateOnce(seq)
		if len(next) == len(seq) {
			return next
		}
		seq = next
	}
}

func eliminateOnce(seq []ir.Instruction) []ir.Instruction {
	joins := joinAddresses(seq)
	out := make([]ir.Instruction, 0, len(seq))

	for i, instr := range seq {
		if instr.Op == ir.Op_NOP {
			continue
		}
		if deadWrite(seq, i, joins) {
			continue
		}
		out = append(out, instr)
	}

	return out
}

// joinAddresses returns the addresses where another control flow path may
// join the sequence. A scan for register liveness must stop there, since a
// joining path may read anything.
func joinAddresses(seq []ir.Instruction) map[uint64]bool {
	joins := make(map[uint64]bool)

	for _, instr := range seq {
		switch instr.Op {
		case ir.Op_JMP, ir.Op_JZ, ir.Op_JNZ:
			for _, operand := range instr.Operands {
				if operand.Kind == ir.OperandKind_Label {
					joins[operand.Target] = true
				}
			}
		}
	}

	return joins
}

// deadWrite reports whether instruction i writes a register that is
// overwritten before any possible read
func deadWrite(seq []ir.Instruction, i int, joins map[uint64]bool) bool {
	instr := seq[i]

	switch instr.Op {
	case ir.Op_MOV, ir.Op_ADD, ir.Op_SUB, ir.Op_LOAD, ir.Op_CMP:
	default:
		return false
	}

	dest, hasDest := instr.Dest()
	if !hasDest {
		return false
	}

	for j := i + 1; j < len(seq); j++ {
		later := seq[j]

		// A join point, call, control transfer or fault marker may expose
		// the value to a path we cannot see
		if later.Addr != instr.Addr && joins[later.Addr] {
			return false
		}
		switch later.Op {
		case ir.Op_CALL, ir.Op_UNSUPPORTED:
			return false
		}
		if later.Op.IsControlTransfer() {
			return false
		}

		for _, read := range later.Reads() {
			if read == dest {
				return false
			}
		}
		if laterDest, hasLaterDest := later.Dest(); hasLaterDest && laterDest == dest {
			return true
		}
	}

	// Value may outlive the sequence
	return false
}
