package optimizer

import (
	"github.com/nacholabs/nacho/pkg/emu/ir"
)

// LinkBlocks partitions an IR sequence into basic blocks and records
// successor edges, producing the region's CFG. The pass adds structure only:
// no instruction is deleted or reordered. Jump targets outside the sequence
// become explicit external edges resolved lazily on first traversal.
func LinkBlocks(seq []ir.Instruction, entry uint64) *ir.CFG {
	cfg := ir.NewCFG(entry)
	if len(seq) == 0 {
		return cfg
	}

	firstIndex := firstIndexByAddress(seq)
	leaders := findLeaders(seq, firstIndex)

	// Partition into blocks at leader indices
	var starts []int
	for i := range seq {
		if leaders[i] {
			starts = append(starts, i)
		}
	}

	blocks := make([]*ir.BasicBlock, len(starts))
	for b, start := range starts {
		end := len(seq)
		if b+1 < len(starts) {
			end = starts[b+1]
		}

		instrs := make([]ir.Instruction, end-start)
		copy(instrs, seq[start:end])

		blockEntry := seq[start].Addr
		if b == 0 {
			// The region is entered at entry even when elimination removed
			// the instruction lifted at that exact address
			blockEntry = entry
		}

		blocks[b] = &ir.BasicBlock{Entry: blockEntry, Instructions: instrs}
		cfg.Blocks[blocks[b].Entry] = blocks[b]
	}

	// Record successor edges
	for b, block := range blocks {
		var next *ir.BasicBlock
		if b+1 < len(blocks) {
			next = blocks[b+1]
		}

		terminator, hasTerminator := block.Terminator()

		if !hasTerminator {
			// Split forced by a following leader: plain fall-through
			if next != nil {
				block.Succs = append(block.Succs, edgeTo(cfg, next.Entry))
			}
			continue
		}

		switch terminator.Op {
		case ir.Op_RET:
			// No successors

		case ir.Op_JMP:
			block.Succs = append(block.Succs, edgeTo(cfg, terminator.Operands[0].Target))

		case ir.Op_JZ, ir.Op_JNZ:
			block.Succs = append(block.Succs, edgeTo(cfg, terminator.Operands[0].Target))
			if next != nil {
				block.Succs = append(block.Succs, edgeTo(cfg, next.Entry))
			} else {
				// Fall-through past the decoded region
				block.Succs = append(block.Succs, ir.Edge{Kind: ir.EdgeKind_FallOff})
			}
		}
	}

	return cfg
}

func edgeTo(cfg *ir.CFG, target uint64) ir.Edge {
	if _, hasTarget := cfg.Blocks[target]; hasTarget {
		return ir.Edge{Kind: ir.EdgeKind_Internal, Target: target}
	}
	return ir.Edge{Kind: ir.EdgeKind_External, Target: target}
}

// firstIndexByAddress maps each source address to the first IR instruction
// lifted from it, so leaders land on expansion boundaries
func firstIndexByAddress(seq []ir.Instruction) map[uint64]int {
	first := make(map[uint64]int, len(seq))

	for i, instr := range seq {
		if _, seen := first[instr.Addr]; !seen {
			first[instr.Addr] = i
		}
	}

	return first
}

func findLeaders(seq []ir.Instruction, firstIndex map[uint64]int) []bool {
	leaders := make([]bool, len(seq))
	leaders[0] = true

	for i, instr := range seq {
		if instr.Op.IsControlTransfer() && i+1 < len(seq) {
			leaders[i+1] = true
		}

		switch instr.Op {
		case ir.Op_JMP, ir.Op_JZ, ir.Op_JNZ:
			target := instr.Operands[0].Target
			if index, inRegion := firstIndex[target]; inRegion {
				leaders[index] = true
			}
		}
	}

	return leaders
}
