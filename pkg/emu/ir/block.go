package ir

import (
	"errors"
	"fmt"

	"github.com/nacholabs/nacho/pkg/utils"
)

var ErrMalformedCFG = errors.New("malformed control flow graph")

// EdgeKind tags a successor edge of a basic block
type EdgeKind uint8

const (
	// Edge to a block present in the same CFG
	EdgeKind_Internal EdgeKind = iota
	// Edge to an address outside the decoded region, to be resolved
	// lazily by decode-on-demand on first traversal
	EdgeKind_External
	// Fall-through past the end of the decoded region. There is no target
	// address; traversing this edge is an execution fault.
	EdgeKind_FallOff
)

// Edge is a successor edge of a basic block. Targets that were not decoded
// yet are kept as explicit external edges, never dropped.
type Edge struct {
	Kind   EdgeKind
	Target uint64
}

func (e Edge) String() string {
	switch e.Kind {
	case EdgeKind_External:
		return fmt.Sprintf("ext:0x%08X", e.Target)
	case EdgeKind_FallOff:
		return "falloff"
	}
	return fmt.Sprintf("0x%08X", e.Target)
}

// BasicBlock is a non-empty straight-line run of IR instructions with a
// single entry point and at most one terminal control transfer. Its entry
// address is its identity.
type BasicBlock struct {
	Entry        uint64
	Instructions []Instruction
	Succs        []Edge
}

// Terminator returns the control transfer ending the block, if any
func (b *BasicBlock) Terminator() (Instruction, bool) {
	if len(b.Instructions) == 0 {
		return Instruction{}, false
	}
	last := b.Instructions[len(b.Instructions)-1]
	return last, last.Op.IsControlTransfer()
}

func (b *BasicBlock) String() string {
	return fmt.Sprintf("block 0x%08X (%d instructions, succs: %v)", b.Entry, len(b.Instructions), b.Succs)
}

// CFG is a set of basic blocks plus their successor edges
type CFG struct {
	Entry  uint64
	Blocks map[uint64]*BasicBlock
}

func NewCFG(entry uint64) *CFG {
	return &CFG{Entry: entry, Blocks: make(map[uint64]*BasicBlock)}
}

// Block returns the block whose entry address is addr
func (g *CFG) Block(addr uint64) (*BasicBlock, bool) {
	block, hasBlock := g.Blocks[addr]
	return block, hasBlock
}

// Validate checks the CFG invariants: non-empty blocks, at most one
// terminal control transfer per block, and every internal edge targeting a
// block present in the graph.
func (g *CFG) Validate() error {
	if _, hasEntry := g.Blocks[g.Entry]; !hasEntry {
		return utils.MakeError(ErrMalformedCFG, "entry block 0x%08X not present", g.Entry)
	}

	for addr, block := range g.Blocks {
		if addr != block.Entry {
			return utils.MakeError(ErrMalformedCFG, "block keyed at 0x%08X has entry 0x%08X", addr, block.Entry)
		}
		if len(block.Instructions) == 0 {
			return utils.MakeError(ErrMalformedCFG, "block 0x%08X is empty", addr)
		}
		for i, instr := range block.Instructions {
			if instr.Op.IsControlTransfer() && i != len(block.Instructions)-1 {
				return utils.MakeError(ErrMalformedCFG, "block 0x%08X has a control transfer (%v) before its end", addr, instr)
			}
		}
		for _, edge := range block.Succs {
			if edge.Kind == EdgeKind_Internal {
				if _, hasTarget := g.Blocks[edge.Target]; !hasTarget {
					return utils.MakeError(ErrMalformedCFG, "block 0x%08X has a dangling edge to 0x%08X", addr, edge.Target)
				}
			}
		}
	}

	return nil
}
