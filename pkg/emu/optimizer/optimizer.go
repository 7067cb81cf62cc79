// Package optimizer rewrites lifted IR without changing observable
// behavior. Two passes run in fixed order: dead-code elimination, then block
// linking into a control flow graph. Both are pure: the input sequence is
// never mutated and identical input yields identical output.
package optimizer

import (
	"github.com/nacholabs/nacho/pkg/emu/ir"
)

// Optimize applies all passes to a lifted region and returns its CFG
func Optimize(instrs []ir.Instruction, entry uint64) (*ir.CFG, error) {
	seq := EliminateDeadCode(instrs)

	cfg := LinkBlocks(seq, entry)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
