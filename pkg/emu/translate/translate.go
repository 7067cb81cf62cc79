// Package translate drives the decode, lift and optimize pipeline. The
// pipeline is synchronous and side-effect-free, so translated regions are
// memoized: translating the same address twice returns the same CFG.
package translate

import (
	"errors"

	"github.com/nacholabs/nacho/pkg/emu/image"
	"github.com/nacholabs/nacho/pkg/emu/ir"
	"github.com/nacholabs/nacho/pkg/emu/lifter"
	"github.com/nacholabs/nacho/pkg/emu/optimizer"
	"github.com/nacholabs/nacho/pkg/utils"
)

var ErrNoBlock = errors.New("no translated block")

// Translator memoizes region translation and keeps the merged block map the
// execution engine resolves jump targets against.
type Translator struct {
	img     *image.Image
	lifter  *lifter.Lifter
	regions map[uint64]*ir.CFG
	blocks  map[uint64]*ir.BasicBlock
}

func New(img *image.Image, policy lifter.RecoveryPolicy) *Translator {
	return &Translator{
		img:     img,
		lifter:  lifter.New(img, policy),
		regions: make(map[uint64]*ir.CFG),
		blocks:  make(map[uint64]*ir.BasicBlock),
	}
}

// Image returns the program image being translated
func (t *Translator) Image() *image.Image {
	return t.img
}

// Translate decodes, lifts and optimizes the region starting at addr.
// Results are memoized.
func (t *Translator) Translate(addr uint64) (*ir.CFG, error) {
	if cfg, translated := t.regions[addr]; translated {
		return cfg, nil
	}

	instrs, err := t.lifter.LiftRegion(addr)
	if err != nil {
		return nil, err
	}

	cfg, err := optimizer.Optimize(instrs, addr)
	if err != nil {
		return nil, err
	}

	t.regions[addr] = cfg
	for entry, block := range cfg.Blocks {
		// Keep the first translation of an address: regions may overlap
		if _, translated := t.blocks[entry]; !translated {
			t.blocks[entry] = block
		}
	}

	return cfg, nil
}

// Block returns the basic block entered at addr, translating its region on
// demand. This is how external CFG edges are resolved lazily on first
// traversal.
func (t *Translator) Block(addr uint64) (*ir.BasicBlock, error) {
	if block, translated := t.blocks[addr]; translated {
		return block, nil
	}

	if _, err := t.Translate(addr); err != nil {
		return nil, err
	}

	if block, translated := t.blocks[addr]; translated {
		return block, nil
	}

	return nil, utils.MakeError(ErrNoBlock, "0x%08X", addr)
}

// Blocks returns how many basic blocks have been translated so far
func (t *Translator) Blocks() int {
	return len(t.blocks)
}
