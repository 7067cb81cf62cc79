package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacholabs/nacho/pkg/emu/ir"
)

const entry = uint64(0x1000)

func TestEliminateNops(t *testing.T) {
	seq := []ir.Instruction{
		ir.New(ir.Op_NOP, entry),
		ir.New(ir.Op_MOV, entry+1, ir.Reg(ir.R0), ir.Imm(1, ir.Width32, true)),
		ir.New(ir.Op_NOP, entry+6),
		ir.New(ir.Op_RET, entry+7),
	}

	out := EliminateDeadCode(seq)

	assert.Equal(t, []ir.Instruction{
		ir.New(ir.Op_MOV, entry+1, ir.Reg(ir.R0), ir.Imm(1, ir.Width32, true)),
		ir.New(ir.Op_RET, entry+7),
	}, out)
}

// TestEliminateOverwrittenMov tests that a register write overwritten before
// any read is removed
func TestEliminateOverwrittenMov(t *testing.T) {
	seq := []ir.Instruction{
		ir.New(ir.Op_MOV, entry, ir.Reg(ir.R0), ir.Imm(1, ir.Width32, true)),
		ir.New(ir.Op_MOV, entry+5, ir.Reg(ir.R0), ir.Imm(2, ir.Width32, true)),
		ir.New(ir.Op_RET, entry+10),
	}

	out := EliminateDeadCode(seq)

	assert.Equal(t, []ir.Instruction{
		ir.New(ir.Op_MOV, entry+5, ir.Reg(ir.R0), ir.Imm(2, ir.Width32, true)),
		ir.New(ir.Op_RET, entry+10),
	}, out)
}

func TestKeepWriteThatIsRead(t *testing.T) {
	seq := []ir.Instruction{
		ir.New(ir.Op_MOV, entry, ir.Reg(ir.R0), ir.Imm(1, ir.Width32, true)),
		ir.New(ir.Op_ADD, entry+5, ir.Reg(ir.R1), ir.Reg(ir.R0)),
		ir.New(ir.Op_MOV, entry+7, ir.Reg(ir.R0), ir.Imm(2, ir.Width32, true)),
		ir.New(ir.Op_RET, entry+12),
	}

	out := EliminateDeadCode(seq)
	assert.Len(t, out, 4, "a write read before its overwrite must survive")
}

// TestKeepStores tests that memory writes are never elimination candidates,
// observable effects are preserved
func TestKeepStores(t *testing.T) {
	seq := []ir.Instruction{
		ir.New(ir.Op_STORE, entry, ir.Mem(ir.RSP, 0, ir.Width32), ir.Reg(ir.R0)),
		ir.New(ir.Op_STORE, entry+2, ir.Mem(ir.RSP, 0, ir.Width32), ir.Reg(ir.R1)),
		ir.New(ir.Op_RET, entry+4),
	}

	assert.Equal(t, seq, EliminateDeadCode(seq))
}

// TestCallBarrier tests that a call blocks elimination: the callee may
// observe any register
func TestCallBarrier(t *testing.T) {
	seq := []ir.Instruction{
		ir.New(ir.Op_MOV, entry, ir.Reg(ir.R0), ir.Imm(1, ir.Width32, true)),
		ir.New(ir.Op_CALL, entry+5, ir.Sym("Log.i")),
		ir.New(ir.Op_MOV, entry+11, ir.Reg(ir.R0), ir.Imm(2, ir.Width32, true)),
		ir.New(ir.Op_RET, entry+16),
	}

	assert.Equal(t, seq, EliminateDeadCode(seq))
}

// TestJoinBarrier tests that a branch target address blocks elimination
// across it: the joining path may read anything
func TestJoinBarrier(t *testing.T) {
	join := entry + 5

	seq := []ir.Instruction{
		ir.New(ir.Op_MOV, entry, ir.Reg(ir.R0), ir.Imm(1, ir.Width32, true)),
		ir.New(ir.Op_MOV, join, ir.Reg(ir.R1), ir.Imm(0, ir.Width32, true)),
		ir.New(ir.Op_MOV, join+5, ir.Reg(ir.R0), ir.Imm(2, ir.Width32, true)),
		ir.New(ir.Op_JNZ, join+10, ir.Label(join)),
		ir.New(ir.Op_RET, join+12),
	}

	out := EliminateDeadCode(seq)
	assert.Len(t, out, 5, "writes must survive across a join point")
}

// TestEliminationIdempotent tests that optimizing an already optimized
// sequence changes nothing
func TestEliminationIdempotent(t *testing.T) {
	seq := []ir.Instruction{
		ir.New(ir.Op_NOP, entry),
		ir.New(ir.Op_MOV, entry+1, ir.Reg(ir.R0), ir.Imm(1, ir.Width32, true)),
		ir.New(ir.Op_MOV, entry+6, ir.Reg(ir.R1), ir.Reg(ir.R0)),
		ir.New(ir.Op_MOV, entry+8, ir.Reg(ir.R0), ir.Imm(2, ir.Width32, true)),
		ir.New(ir.Op_MOV, entry+13, ir.Reg(ir.R1), ir.Imm(3, ir.Width32, true)),
		ir.New(ir.Op_NOP, entry+18),
		ir.New(ir.Op_RET, entry+19),
	}

	once := EliminateDeadCode(seq)
	twice := EliminateDeadCode(once)

	assert.Equal(t, once, twice)
}

func TestEliminateDoesNotMutateInput(t *testing.T) {
	seq := []ir.Instruction{
		ir.New(ir.Op_NOP, entry),
		ir.New(ir.Op_RET, entry+1),
	}
	original := make([]ir.Instruction, len(seq))
	copy(original, seq)

	EliminateDeadCode(seq)
	assert.Equal(t, original, seq)
}

func TestLinkBlocksStraightLine(t *testing.T) {
	seq := []ir.Instruction{
		ir.New(ir.Op_MOV, entry, ir.Reg(ir.R0), ir.Imm(5, ir.Width32, true)),
		ir.New(ir.Op_RET, entry+5),
	}

	cfg := LinkBlocks(seq, entry)
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Blocks, 1)
	block, hasBlock := cfg.Block(entry)
	require.True(t, hasBlock)
	assert.Equal(t, seq, block.Instructions)
	assert.Empty(t, block.Succs, "a returning block has no successors")
}

func TestLinkBlocksConditional(t *testing.T) {
	// entry:   CMP; JZ taken
	// fall:    MOV
	// taken:   RET
	fall := entry + 7
	taken := entry + 12

	seq := []ir.Instruction{
		ir.New(ir.Op_CMP, entry, ir.Reg(ir.R0), ir.Imm(0, ir.Width32, true)),
		ir.New(ir.Op_JZ, entry+5, ir.Label(taken)),
		ir.New(ir.Op_MOV, fall, ir.Reg(ir.R0), ir.Imm(1, ir.Width32, true)),
		ir.New(ir.Op_RET, taken),
	}

	cfg := LinkBlocks(seq, entry)
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Blocks, 3)

	entryBlock, _ := cfg.Block(entry)
	require.Len(t, entryBlock.Succs, 2, "conditional records taken and fall-through edges")
	assert.Equal(t, ir.Edge{Kind: ir.EdgeKind_Internal, Target: taken}, entryBlock.Succs[0])
	assert.Equal(t, ir.Edge{Kind: ir.EdgeKind_Internal, Target: fall}, entryBlock.Succs[1])

	fallBlock, _ := cfg.Block(fall)
	require.Len(t, fallBlock.Succs, 1, "split block records its fall-through edge")
	assert.Equal(t, ir.Edge{Kind: ir.EdgeKind_Internal, Target: taken}, fallBlock.Succs[0])
}

// TestLinkBlocksExternalEdge tests that a jump outside the decoded region is
// kept as an explicit external edge, never dropped
func TestLinkBlocksExternalEdge(t *testing.T) {
	outside := entry + 0x100

	seq := []ir.Instruction{
		ir.New(ir.Op_JMP, entry, ir.Label(outside)),
	}

	cfg := LinkBlocks(seq, entry)
	require.NoError(t, cfg.Validate())

	block, _ := cfg.Block(entry)
	require.Len(t, block.Succs, 1)
	assert.Equal(t, ir.Edge{Kind: ir.EdgeKind_External, Target: outside}, block.Succs[0])
}

// TestLinkBlocksFallOffEdge tests that a conditional ending the decoded
// region records a fall-off edge, distinct from an addressed edge, so a
// program loaded at address zero can still branch to address zero
func TestLinkBlocksFallOffEdge(t *testing.T) {
	seq := []ir.Instruction{
		ir.New(ir.Op_CMP, 0, ir.Reg(ir.R0), ir.Imm(0, ir.Width32, true)),
		ir.New(ir.Op_JZ, 5, ir.Label(0)),
	}

	cfg := LinkBlocks(seq, 0)
	require.NoError(t, cfg.Validate())

	block, _ := cfg.Block(0)
	require.Len(t, block.Succs, 2)
	assert.Equal(t, ir.Edge{Kind: ir.EdgeKind_Internal, Target: 0}, block.Succs[0], "address zero is a real branch target")
	assert.Equal(t, ir.Edge{Kind: ir.EdgeKind_FallOff}, block.Succs[1], "past the region there is no target at all")
}

// TestLinkBlocksExpansionBoundary tests that a branch into an expanded
// instruction splits at the first IR instruction of that source address
func TestLinkBlocksExpansionBoundary(t *testing.T) {
	push := entry + 5

	seq := []ir.Instruction{
		ir.New(ir.Op_MOV, entry, ir.Reg(ir.R0), ir.Imm(1, ir.Width32, true)),
		// PUSH expansion: two IR instructions with one source address
		ir.New(ir.Op_SUB, push, ir.Reg(ir.RSP), ir.Imm(4, ir.Width32, false)),
		ir.New(ir.Op_STORE, push, ir.Mem(ir.RSP, 0, ir.Width32), ir.Reg(ir.R0)),
		ir.New(ir.Op_JMP, push+1, ir.Label(push)),
	}

	cfg := LinkBlocks(seq, entry)
	require.NoError(t, cfg.Validate())

	block, hasBlock := cfg.Block(push)
	require.True(t, hasBlock, "the jump target block starts at the expansion boundary")
	assert.Equal(t, ir.Op_SUB, block.Instructions[0].Op, "block starts at the first instruction of the expansion")
}

func TestLinkBlocksAddsStructureOnly(t *testing.T) {
	target := entry + 10

	seq := []ir.Instruction{
		ir.New(ir.Op_MOV, entry, ir.Reg(ir.R0), ir.Imm(1, ir.Width32, true)),
		ir.New(ir.Op_JZ, entry+5, ir.Label(target)),
		ir.New(ir.Op_MOV, entry+7, ir.Reg(ir.R1), ir.Imm(2, ir.Width32, true)),
		ir.New(ir.Op_RET, target),
	}

	cfg := LinkBlocks(seq, entry)

	var total int
	for _, block := range cfg.Blocks {
		total += len(block.Instructions)
	}
	assert.Equal(t, len(seq), total, "no instruction is deleted or duplicated")
}

func TestOptimizeProducesValidCFG(t *testing.T) {
	target := entry + 13

	seq := []ir.Instruction{
		ir.New(ir.Op_NOP, entry),
		ir.New(ir.Op_MOV, entry+1, ir.Reg(ir.R0), ir.Imm(5, ir.Width32, true)),
		ir.New(ir.Op_CMP, entry+6, ir.Reg(ir.R0), ir.Imm(5, ir.Width32, true)),
		ir.New(ir.Op_JZ, entry+11, ir.Label(target)),
		ir.New(ir.Op_RET, target),
	}

	cfg, err := Optimize(seq, entry)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, entry, cfg.Entry)

	// The NOP is gone, everything else survived
	entryBlock, hasEntry := cfg.Block(entry)
	require.True(t, hasEntry)
	assert.Equal(t, ir.Op_MOV, entryBlock.Instructions[0].Op)
}
