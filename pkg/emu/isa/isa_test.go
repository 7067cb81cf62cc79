package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpcodesTableComplete tests that every opcode has a descriptor
func TestOpcodesTableComplete(t *testing.T) {
	assert.Equal(t, int(TOTAL_OPCODES), Opcodes.TotalOpCodes())

	for op := OpCode(0); op < TOTAL_OPCODES; op++ {
		descriptor, err := Opcodes.Descriptor(op)
		require.NoError(t, err)
		assert.Equal(t, op, descriptor.OpCode)
		assert.NotEmpty(t, descriptor.Mnemonic)
	}
}

func TestDescriptorOfUnknownOpCode(t *testing.T) {
	_, err := Opcodes.Descriptor(TOTAL_OPCODES)
	assert.ErrorIs(t, err, ErrInvalidOpCode)
}

func TestParseOpCode(t *testing.T) {
	tests := []struct {
		mnemonic string
		expected OpCode
		wantErr  bool
	}{
		{mnemonic: "NOP", expected: OpCode_NOP},
		{mnemonic: "ret", expected: OpCode_RET},
		{mnemonic: "CALLF", expected: OpCode_CALLF},
		{mnemonic: "movri", expected: OpCode_MOV_RI},
		{mnemonic: "BOGUS", wantErr: true},
		{mnemonic: "", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.mnemonic, func(t *testing.T) {
			op, err := Opcodes.ParseOpCode(test.mnemonic)

			if test.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOpCode)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, op)
		})
	}
}

func TestRawInstructionOperands(t *testing.T) {
	tests := []struct {
		name     string
		instr    RawInstruction
		expected []int64
	}{
		{
			name:     "no operands",
			instr:    RawInstruction{OpCode: OpCode_NOP, Len: 1},
			expected: nil,
		},
		{
			name:     "register in opcode byte",
			instr:    RawInstruction{OpCode: OpCode_PUSH, Reg: 3, Len: 1},
			expected: []int64{3},
		},
		{
			name:     "register plus immediate",
			instr:    RawInstruction{OpCode: OpCode_MOV_RI, Reg: 1, Imm: 42, Len: 5},
			expected: []int64{1, 42},
		},
		{
			name:     "import slot",
			instr:    RawInstruction{OpCode: OpCode_CALLF, Slot: 7, Len: 6},
			expected: []int64{7},
		},
		{
			name:     "register direct modrm",
			instr:    RawInstruction{OpCode: OpCode_MOV_MR, Mode: AddressingMode_RegDirect, Reg: 1, RM: 2, Len: 2},
			expected: []int64{1, 2},
		},
		{
			name:     "memory modrm with displacement",
			instr:    RawInstruction{OpCode: OpCode_MOV_MR, Mode: AddressingMode_MemDisp, Reg: 1, RM: 2, Disp: -8, Len: 3},
			expected: []int64{1, 2, -8},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.instr.Operands())
		})
	}
}

func TestBranchTarget(t *testing.T) {
	// Relative displacements are measured from the end of the instruction
	jmp := RawInstruction{Addr: 0x1000, OpCode: OpCode_JMP, Imm: 0x10, Len: 5}
	assert.Equal(t, uint64(0x1005), jmp.Next())
	assert.Equal(t, uint64(0x1015), jmp.BranchTarget())

	backwards := RawInstruction{Addr: 0x1000, OpCode: OpCode_JZ, Imm: -4, Len: 2}
	assert.Equal(t, uint64(0x0FFE), backwards.BranchTarget())
}
