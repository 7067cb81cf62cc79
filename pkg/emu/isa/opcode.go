package isa

// OpCode identifies a machine instruction of the guest instruction set.
// The supported set is the x86-32 subset needed to model guest behavior,
// not a complete ISA.
type OpCode uint8

const (
	// No-Operation
	OpCode_NOP OpCode = iota
	// Return from procedure
	OpCode_RET
	// Halt the program
	OpCode_HLT
	// Unconditional relative jump
	OpCode_JMP
	// Relative call to an internal procedure
	OpCode_CALL
	// Indirect call through an import slot (symbolic, cross-boundary)
	OpCode_CALLF
	// Copy immediate into register
	OpCode_MOV_RI
	// Copy register into register or memory (89 /r)
	OpCode_MOV_MR
	// Copy register or memory into register (8B /r)
	OpCode_MOV_RM
	// Add register into register or memory
	OpCode_ADD_MR
	// Subtract register from register or memory
	OpCode_SUB_MR
	// Compare register or memory against register
	OpCode_CMP_MR
	// Compare accumulator against immediate
	OpCode_CMP_AI
	// Jump if zero flag set
	OpCode_JZ
	// Jump if zero flag clear
	OpCode_JNZ
	// Push register onto the stack
	OpCode_PUSH
	// Pop register off the stack
	OpCode_POP
	// Software interrupt. Decodable but not translatable
	OpCode_INT

	// Total opcodes implemented
	TOTAL_OPCODES
)

// Returns the mnemonic of the instruction opcode
func (op OpCode) String() string {
	return Opcodes.Mnemonic(op)
}
