package isa

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nacholabs/nacho/pkg/utils"
)

var ErrInvalidOpCode = errors.New("invalid instruction opcode")

// EncodingForm describes how an instruction's operands are laid out after
// its opcode byte
type EncodingForm uint8

const (
	// Single opcode byte, no operands
	EncodingForm_None EncodingForm = iota
	// Register encoded in the three least significant bits of the opcode byte
	EncodingForm_Reg
	// Register in the opcode byte plus a 32-bit immediate
	EncodingForm_RegImm32
	// 32-bit immediate
	EncodingForm_Imm32
	// 8-bit immediate
	EncodingForm_Imm8
	// Signed 32-bit displacement relative to the next instruction
	EncodingForm_Rel32
	// Signed 8-bit displacement relative to the next instruction
	EncodingForm_Rel8
	// ModRM byte selecting register-direct or base+displacement addressing
	EncodingForm_ModRM
	// Fixed ModRM byte plus a 32-bit import table slot
	EncodingForm_ImportSlot
)

// OpCodeDescriptor contains decoding information for an instruction opcode
type OpCodeDescriptor struct {
	OpCode   OpCode
	Mnemonic string
	// First instruction byte. For EncodingForm_Reg and EncodingForm_RegImm32
	// the register index is added to this byte
	FirstByte byte
	Form      EncodingForm
}

func (d *OpCodeDescriptor) String() string {
	return fmt.Sprintf("%v (byte: %v)", d.Mnemonic, utils.FormatUintHex(uint64(d.FirstByte), 2))
}

// OpCodesDescriptor gives information about the implemented opcodes
type OpCodesDescriptor struct {
	descriptors       map[OpCode]*OpCodeDescriptor
	mnemonicsToOpCode map[string]OpCode
}

// Descriptor returns the descriptor of the given opcode
func (d *OpCodesDescriptor) Descriptor(op OpCode) (*OpCodeDescriptor, error) {
	descriptor, hasDescriptor := d.descriptors[op]

	if !hasDescriptor {
		return nil, utils.MakeError(ErrInvalidOpCode, "%d", op)
	}

	return descriptor, nil
}

// TotalOpCodes returns the number of opcodes implemented
func (d *OpCodesDescriptor) TotalOpCodes() int {
	return len(d.descriptors)
}

// Mnemonic returns the mnemonic string representation of the opcode
func (d *OpCodesDescriptor) Mnemonic(op OpCode) string {
	if descriptor, hasDescriptor := d.descriptors[op]; hasDescriptor {
		return descriptor.Mnemonic
	}
	return fmt.Sprintf("OPCODE?%d", op)
}

// ParseOpCode returns the opcode corresponding to the given mnemonic
func (d *OpCodesDescriptor) ParseOpCode(mnemonic string) (OpCode, error) {
	if opcode, hasOpCode := d.mnemonicsToOpCode[strings.ToUpper(mnemonic)]; hasOpCode {
		return opcode, nil
	}
	return 0, utils.MakeError(ErrInvalidOpCode, "'%v'", mnemonic)
}

// NewOpCodesDescriptor initializes an opcodes descriptor from a descriptor
// table. Panics if a table entry is missing, since an incomplete table is a
// programming error.
func NewOpCodesDescriptor(descriptors map[OpCode]*OpCodeDescriptor) OpCodesDescriptor {
	mnemonics := make(map[string]OpCode, len(descriptors))

	for _, op := range utils.Iota(int(TOTAL_OPCODES), func(i int) OpCode { return OpCode(i) }) {
		descriptor, hasDescriptor := descriptors[op]
		if !hasDescriptor {
			panic(fmt.Sprintf("missing descriptor for opcode %d. Make sure you've added all entries to the Opcodes table", op))
		}
		descriptor.OpCode = op
		mnemonics[descriptor.Mnemonic] = op
	}

	return OpCodesDescriptor{
		descriptors:       descriptors,
		mnemonicsToOpCode: mnemonics,
	}
}

// Opcodes describes all implemented guest opcodes
var Opcodes = NewOpCodesDescriptor(map[OpCode]*OpCodeDescriptor{
	OpCode_NOP:    {Mnemonic: "NOP", FirstByte: 0x90, Form: EncodingForm_None},
	OpCode_RET:    {Mnemonic: "RET", FirstByte: 0xC3, Form: EncodingForm_None},
	OpCode_HLT:    {Mnemonic: "HLT", FirstByte: 0xF4, Form: EncodingForm_None},
	OpCode_JMP:    {Mnemonic: "JMP", FirstByte: 0xE9, Form: EncodingForm_Rel32},
	OpCode_CALL:   {Mnemonic: "CALL", FirstByte: 0xE8, Form: EncodingForm_Rel32},
	OpCode_CALLF:  {Mnemonic: "CALLF", FirstByte: 0xFF, Form: EncodingForm_ImportSlot},
	OpCode_MOV_RI: {Mnemonic: "MOVRI", FirstByte: 0xB8, Form: EncodingForm_RegImm32},
	OpCode_MOV_MR: {Mnemonic: "MOVMR", FirstByte: 0x89, Form: EncodingForm_ModRM},
	OpCode_MOV_RM: {Mnemonic: "MOVRM", FirstByte: 0x8B, Form: EncodingForm_ModRM},
	OpCode_ADD_MR: {Mnemonic: "ADDMR", FirstByte: 0x01, Form: EncodingForm_ModRM},
	OpCode_SUB_MR: {Mnemonic: "SUBMR", FirstByte: 0x29, Form: EncodingForm_ModRM},
	OpCode_CMP_MR: {Mnemonic: "CMPMR", FirstByte: 0x39, Form: EncodingForm_ModRM},
	OpCode_CMP_AI: {Mnemonic: "CMPAI", FirstByte: 0x3D, Form: EncodingForm_Imm32},
	OpCode_JZ:     {Mnemonic: "JZ", FirstByte: 0x74, Form: EncodingForm_Rel8},
	OpCode_JNZ:    {Mnemonic: "JNZ", FirstByte: 0x75, Form: EncodingForm_Rel8},
	OpCode_PUSH:   {Mnemonic: "PUSH", FirstByte: 0x50, Form: EncodingForm_Reg},
	OpCode_POP:    {Mnemonic: "POP", FirstByte: 0x58, Form: EncodingForm_Reg},
	OpCode_INT:    {Mnemonic: "INT", FirstByte: 0xCD, Form: EncodingForm_Imm8},
})
