// Package decoder turns guest code bytes into raw machine instructions.
//
// Decoding is deterministic: the same buffer and offset always produce the
// same instruction sequence. The decoder never decides recovery policy on
// malformed input; it reports ErrDecode and leaves resynchronization or
// abortion to its caller (the lifter).
package decoder

import (
	"errors"

	"github.com/nacholabs/nacho/pkg/emu/isa"
	"github.com/nacholabs/nacho/pkg/utils"
)

var (
	// ErrDecode reports a byte pattern that matches no known instruction
	// encoding, or a buffer ending mid-instruction
	ErrDecode = errors.New("malformed instruction stream")
	// ErrEndOfCode reports the clean end of the code buffer
	ErrEndOfCode = errors.New("end of code")
)

// Decoder walks a code buffer producing a lazy, finite sequence of raw
// instructions. It is not restartable mid-stream except through SeekTo.
type Decoder struct {
	code []byte
	base uint64
	off  int
}

// New creates a decoder over a code buffer loaded at the given base address
func New(code []byte, base uint64) *Decoder {
	return &Decoder{code: code, base: base}
}

// Addr returns the address the next instruction will be decoded at
func (d *Decoder) Addr() uint64 {
	return d.base + uint64(d.off)
}

// Contains returns true if the given address falls inside the code buffer
func (d *Decoder) Contains(addr uint64) bool {
	return addr >= d.base && addr < d.base+uint64(len(d.code))
}

// SeekTo repositions the decoder at an absolute address
func (d *Decoder) SeekTo(addr uint64) error {
	if !d.Contains(addr) {
		return utils.MakeError(ErrDecode, "address 0x%08X outside code region [0x%08X, 0x%08X)", addr, d.base, d.base+uint64(len(d.code)))
	}
	d.off = int(addr - d.base)
	return nil
}

// Skip advances the decoder by n bytes without decoding
func (d *Decoder) Skip(n int) {
	d.off += n
}

// Next decodes the instruction at the current position and advances past
// it. Returns ErrEndOfCode at the clean end of the buffer and ErrDecode on
// unknown encodings or truncated instructions; on error the position is not
// advanced.
func (d *Decoder) Next() (*isa.RawInstruction, error) {
	if d.off >= len(d.code) {
		return nil, ErrEndOfCode
	}

	instr, err := d.decodeAt(d.off)
	if err != nil {
		return nil, err
	}

	d.off += instr.Len
	return instr, nil
}

func (d *Decoder) decodeAt(off int) (*isa.RawInstruction, error) {
	addr := d.base + uint64(off)
	first := d.code[off]

	instr := &isa.RawInstruction{Addr: addr}

	switch {
	case first == 0x90:
		instr.OpCode, instr.Len = isa.OpCode_NOP, 1

	case first == 0xC3:
		instr.OpCode, instr.Len = isa.OpCode_RET, 1

	case first == 0xF4:
		instr.OpCode, instr.Len = isa.OpCode_HLT, 1

	case first == 0xCD:
		imm, err := d.readU8(off + 1)
		if err != nil {
			return nil, err
		}
		instr.OpCode, instr.Imm, instr.Len = isa.OpCode_INT, int64(imm), 2

	case first == 0xE9 || first == 0xE8:
		rel, err := d.readU32(off + 1)
		if err != nil {
			return nil, err
		}
		instr.OpCode = isa.OpCode_JMP
		if first == 0xE8 {
			instr.OpCode = isa.OpCode_CALL
		}
		instr.Imm, instr.Len = int64(int32(rel)), 5

	case first == 0x74 || first == 0x75:
		rel, err := d.readU8(off + 1)
		if err != nil {
			return nil, err
		}
		instr.OpCode = isa.OpCode_JZ
		if first == 0x75 {
			instr.OpCode = isa.OpCode_JNZ
		}
		instr.Imm, instr.Len = int64(int8(rel)), 2

	case first == 0x3D:
		imm, err := d.readU32(off + 1)
		if err != nil {
			return nil, err
		}
		instr.OpCode, instr.Imm, instr.Len = isa.OpCode_CMP_AI, int64(int32(imm)), 5

	case first >= 0xB8 && first <= 0xBF:
		imm, err := d.readU32(off + 1)
		if err != nil {
			return nil, err
		}
		instr.OpCode, instr.Reg, instr.Imm, instr.Len = isa.OpCode_MOV_RI, first-0xB8, int64(int32(imm)), 5

	case first >= 0x50 && first <= 0x57:
		instr.OpCode, instr.Reg, instr.Len = isa.OpCode_PUSH, first-0x50, 1

	case first >= 0x58 && first <= 0x5F:
		instr.OpCode, instr.Reg, instr.Len = isa.OpCode_POP, first-0x58, 1

	case first == 0xFF:
		second, err := d.readU8(off + 1)
		if err != nil {
			return nil, err
		}
		// Only the import-slot call form (ModRM 0x15) of 0xFF is supported
		if second != 0x15 {
			return nil, utils.MakeError(ErrDecode, "unsupported 0xFF form 0x%02X at 0x%08X", second, addr)
		}
		slot, err := d.readU32(off + 2)
		if err != nil {
			return nil, err
		}
		instr.OpCode, instr.Slot, instr.Len = isa.OpCode_CALLF, slot, 6

	case first == 0x89 || first == 0x8B || first == 0x01 || first == 0x29 || first == 0x39:
		op := map[byte]isa.OpCode{
			0x89: isa.OpCode_MOV_MR,
			0x8B: isa.OpCode_MOV_RM,
			0x01: isa.OpCode_ADD_MR,
			0x29: isa.OpCode_SUB_MR,
			0x39: isa.OpCode_CMP_MR,
		}[first]
		if err := d.decodeModRM(instr, op, off); err != nil {
			return nil, err
		}

	default:
		return nil, utils.MakeError(ErrDecode, "unknown encoding 0x%02X at 0x%08X", first, addr)
	}

	return instr, nil
}

// decodeModRM decodes the register-direct and base+displacement addressing
// forms. SIB and absolute addressing are outside the supported subset.
func (d *Decoder) decodeModRM(instr *isa.RawInstruction, op isa.OpCode, off int) error {
	modrm, err := d.readU8(off + 1)
	if err != nil {
		return err
	}

	mod := modrm >> 6
	reg := (modrm >> 3) & 0x7
	rm := modrm & 0x7

	instr.OpCode = op
	instr.Reg = reg
	instr.RM = rm

	switch mod {
	case 0b11:
		instr.Mode, instr.Len = isa.AddressingMode_RegDirect, 2

	case 0b00:
		if rm == 0b100 || rm == 0b101 {
			return utils.MakeError(ErrDecode, "unsupported addressing form (modrm 0x%02X) at 0x%08X", modrm, instr.Addr)
		}
		instr.Mode, instr.Disp, instr.Len = isa.AddressingMode_MemDisp, 0, 2

	case 0b01:
		if rm == 0b100 {
			return utils.MakeError(ErrDecode, "unsupported addressing form (modrm 0x%02X) at 0x%08X", modrm, instr.Addr)
		}
		disp, err := d.readU8(off + 2)
		if err != nil {
			return err
		}
		instr.Mode, instr.Disp, instr.Len = isa.AddressingMode_MemDisp, int32(int8(disp)), 3

	case 0b10:
		if rm == 0b100 {
			return utils.MakeError(ErrDecode, "unsupported addressing form (modrm 0x%02X) at 0x%08X", modrm, instr.Addr)
		}
		disp, err := d.readU32(off + 2)
		if err != nil {
			return err
		}
		instr.Mode, instr.Disp, instr.Len = isa.AddressingMode_MemDisp, int32(disp), 6
	}

	return nil
}

func (d *Decoder) readU8(off int) (byte, error) {
	if off >= len(d.code) {
		return 0, utils.MakeError(ErrDecode, "buffer ends mid-instruction at 0x%08X", d.base+uint64(off))
	}
	return d.code[off], nil
}

func (d *Decoder) readU32(off int) (uint32, error) {
	if off+4 > len(d.code) {
		return 0, utils.MakeError(ErrDecode, "buffer ends mid-instruction at 0x%08X", d.base+uint64(off))
	}
	return uint32(d.code[off]) |
		uint32(d.code[off+1])<<8 |
		uint32(d.code[off+2])<<16 |
		uint32(d.code[off+3])<<24, nil
}
