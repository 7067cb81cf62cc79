// Package hle impersonates the guest platform's framework surface. Calls
// crossing the boundary resolve against a registry of class and method
// descriptors and marshal their arguments with explicit width and signedness
// checks; nothing is coerced implicitly.
package hle

import (
	"fmt"
	"strings"

	"github.com/nacholabs/nacho/pkg/emu/ir"
)

// ValueType describes one marshaled value crossing the HLE boundary
type ValueType struct {
	Width  ir.Width
	Signed bool
}

// Void is the type of an absent return value
var Void = ValueType{}

var (
	TypeU32 = ValueType{Width: ir.Width32}
	TypeI32 = ValueType{Width: ir.Width32, Signed: true}
	TypeU64 = ValueType{Width: ir.Width64}
)

func (t ValueType) IsVoid() bool {
	return t.Width == 0
}

func (t ValueType) String() string {
	if t.IsVoid() {
		return "void"
	}
	if t.Signed {
		return fmt.Sprintf("i%d", t.Width)
	}
	return fmt.Sprintf("u%d", t.Width)
}

// Value is one marshaled value: a type plus its raw bits
type Value struct {
	Type ValueType
	Bits uint64
}

// VoidValue is returned by handlers whose signature returns void
var VoidValue = Value{}

func U32(v uint32) Value {
	return Value{Type: TypeU32, Bits: uint64(v)}
}

func I32(v int32) Value {
	return Value{Type: TypeI32, Bits: uint64(uint32(v))}
}

// U32Value reads the value as an unsigned 32-bit integer
func (v Value) U32() uint32 {
	return uint32(v.Bits)
}

func (v Value) String() string {
	if v.Type.IsVoid() {
		return "void"
	}
	return fmt.Sprintf("%v(%d)", v.Type, v.Bits)
}

// Signature declares the parameter and return types of a registered method
type Signature struct {
	Params []ValueType
	Return ValueType
}

// Sig builds a signature
func Sig(ret ValueType, params ...ValueType) Signature {
	return Signature{Params: params, Return: ret}
}

func (s Signature) String() string {
	var builder strings.Builder

	builder.WriteByte('(')
	for i, param := range s.Params {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(param.String())
	}
	builder.WriteString(") -> ")
	builder.WriteString(s.Return.String())

	return builder.String()
}
