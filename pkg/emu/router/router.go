// Package router resolves call targets appearing in optimized IR either to
// translated internal blocks or to HLE registry entries, marshaling
// arguments across the boundary with explicit type checking.
package router

import (
	"errors"
	"strings"

	"github.com/nacholabs/nacho/pkg/emu/hle"
	"github.com/nacholabs/nacho/pkg/emu/ir"
	"github.com/nacholabs/nacho/pkg/emu/translate"
	"github.com/nacholabs/nacho/pkg/utils"
)

var (
	// ErrUnresolvedSymbol reports a call target that is neither an internal
	// block nor a registered HLE method
	ErrUnresolvedSymbol = errors.New("unresolved call target")
	// ErrMarshalMismatch reports arguments or results violating the target
	// signature. Never silently coerced; always fatal to the call.
	ErrMarshalMismatch = errors.New("marshal mismatch")
)

// Strictness selects how the execution engine reacts to unresolved symbols
type Strictness uint8

const (
	// Unresolved call targets fault the program
	Strictness_Strict Strictness = iota
	// Unresolved call targets yield a fault value and execution continues
	Strictness_Lenient
)

func (s Strictness) String() string {
	if s == Strictness_Lenient {
		return "lenient"
	}
	return "strict"
}

// ResolutionKind tags where a call target resolved to
type ResolutionKind uint8

const (
	// Call transfers control inside the execution engine, without
	// crossing the marshaling boundary
	Resolution_Internal ResolutionKind = iota
	// Call crosses into an HLE handler
	Resolution_HLE
)

// Resolution is the outcome of routing one call target
type Resolution struct {
	Kind   ResolutionKind
	Block  *ir.BasicBlock
	Method *hle.Method
}

// Router resolves call operands against translated code first and the HLE
// registry second. A target is never both.
type Router struct {
	translator *translate.Translator
	registry   *hle.Registry
	env        *hle.Env
}

func New(translator *translate.Translator, registry *hle.Registry, env *hle.Env) *Router {
	return &Router{translator: translator, registry: registry, env: env}
}

// Env returns the HLE environment calls execute against
func (r *Router) Env() *hle.Env {
	return r.env
}

// Route resolves a call operand. Label operands name internal code;
// symbol operands are looked up in the HLE registry.
func (r *Router) Route(target ir.Operand) (Resolution, error) {
	switch target.Kind {
	case ir.OperandKind_Label:
		block, err := r.translator.Block(target.Target)
		if err != nil {
			return Resolution{}, utils.MakeError(ErrUnresolvedSymbol, "0x%08X: %v", target.Target, err)
		}
		return Resolution{Kind: Resolution_Internal, Block: block}, nil

	case ir.OperandKind_Symbol:
		class, method, ok := splitSymbol(target.Symbol)
		if !ok {
			return Resolution{}, utils.MakeError(ErrUnresolvedSymbol, "malformed symbol %q", target.Symbol)
		}
		resolved, err := r.registry.ResolveName(class, method)
		if err != nil {
			return Resolution{}, utils.MakeError(ErrUnresolvedSymbol, "%s: %v", target.Symbol, err)
		}
		return Resolution{Kind: Resolution_HLE, Method: resolved}, nil
	}

	return Resolution{}, utils.MakeError(ErrUnresolvedSymbol, "call operand %v is not a target", target)
}

// splitSymbol splits "Class.method" at the last dot
func splitSymbol(symbol string) (class, method string, ok bool) {
	dot := strings.LastIndexByte(symbol, '.')
	if dot <= 0 || dot == len(symbol)-1 {
		return "", "", false
	}
	return symbol[:dot], symbol[dot+1:], true
}

// CallHLE marshals the caller's argument window against the method
// signature, invokes the handler and marshals the result back. On a
// marshaling failure the handler is never invoked, so the call has no side
// effect.
func (r *Router) CallHLE(method *hle.Method, window []hle.Value) (hle.Value, error) {
	args, err := marshalArgs(method, window)
	if err != nil {
		return hle.VoidValue, err
	}

	result, err := method.Invoke(r.env, args)
	if err != nil {
		return hle.VoidValue, err
	}

	if err := checkResult(method, result); err != nil {
		return hle.VoidValue, err
	}

	return result, nil
}

// marshalArgs validates the argument window against the signature. Widths
// and signedness must match exactly; extra window values beyond the
// parameter count are the caller's ABI surplus and are not passed through.
func marshalArgs(method *hle.Method, window []hle.Value) ([]hle.Value, error) {
	params := method.Sig.Params

	if len(window) < len(params) {
		return nil, utils.MakeError(ErrMarshalMismatch, "%v: %d arguments supplied, %d expected", method, len(window), len(params))
	}

	args := make([]hle.Value, len(params))
	for i, param := range params {
		if window[i].Type != param {
			return nil, utils.MakeError(ErrMarshalMismatch, "%v: argument %d is %v, expected %v", method, i, window[i].Type, param)
		}
		args[i] = window[i]
	}

	return args, nil
}

func checkResult(method *hle.Method, result hle.Value) error {
	if result.Type != method.Sig.Return {
		return utils.MakeError(ErrMarshalMismatch, "%v: handler returned %v", method, result.Type)
	}
	return nil
}
