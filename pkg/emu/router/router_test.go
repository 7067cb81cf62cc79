package router

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacholabs/nacho/pkg/emu/hle"
	"github.com/nacholabs/nacho/pkg/emu/image"
	"github.com/nacholabs/nacho/pkg/emu/ir"
	"github.com/nacholabs/nacho/pkg/emu/lifter"
	"github.com/nacholabs/nacho/pkg/emu/translate"
)

const base = uint64(0x1000)

func testRouter(t *testing.T, register func(reg *hle.Registry)) *Router {
	t.Helper()

	img := &image.Image{
		Entry:    base,
		CodeBase: base,
		Code: []byte{
			0xB8, 0x05, 0x00, 0x00, 0x00, // MOVRI r0, 5
			0xC3, // RET
		},
	}

	reg := hle.NewRegistry()
	if register != nil {
		register(reg)
	}
	reg.Freeze()

	env := hle.NewEnv(slog.Default(), nil, 4, 4)
	return New(translate.New(img, lifter.RecoveryPolicy_AbortBlock), reg, env)
}

func TestRouteLabelToInternalBlock(t *testing.T) {
	rt := testRouter(t, nil)

	resolution, err := rt.Route(ir.Label(base))
	require.NoError(t, err)

	assert.Equal(t, Resolution_Internal, resolution.Kind)
	require.NotNil(t, resolution.Block)
	assert.Equal(t, base, resolution.Block.Entry)
	assert.Nil(t, resolution.Method)
}

func TestRouteLabelOutsideCode(t *testing.T) {
	rt := testRouter(t, nil)

	_, err := rt.Route(ir.Label(0xDEAD))
	assert.ErrorIs(t, err, ErrUnresolvedSymbol)
}

func TestRouteSymbolToHLE(t *testing.T) {
	rt := testRouter(t, func(reg *hle.Registry) {
		require.NoError(t, reg.Register("Activity", "finish", hle.Sig(hle.Void), func(env *hle.Env, args []hle.Value) (hle.Value, error) {
			return hle.VoidValue, nil
		}))
	})

	resolution, err := rt.Route(ir.Sym("Activity.finish"))
	require.NoError(t, err)

	assert.Equal(t, Resolution_HLE, resolution.Kind)
	require.NotNil(t, resolution.Method)
	assert.Equal(t, "finish", resolution.Method.Name)
	assert.Nil(t, resolution.Block)
}

func TestRouteUnresolvedSymbol(t *testing.T) {
	rt := testRouter(t, nil)

	tests := []struct {
		name   string
		symbol string
	}{
		{name: "unregistered", symbol: "Nope.nothing"},
		{name: "no class separator", symbol: "finish"},
		{name: "empty class", symbol: ".finish"},
		{name: "empty method", symbol: "Activity."},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := rt.Route(ir.Sym(test.symbol))
			assert.ErrorIs(t, err, ErrUnresolvedSymbol)
		})
	}
}

func TestRouteNonTargetOperand(t *testing.T) {
	rt := testRouter(t, nil)

	_, err := rt.Route(ir.Reg(ir.R0))
	assert.ErrorIs(t, err, ErrUnresolvedSymbol)
}

func TestSplitSymbolAtLastDot(t *testing.T) {
	class, method, ok := splitSymbol("android.view.Canvas.drawPixel")
	require.True(t, ok)
	assert.Equal(t, "android.view.Canvas", class)
	assert.Equal(t, "drawPixel", method)
}

func TestCallHLEMarshalsArguments(t *testing.T) {
	var got []hle.Value

	rt := testRouter(t, func(reg *hle.Registry) {
		require.NoError(t, reg.Register("Canvas", "drawPixel", hle.Sig(hle.Void, hle.TypeU32, hle.TypeU32),
			func(env *hle.Env, args []hle.Value) (hle.Value, error) {
				got = args
				return hle.VoidValue, nil
			}))
	})

	method, err := rt.Route(ir.Sym("Canvas.drawPixel"))
	require.NoError(t, err)

	// The window carries the full register file; surplus values beyond the
	// parameter count stay behind
	window := []hle.Value{hle.U32(3), hle.U32(4), hle.U32(999), hle.U32(999)}
	result, err := rt.CallHLE(method.Method, window)
	require.NoError(t, err)

	assert.True(t, result.Type.IsVoid())
	assert.Equal(t, []hle.Value{hle.U32(3), hle.U32(4)}, got)
}

func TestCallHLEReturnsResult(t *testing.T) {
	rt := testRouter(t, func(reg *hle.Registry) {
		require.NoError(t, reg.Register("Intent", "poll", hle.Sig(hle.TypeU32),
			func(env *hle.Env, args []hle.Value) (hle.Value, error) {
				return hle.U32(7), nil
			}))
	})

	method, err := rt.Route(ir.Sym("Intent.poll"))
	require.NoError(t, err)

	result, err := rt.CallHLE(method.Method, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), result.U32())
}

// TestCallHLEMarshalMismatch tests that mismatched arguments fail the call
// before the handler runs: a failed call has no side effect
func TestCallHLEMarshalMismatch(t *testing.T) {
	invoked := false

	rt := testRouter(t, func(reg *hle.Registry) {
		require.NoError(t, reg.Register("Canvas", "fillColor", hle.Sig(hle.Void, hle.TypeU32),
			func(env *hle.Env, args []hle.Value) (hle.Value, error) {
				invoked = true
				return hle.VoidValue, nil
			}))
	})

	method, err := rt.Route(ir.Sym("Canvas.fillColor"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		window []hle.Value
	}{
		{name: "too few arguments", window: nil},
		{name: "signedness mismatch", window: []hle.Value{hle.I32(-1)}},
		{
			name:   "width mismatch",
			window: []hle.Value{{Type: hle.TypeU64, Bits: 1}},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := rt.CallHLE(method.Method, test.window)
			assert.ErrorIs(t, err, ErrMarshalMismatch)
			assert.False(t, invoked, "handler must not run on a marshal failure")
		})
	}
}

// TestCallHLEResultMismatch tests that a handler returning a value outside
// its declared signature is a marshal error, never a silent coercion
func TestCallHLEResultMismatch(t *testing.T) {
	rt := testRouter(t, func(reg *hle.Registry) {
		require.NoError(t, reg.Register("Activity", "finish", hle.Sig(hle.Void),
			func(env *hle.Env, args []hle.Value) (hle.Value, error) {
				return hle.U32(1), nil
			}))
	})

	method, err := rt.Route(ir.Sym("Activity.finish"))
	require.NoError(t, err)

	_, err = rt.CallHLE(method.Method, nil)
	assert.ErrorIs(t, err, ErrMarshalMismatch)
}
