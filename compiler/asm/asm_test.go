package asm

import (
	"context"
	"reflect"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/etchlang/etch/compiler/ir"
)

func lit(v uint64) ir.ConstExpr { return ir.ConstLit{Num: uint256.NewInt(v)} }

func ref(name string) ir.ConstExpr { return ir.ConstRef{Name: name, Symbol: true} }

func bin(op string, l, r ir.ConstExpr) ir.ConstExpr { return ir.ConstBin{Op: op, L: l, R: r} }

func TestConstChain(t *testing.T) {
	items := []Item{
		ConstDef{Name: "SLOT_SIZE", Expr: lit(32)},
		ConstDef{Name: "BASE", Expr: bin("mul", ref("SLOT_SIZE"), lit(128))},
		ConstDef{Name: "SLOT2", Expr: bin("mul", ref("SLOT_SIZE"), lit(2))},
		ConstDef{Name: "DATA_START", Expr: bin("add", ref("BASE"), ref("SLOT2"))},
		Op{Name: "STOP"},
	}

	res, err := Assemble(context.Background(), items, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(32), res.Consts["SLOT_SIZE"].Uint64())
	assert.Equal(t, uint64(4096), res.Consts["BASE"].Uint64())
	assert.Equal(t, uint64(64), res.Consts["SLOT2"].Uint64())
	assert.Equal(t, uint64(4160), res.Consts["DATA_START"].Uint64())
}

func TestConstEval(t *testing.T) {
	vals, err := Eval([]ir.ConstDef{
		{Name: "A", Expr: bin("add", bin("mul", lit(2), lit(3)), lit(4))},
		{Name: "B", Expr: bin("max", ref("A"), lit(7))},
		{Name: "C", Expr: bin("min", ref("A"), lit(7))},
		{Name: "D", Expr: bin("sub", lit(0), lit(1))},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), vals["A"].Uint64())
	assert.Equal(t, uint64(10), vals["B"].Uint64())
	assert.Equal(t, uint64(7), vals["C"].Uint64())
	assert.True(t, vals["D"].Eq(new(uint256.Int).SetAllOne()), "sub wraps modulo 2^256")
}

func TestConstDivZero(t *testing.T) {
	_, err := Eval([]ir.ConstDef{
		{Name: "X", Expr: bin("div", lit(1), lit(0))},
	}, nil)
	require.Error(t, err)

	var ce *ConstEvalError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "X", ce.Name)

	_, err = Eval([]ir.ConstDef{
		{Name: "Y", Expr: bin("mod", lit(1), lit(0))},
	}, nil)
	require.Error(t, err)
}

func TestConstUndefinedRef(t *testing.T) {
	_, err := Eval([]ir.ConstDef{
		{Name: "X", Expr: ref("NOPE")},
	}, nil)
	require.Error(t, err)

	var ce *ConstEvalError
	require.True(t, errors.As(err, &ce))
}

func TestLabelConst(t *testing.T) {
	// a constant defined from a label resolves after the pc pass and
	// is emitted at the fixed symbol width
	items := []Item{
		ConstDef{Name: "TARGET", Expr: ir.ConstRef{Name: "dest"}},
		PushOffset{Name: "TARGET"},
		Op{Name: "JUMP"},
		Label{Name: "dest"},
		Op{Name: "JUMPDEST"},
		Op{Name: "STOP"},
	}

	res, err := Assemble(context.Background(), items, nil, map[string]bool{"dest": true})
	require.NoError(t, err)

	// PUSH2 0x0004 JUMP JUMPDEST STOP
	assert.Equal(t, []byte{0x61, 0x00, 0x04, 0x56, 0x5B, 0x00}, res.Code)
	assert.Equal(t, 4, res.Symbols["dest"])
}

func TestLabelRoundTrip(t *testing.T) {
	items := []Item{
		Label{Name: "main"},
		Op{Name: "JUMPDEST"},
		Push{Num: uint256.NewInt(0)},
		PushLabel{Name: "main"},
		Op{Name: "JUMPI", Jump: 0},
		Op{Name: "STOP"},
	}

	res, err := Assemble(context.Background(), items, nil, nil)
	require.NoError(t, err)

	// JUMPDEST PUSH0 PUSH2 0x0000 JUMPI STOP
	assert.Equal(t, []byte{0x5B, 0x5F, 0x61, 0x00, 0x00, 0x57, 0x00}, res.Code)
	assert.Equal(t, 0, res.Symbols["main"])
	assert.Equal(t, "-", res.Map.JumpMap[5])
}

func TestPushWidths(t *testing.T) {
	items := []Item{
		Push{Num: uint256.NewInt(0)},
		Push{Num: uint256.NewInt(255)},
		Push{Num: uint256.NewInt(256)},
		Op{Name: "STOP"},
	}

	res, err := Assemble(context.Background(), items, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x5F, 0x60, 0xFF, 0x61, 0x01, 0x00, 0x00}, res.Code)
}

func TestDataSegment(t *testing.T) {
	items := []Item{
		PushOffset{Name: "tab", Offset: 8},
		Op{Name: "STOP"},
		Data{Name: "tab", Items: []DataItem{
			{Bytes: []byte{1, 2, 3, 4}},
			{Ref: "tab"},
		}},
	}

	res, err := Assemble(context.Background(), items, nil, nil)
	require.NoError(t, err)

	// PUSH2 tab+8 STOP, then 4 data bytes and a 2-byte self reference
	require.Len(t, res.Code, 10)
	assert.Equal(t, []byte{0x61, 0x00, 0x0C, 0x00}, res.Code[:4])
	assert.Equal(t, []byte{1, 2, 3, 4, 0x00, 0x04}, res.Code[4:])
	assert.Equal(t, 4, res.Symbols["tab"])
}

func TestOptimizeIdempotent(t *testing.T) {
	items := []Item{
		Label{Name: "main"},
		Op{Name: "JUMPDEST"},
		Push{Num: uint256.NewInt(1)},
		Op{Name: "POP"},
		Op{Name: "SWAP1"},
		Op{Name: "SWAP1"},
		Op{Name: "DUP1"},
		Op{Name: "POP"},
		Op{Name: "STOP"},
		Op{Name: "ADD"}, // unreachable
		PushLabel{Name: "main"},
		Op{Name: "JUMP"},
	}

	ctx := context.Background()

	once := Optimize(ctx, items, nil)
	twice := Optimize(ctx, append([]Item{}, once...), nil)

	assert.True(t, reflect.DeepEqual(once, twice), "optimizer output must be a fixed point")
	assert.Equal(t, []Item{Op{Name: "STOP"}}, once)
}

func TestJumpToNextElided(t *testing.T) {
	items := []Item{
		PushLabel{Name: "next"},
		Op{Name: "JUMP"},
		Label{Name: "next"},
		Op{Name: "JUMPDEST"},
		Op{Name: "STOP"},
	}

	out := Optimize(context.Background(), items, map[string]bool{"next": true})

	assert.Equal(t, []Item{
		Label{Name: "next"},
		Op{Name: "JUMPDEST"},
		Op{Name: "STOP"},
	}, out)
}

func TestCallJumpKept(t *testing.T) {
	// a classified call jump to the next label is a real transfer,
	// not a fallthrough
	items := []Item{
		PushLabel{Name: "fn"},
		Op{Name: "JUMP", Jump: 'i'},
		Label{Name: "fn"},
		Op{Name: "JUMPDEST"},
		Op{Name: "STOP"},
	}

	out := Optimize(context.Background(), items, nil)

	require.Len(t, out, 5)
	assert.Equal(t, PushLabel{Name: "fn"}, out[0])
}

func TestCollapseChains(t *testing.T) {
	items := []Item{
		PushLabel{Name: "hop"},
		Op{Name: "JUMP"},
		Label{Name: "other"},
		Op{Name: "JUMPDEST"},
		Op{Name: "STOP"},
		Label{Name: "hop"},
		Op{Name: "JUMPDEST"},
		PushLabel{Name: "final"},
		Op{Name: "JUMP"},
		Label{Name: "final"},
		Op{Name: "JUMPDEST"},
		Op{Name: "STOP"},
	}

	out := Optimize(context.Background(), items, map[string]bool{"other": true})

	for _, it := range out {
		if p, ok := it.(PushLabel); ok {
			assert.Equal(t, "final", p.Name, "references follow the chain to its end")
		}

		if l, ok := it.(Label); ok {
			assert.NotEqual(t, "hop", l.Name, "the hop block is gone")
		}
	}
}

func TestUnusedJumpdestRemoved(t *testing.T) {
	items := []Item{
		Label{Name: "main"},
		Op{Name: "JUMPDEST"},
		Op{Name: "STOP"},
	}

	out := Optimize(context.Background(), items, nil)
	assert.Equal(t, []Item{Op{Name: "STOP"}}, out)

	out = Optimize(context.Background(), items, map[string]bool{"main": true})
	require.Len(t, out, 3)
}

func TestRuntimeSegment(t *testing.T) {
	items := []Item{
		PushOffset{Name: "deployed"},
		Op{Name: "STOP"},
		Runtime{Name: "deployed", Items: []Item{
			Push{Num: uint256.NewInt(1)},
			Op{Name: "POP"},
			Op{Name: "STOP"},
		}},
	}

	res, err := Assemble(context.Background(), items, nil, nil)
	require.NoError(t, err)

	// the nested program is optimized independently: PUSH POP cancels
	assert.Equal(t, []byte{0x61, 0x00, 0x04, 0x00, 0x00}, res.Code)
	assert.Equal(t, 4, res.Symbols["deployed"])
}
