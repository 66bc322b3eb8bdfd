package mem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etchlang/etch/compiler/ir"
)

func TestOverlap(t *testing.T) {
	assert.False(t, Segment(Memory, 0, 32).MayOverlap(Segment(Memory, 32, 32)))
	assert.True(t, Segment(Memory, 16, 32).MayOverlap(Segment(Memory, 0, 32)))
	assert.False(t, Segment(Memory, 0, 32).MayOverlap(Segment(Storage, 0, 32)))

	unknown := UnknownSegment(Memory, nil)
	assert.True(t, unknown.MayOverlap(Segment(Memory, 1000, 32)))

	assert.False(t, Empty().MayOverlap(unknown))
	assert.False(t, Empty().MayOverlap(Undefined()))
	assert.True(t, Undefined().MayOverlap(Segment(Storage, 0, 1)))

	a := &Alloc{Func: "f", Size: 64}
	b := &Alloc{Func: "f", Size: 64}

	assert.False(t, Abstract(Memory, a, i64(0), i64(32)).MayOverlap(Abstract(Memory, b, i64(0), i64(32))))
	assert.True(t, Abstract(Memory, a, i64(0), i64(32)).MayOverlap(Abstract(Memory, a, i64(16), i64(32))))
	assert.False(t, Abstract(Memory, a, i64(0), i64(32)).MayOverlap(Abstract(Memory, a, i64(32), i64(32))))

	// unknown offset within the same base
	assert.True(t, Abstract(Memory, a, nil, i64(32)).MayOverlap(Abstract(Memory, a, i64(0), i64(32))))
}

func TestContains(t *testing.T) {
	assert.True(t, Segment(Memory, 0, 64).CompletelyContains(Segment(Memory, 32, 32)))
	assert.False(t, Segment(Memory, 0, 64).CompletelyContains(Segment(Memory, 32, 64)))
	assert.False(t, Segment(Memory, 0, 64).CompletelyContains(UnknownSegment(Memory, i64(32))))

	assert.True(t, Segment(Memory, 0, 1).CompletelyContains(Empty()))
	assert.True(t, Undefined().CompletelyContains(Segment(Storage, 0, 32)))
	assert.False(t, Empty().CompletelyContains(Segment(Memory, 0, 1)))
	assert.False(t, Segment(Memory, 0, 64).CompletelyContains(Undefined()))
}

func alloca(out string, size, off, id int64) *ir.Instruction {
	return &ir.Instruction{
		Op:  ir.Alloca,
		In:  ir.Ops(ir.Int(uint64(size)), ir.Int(uint64(off)), ir.Int(uint64(id))),
		Out: ir.Variable(out),
	}
}

func TestPointerTargets(t *testing.T) {
	f := ir.NewFunc("f")

	b := f.AddBlock("entry")
	b.Add(alloca("p", 64, 0, 1))
	b.Add(&ir.Instruction{Op: ir.Gep, In: ir.Ops(ir.Variable("p"), ir.Int(32)), Out: ir.Variable("q")})
	b.Add(&ir.Instruction{Op: ir.Assign, In: ir.Ops(ir.Variable("q")), Out: ir.Variable("r")})
	b.Add(&ir.Instruction{Op: ir.Stop})

	c := &ir.Context{Funcs: []*ir.Func{f}}

	a := Analyze(context.Background(), c)

	ps := a.Ptrs("f", "p")
	require.Len(t, ps, 1)
	assert.Equal(t, int64(0), *ps[0].Off)
	assert.Equal(t, int64(64), ps[0].Base.Size)

	qs := a.Ptrs("f", "q")
	require.Len(t, qs, 1)
	assert.Equal(t, int64(32), *qs[0].Off)
	assert.Same(t, ps[0].Base, qs[0].Base)

	rs := a.Ptrs("f", "r")
	require.Len(t, rs, 1)
	assert.Same(t, ps[0].Base, rs[0].Base)
}

func TestSharedParamAlloc(t *testing.T) {
	caller := ir.NewFunc("caller")

	b := caller.AddBlock("entry")
	b.Add(&ir.Instruction{
		Op:  ir.Calloca,
		In:  ir.Ops(ir.Int(32), ir.Int(0), ir.Int(7)),
		Out: ir.Variable("arg"),
	})
	b.Add(&ir.Instruction{Op: ir.Stop})

	callee := ir.NewFunc("callee")

	b = callee.AddBlock("entry")
	b.Add(&ir.Instruction{
		Op:  ir.Palloca,
		In:  ir.Ops(ir.Int(32), ir.Int(0), ir.Int(7)),
		Out: ir.Variable("param"),
	})
	b.Add(&ir.Instruction{Op: ir.Stop})

	c := &ir.Context{Funcs: []*ir.Func{caller, callee}}

	a := Analyze(context.Background(), c)

	as := a.Ptrs("caller", "arg")
	bs := a.Ptrs("callee", "param")

	require.Len(t, as, 1)
	require.Len(t, bs, 1)
	assert.Same(t, as[0].Base, bs[0].Base, "same id shares the allocation across functions")
}

func TestDeadStoreElimination(t *testing.T) {
	f := ir.NewFunc("f")

	b := f.AddBlock("entry")
	b.Add(alloca("p", 32, 0, 1))
	b.Add(&ir.Instruction{Op: ir.Mstore, In: ir.Ops(ir.Variable("p"), ir.Int(1))})
	b.Add(&ir.Instruction{Op: ir.Mstore, In: ir.Ops(ir.Variable("p"), ir.Int(2))})
	b.Add(&ir.Instruction{Op: ir.Mload, In: ir.Ops(ir.Variable("p")), Out: ir.Variable("v")})
	b.Add(&ir.Instruction{Op: ir.Mstore, In: ir.Ops(ir.Int(1024), ir.Variable("v"))})
	b.Add(&ir.Instruction{Op: ir.Stop})

	c := &ir.Context{Funcs: []*ir.Func{f}}
	ctx := context.Background()

	a := Analyze(ctx, c)

	n := EliminateDeadStores(ctx, f, a)

	assert.Equal(t, 1, n)
	require.Len(t, f.Blocks[0].Code, 5)
	assert.Equal(t, "2", f.Blocks[0].Code[1].In[1].Num.Dec(), "the overwritten store goes, the observed one stays")
}

func TestAddressOperandResolution(t *testing.T) {
	f := ir.NewFunc("f")

	b := f.AddBlock("entry")
	b.Add(alloca("p", 32, 0, 1))
	b.Add(&ir.Instruction{Op: ir.Mstore, In: ir.Ops(ir.Variable("p"), ir.Int(1))})
	b.Add(&ir.Instruction{Op: ir.Stop})

	c := &ir.Context{Funcs: []*ir.Func{f}}

	a := Analyze(context.Background(), c)

	store := f.Blocks[0].Code[1]
	require.True(t, store.In[0].AddrAccess, "the analysis marks dereferenced operands")

	assert.True(t, a.Writes(f, store).Fixed())

	// the same variable used as a plain word does not resolve
	plain := &ir.Instruction{Op: ir.Mstore, In: []ir.Operand{ir.Op1(ir.Variable("p")), ir.Op1(ir.Int(1))}}
	assert.False(t, a.Writes(f, plain).Fixed())

	addr := &ir.Instruction{Op: ir.Mstore, In: []ir.Operand{ir.Addr(ir.Variable("p")), ir.Op1(ir.Int(1))}}
	assert.True(t, a.Writes(f, addr).Fixed())
}

func TestStorageStoreKept(t *testing.T) {
	f := ir.NewFunc("f")

	b := f.AddBlock("entry")
	b.Add(&ir.Instruction{Op: ir.Sstore, In: ir.Ops(ir.Int(5), ir.Int(1))})
	b.Add(&ir.Instruction{Op: ir.Sstore, In: ir.Ops(ir.Int(5), ir.Int(2))})
	b.Add(&ir.Instruction{Op: ir.Stop})

	c := &ir.Context{Funcs: []*ir.Func{f}}
	ctx := context.Background()

	a := Analyze(ctx, c)

	n := EliminateDeadStores(ctx, f, a)
	assert.Equal(t, 0, n, "storage writes outlive the frame")
}

func TestReadKeepsStore(t *testing.T) {
	f := ir.NewFunc("f")

	b := f.AddBlock("entry")
	b.Add(alloca("p", 32, 0, 1))
	b.Add(&ir.Instruction{Op: ir.Mstore, In: ir.Ops(ir.Variable("p"), ir.Int(1))})
	b.Add(&ir.Instruction{Op: ir.Mload, In: ir.Ops(ir.Variable("p")), Out: ir.Variable("v")})
	b.Add(&ir.Instruction{Op: ir.Mstore, In: ir.Ops(ir.Variable("p"), ir.Variable("v"))})
	b.Add(&ir.Instruction{Op: ir.Stop})

	c := &ir.Context{Funcs: []*ir.Func{f}}
	ctx := context.Background()

	a := Analyze(ctx, c)

	n := EliminateDeadStores(ctx, f, a)

	assert.Equal(t, 0, n, "a store with an intervening read is not dead")
}
