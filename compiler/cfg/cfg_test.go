package cfg

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etchlang/etch/compiler/ir"
	"github.com/etchlang/etch/compiler/set"
)

func diamond() *ir.Func {
	f := ir.NewFunc("f", "x")

	b := f.AddBlock("entry")
	b.Add(&ir.Instruction{Op: ir.Jnz, In: ir.Ops(ir.Variable("x"), ir.Lbl("a"), ir.Lbl("b"))})

	b = f.AddBlock("a")
	b.Add(&ir.Instruction{Op: ir.Add, In: ir.Ops(ir.Variable("x"), ir.Int(1)), Out: ir.Variable("t")})
	b.Add(&ir.Instruction{Op: ir.Jmp, In: ir.Ops(ir.Lbl("join"))})

	b = f.AddBlock("b")
	b.Add(&ir.Instruction{Op: ir.Add, In: ir.Ops(ir.Variable("x"), ir.Int(2)), Out: ir.Variable("u")})
	b.Add(&ir.Instruction{Op: ir.Jmp, In: ir.Ops(ir.Lbl("join"))})

	b = f.AddBlock("join")
	b.Add(&ir.Instruction{Op: ir.Phi, In: ir.Ops(ir.Lbl("a"), ir.Variable("t"), ir.Lbl("b"), ir.Variable("u")), Out: ir.Variable("y")})
	b.Add(&ir.Instruction{Op: ir.Mstore, In: ir.Ops(ir.Int(0), ir.Variable("y"))})
	b.Add(&ir.Instruction{Op: ir.Stop})

	return f
}

func TestEdgesSymmetry(t *testing.T) {
	f := diamond()

	Build(context.Background(), f)

	require.Len(t, f.Blocks, 4) // no critical edges here

	for i, b := range f.Blocks {
		for _, s := range b.Succs {
			assert.Contains(t, f.Blocks[s].Preds, i, "block %v -> %v", b.Name, f.Blocks[s].Name)
		}

		for _, p := range b.Preds {
			assert.Contains(t, f.Blocks[p].Succs, i, "block %v <- %v", b.Name, f.Blocks[p].Name)
		}
	}
}

func TestPruneUnreachable(t *testing.T) {
	f := diamond()

	b := f.AddBlock("orphan")
	b.Add(&ir.Instruction{Op: ir.Jmp, In: ir.Ops(ir.Lbl("join"))})

	join, _ := f.BlockIndex("join")
	f.Blocks[join].Code[0].In = append(f.Blocks[join].Code[0].In, ir.Op1(ir.Lbl("orphan")), ir.Op1(ir.Variable("x")))

	Build(context.Background(), f)

	require.Len(t, f.Blocks, 4)

	_, ok := f.BlockIndex("orphan")
	assert.False(t, ok)

	join, _ = f.BlockIndex("join")
	phi := f.Blocks[join].Code[0]

	require.Equal(t, ir.Phi, phi.Op)
	assert.Len(t, phi.In, 4, "dead phi pair must be dropped")
}

func TestSplitCriticalEdge(t *testing.T) {
	f := ir.NewFunc("f", "x")

	b := f.AddBlock("entry")
	b.Add(&ir.Instruction{Op: ir.Jnz, In: ir.Ops(ir.Variable("x"), ir.Lbl("a"), ir.Lbl("join"))})

	b = f.AddBlock("a")
	b.Add(&ir.Instruction{Op: ir.Add, In: ir.Ops(ir.Variable("x"), ir.Int(1)), Out: ir.Variable("t")})
	b.Add(&ir.Instruction{Op: ir.Jmp, In: ir.Ops(ir.Lbl("join"))})

	b = f.AddBlock("join")
	b.Add(&ir.Instruction{Op: ir.Phi, In: ir.Ops(ir.Lbl("entry"), ir.Variable("x"), ir.Lbl("a"), ir.Variable("t")), Out: ir.Variable("y")})
	b.Add(&ir.Instruction{Op: ir.Mstore, In: ir.Ops(ir.Int(0), ir.Variable("y"))})
	b.Add(&ir.Instruction{Op: ir.Stop})

	Build(context.Background(), f)

	require.Len(t, f.Blocks, 4)

	mi, ok := f.BlockIndex("entry.join.edge")
	require.True(t, ok, "critical edge must be split")

	mid := f.Blocks[mi]
	require.Len(t, mid.Code, 1)
	assert.Equal(t, ir.Jmp, mid.Code[0].Op)
	assert.Len(t, mid.Preds, 1)
	assert.Len(t, mid.Succs, 1)

	ji, _ := f.BlockIndex("join")
	join := f.Blocks[ji]

	require.Len(t, join.Preds, 2)

	for _, p := range join.Preds {
		assert.Len(t, f.Blocks[p].Succs, 1, "join predecessors must be single-exit")
	}

	phi := join.Code[0]
	src, ok := phi.PhiSource(mid.Name)
	require.True(t, ok, "phi label must follow the split edge")
	assert.Equal(t, ir.Variable("x"), src.Value)

	ei, _ := f.BlockIndex("entry")
	assert.Equal(t, []string{"a", "entry.join.edge"}, f.Blocks[ei].Terminator().Targets())
}

func TestLiveness(t *testing.T) {
	f := diamond()
	ctx := context.Background()

	Build(ctx, f)
	Liveness(ctx, f)

	x := f.VarID("x")
	tv := f.VarID("t")
	y := f.VarID("y")

	ei, _ := f.BlockIndex("entry")
	ai, _ := f.BlockIndex("a")
	ji, _ := f.BlockIndex("join")

	assert.True(t, f.Blocks[ei].LiveIn.IsSet(x))
	assert.True(t, f.Blocks[ei].LiveOut.IsSet(x))

	// phi inputs are live at the predecessor edge only
	assert.True(t, f.Blocks[ai].LiveOut.IsSet(tv))
	assert.False(t, f.Blocks[ji].LiveIn.IsSet(tv))
	assert.False(t, f.Blocks[ji].LiveIn.IsSet(y))

	add := f.Blocks[ai].Code[0]
	assert.True(t, add.LiveAfter.IsSet(tv))
	assert.False(t, add.LiveAfter.IsSet(x))

	phi := f.Blocks[ji].Code[0]
	assert.True(t, phi.LiveAfter.IsSet(y))
}

// randomFunc builds a phi-free function with random forward jumps and
// conditional branches, the second branch arm may go backward and form
// a loop.
func randomFunc(rnd *rand.Rand, n int) *ir.Func {
	f := ir.NewFunc("f", "c")

	var defined []string

	for i := 0; i < n; i++ {
		b := f.AddBlock(fmt.Sprintf("b%d", i))

		v := fmt.Sprintf("v%d", i)
		b.Add(&ir.Instruction{Op: ir.Add, In: ir.Ops(ir.Variable("c"), ir.Int(uint64(i))), Out: ir.Variable(v)})
		defined = append(defined, v)

		use := defined[rnd.Intn(len(defined))]
		b.Add(&ir.Instruction{Op: ir.Mstore, In: ir.Ops(ir.Int(uint64(i*32)), ir.Variable(use))})

		switch {
		case i == n-1:
			b.Add(&ir.Instruction{Op: ir.Stop})
		case rnd.Intn(2) == 0:
			to := i + 1 + rnd.Intn(n-1-i)
			b.Add(&ir.Instruction{Op: ir.Jmp, In: ir.Ops(ir.Lbl(fmt.Sprintf("b%d", to)))})
		default:
			x := i + 1 + rnd.Intn(n-1-i)

			y := 1 + rnd.Intn(n-1)
			if y == x {
				y = x - 1
				if y == 0 {
					y = x + 1
				}
			}

			b.Add(&ir.Instruction{
				Op: ir.Jnz,
				In: ir.Ops(ir.Variable("c"), ir.Lbl(fmt.Sprintf("b%d", x)), ir.Lbl(fmt.Sprintf("b%d", y))),
			})
		}
	}

	return f
}

func TestLivenessFixedPoint(t *testing.T) {
	ctx := context.Background()

	for seed := int64(1); seed <= 16; seed++ {
		rnd := rand.New(rand.NewSource(seed))

		f := randomFunc(rnd, 8)

		Build(ctx, f)
		Liveness(ctx, f)

		// without phis the solution is exactly
		// out(b) = union of in(s) over successors
		for i, b := range f.Blocks {
			union := set.MakeBits[ir.VarID](f.Vars())

			for _, s := range b.Succs {
				union.Or(f.Blocks[s].LiveIn)

				assert.Contains(t, f.Blocks[s].Preds, i, "seed %d: edge %v -> %v", seed, b.Name, f.Blocks[s].Name)
			}

			assert.True(t, union.Equal(b.LiveOut), "seed %d block %v: out %v, successor union %v", seed, b.Name, b.LiveOut, union)
		}
	}
}

func TestOrderCoversAllBlocks(t *testing.T) {
	f := diamond()

	Build(context.Background(), f)

	order := ReversePostorder(f)

	require.Len(t, order, len(f.Blocks))
	assert.Equal(t, 0, order[0], "entry comes first")

	seen := map[int]bool{}
	for _, i := range order {
		assert.False(t, seen[i])
		seen[i] = true
	}
}
