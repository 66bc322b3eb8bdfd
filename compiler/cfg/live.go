package cfg

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/etchlang/etch/compiler/ir"
	"github.com/etchlang/etch/compiler/set"
)

// Liveness solves backward may-liveness over the CFG and caches a
// live-after set on every instruction.
//
// Phi inputs are live at the end of the predecessor they flow from,
// not at the top of the phi's own block.
func Liveness(ctx context.Context, f *ir.Func) {
	tr := tlog.SpanFromContext(ctx)

	order := ReversePostorder(f)

	for _, b := range f.Blocks {
		b.LiveIn = set.MakeBits[ir.VarID](f.Vars())
		b.LiveOut = set.MakeBits[ir.VarID](f.Vars())
	}

	maxIter := len(f.Blocks)*(f.Vars()+2) + 16

	for iter := 0; ; iter++ {
		if iter > maxIter {
			ir.Panicf(f.Name, nil, "liveness did not converge after %d iterations", iter)
		}

		changed := false

		for _, i := range order {
			b := f.Blocks[i]

			out := set.MakeBits[ir.VarID](f.Vars())

			for _, s := range b.Succs {
				sb := f.Blocks[s]

				out.Or(sb.LiveIn)

				for _, ins := range sb.Code {
					if ins.Op != ir.Phi {
						break
					}

					src, ok := ins.PhiSource(b.Name)
					if ok && src.Kind == ir.Var {
						out.Set(f.VarID(src.Name))
					}
				}
			}

			in := blockLiveIn(f, b, out)

			if !out.Equal(b.LiveOut) || !in.Equal(b.LiveIn) {
				changed = true
			}

			b.LiveOut = out
			b.LiveIn = in
		}

		if !changed {
			break
		}
	}

	for _, b := range f.Blocks {
		blockLiveIn(f, b, b.LiveOut) // final pass fills LiveAfter caches
	}

	if tr.If("dump_live") {
		for _, b := range f.Blocks {
			tr.Printw("liveness", "func", f.Name, "block", b.Name, "in", b.LiveIn, "out", b.LiveOut)
		}
	}
}

// blockLiveIn scans the block backward from the given live-out set,
// caching the live-after set on each instruction on the way.
func blockLiveIn(f *ir.Func, b *ir.Block, out set.Bits[ir.VarID]) set.Bits[ir.VarID] {
	live := out.Copy()

	for i := len(b.Code) - 1; i >= 0; i-- {
		ins := b.Code[i]

		ins.LiveAfter = live.Copy()

		if ins.Out.Kind == ir.Var {
			live.Clear(f.VarID(ins.Out.Name))
		}

		if ins.Op == ir.Phi {
			continue // inputs counted at predecessor edges
		}

		for _, op := range ins.StackOps() {
			if op.Kind == ir.Var {
				live.Set(f.VarID(op.Name))
			}
		}
	}

	return live
}
