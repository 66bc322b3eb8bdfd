package cfg

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/etchlang/etch/compiler/ir"
)

// Build validates block structure, computes predecessor/successor
// edges and prunes unreachable blocks until fixed point.
func Build(ctx context.Context, f *ir.Func) {
	tr := tlog.SpanFromContext(ctx)

	validate(f)

	edges(f)

	for prune(f) {
		edges(f)
	}

	if splitCriticalEdges(f) {
		edges(f)
	}

	if tr.If("dump_cfg") {
		for i, b := range f.Blocks {
			tr.Printw("block", "func", f.Name, "i", i, "label", b.Name, "preds", b.Preds, "succs", b.Succs)
		}
	}
}

func validate(f *ir.Func) {
	if len(f.Blocks) == 0 {
		ir.Panicf(f.Name, nil, "function has no blocks")
	}

	for _, b := range f.Blocks {
		if len(b.Code) == 0 {
			ir.Panicf(f.Name, nil, "empty block %v", b.Name)
		}

		if b.Terminator() == nil {
			ir.Panicf(f.Name, b.Code[len(b.Code)-1], "block %v has no terminator", b.Name)
		}

		code := false

		for _, ins := range b.Code {
			ins.Validate(f.Name)

			if ins.Op == ir.Phi && code {
				ir.Panicf(f.Name, ins, "phi after non-phi in block %v", b.Name)
			}

			if ins.Op != ir.Phi {
				code = true
			}
		}

		for _, ins := range b.Code[:len(b.Code)-1] {
			if ins.Op.IsTerminator() {
				ir.Panicf(f.Name, ins, "terminator in the middle of block %v", b.Name)
			}
		}
	}
}

func edges(f *ir.Func) {
	for _, b := range f.Blocks {
		b.Preds = b.Preds[:0]
		b.Succs = b.Succs[:0]
	}

	for i, b := range f.Blocks {
		for _, t := range b.Terminator().Targets() {
			j, ok := f.BlockIndex(t)
			if !ok {
				ir.Panicf(f.Name, b.Terminator(), "jump to unknown label %v", t)
			}

			addEdge(f, i, j)
		}
	}
}

func addEdge(f *ir.Func, from, to int) {
	for _, x := range f.Blocks[from].Succs {
		if x == to {
			return
		}
	}

	f.Blocks[from].Succs = append(f.Blocks[from].Succs, to)
	f.Blocks[to].Preds = append(f.Blocks[to].Preds, from)
}

// prune removes blocks with no predecessors except the entry block.
// Returns true if anything was removed.
func prune(f *ir.Func) bool {
	keep := f.Blocks[:0:0]
	dead := map[string]struct{}{}

	for i, b := range f.Blocks {
		if i == 0 || len(b.Preds) > 0 {
			keep = append(keep, b)
			continue
		}

		dead[b.Name] = struct{}{}
	}

	if len(dead) == 0 {
		return false
	}

	f.Blocks = keep
	f.Reindex()

	for _, b := range f.Blocks {
		for _, ins := range b.Code {
			if ins.Op != ir.Phi {
				continue
			}

			in := ins.In[:0:0]

			for i := 0; i+1 < len(ins.In); i += 2 {
				if _, ok := dead[ins.In[i].Name]; ok {
					continue
				}

				in = append(in, ins.In[i], ins.In[i+1])
			}

			ins.In = in
		}
	}

	return true
}

// splitCriticalEdges inserts a forwarding block on every edge going
// from a multi-successor block into a multi-predecessor block, so
// that the scheduler can reconcile join-point stack layouts on a
// per-predecessor basis.
func splitCriticalEdges(f *ir.Func) bool {
	split := false

	for i := range f.Blocks {
		b := f.Blocks[i]

		if len(b.Succs) < 2 {
			continue
		}

		term := b.Terminator()

		for oi := range term.In {
			op := &term.In[oi]

			if op.Kind != ir.Label || (term.Op == ir.Djmp && oi == 0) {
				continue
			}

			ti, ok := f.BlockIndex(op.Name)
			if !ok || len(f.Blocks[ti].Preds) < 2 {
				continue
			}

			mid := f.AddBlock(b.Name + "." + op.Name + ".edge")
			mid.Add(&ir.Instruction{
				Op:    ir.Jmp,
				In:    []ir.Operand{ir.Op1(ir.Lbl(op.Name))},
				Debug: term.Debug,
			})

			for _, ins := range f.Blocks[ti].Code {
				if ins.Op != ir.Phi {
					break
				}

				for pi := 0; pi < len(ins.In); pi += 2 {
					if ins.In[pi].Name == b.Name {
						ins.In[pi] = ir.Op1(ir.Lbl(mid.Name))
					}
				}
			}

			op.Name = mid.Name
			split = true
		}
	}

	return split
}

// Postorder returns block indices in DFS post order starting from entry.
func Postorder(f *ir.Func) []int {
	seen := make([]bool, len(f.Blocks))
	order := make([]int, 0, len(f.Blocks))

	var walk func(i int)
	walk = func(i int) {
		seen[i] = true

		for _, s := range f.Blocks[i].Succs {
			if !seen[s] {
				walk(s)
			}
		}

		order = append(order, i)
	}

	walk(0)

	return order
}

// ReversePostorder returns block indices in reverse post order, entry first.
func ReversePostorder(f *ir.Func) []int {
	po := Postorder(f)

	for i, j := 0, len(po)-1; i < j; i, j = i+1, j-1 {
		po[i], po[j] = po[j], po[i]
	}

	return po
}
