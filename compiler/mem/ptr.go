package mem

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/etchlang/etch/compiler/ir"
)

type (
	// Analysis tracks, per variable, the set of possible Ptrs it may
	// denote. Allocations created by palloca are shared with the
	// caller-side calloca of the same id, so cross-function
	// parameter memory keeps its identity where possible.
	Analysis struct {
		shared map[int64]*Alloc // palloca/calloca id -> allocation

		funcs map[string]*funcPtrs
	}

	funcPtrs struct {
		f *ir.Func

		ptrs   map[string][]Ptr
		allocs map[*ir.Instruction]*Alloc
	}
)

// maxPtrOffsets bounds offset fan-out per base before the offset
// collapses to unknown. Keeps gep loops converging.
const maxPtrOffsets = 4

func Analyze(ctx context.Context, c *ir.Context) *Analysis {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "mem: pointer analysis", "unit", c.Name)
	defer tr.Finish()

	a := &Analysis{
		shared: map[int64]*Alloc{},
		funcs:  map[string]*funcPtrs{},
	}

	markAddrOperands(c)

	for _, f := range c.Funcs {
		a.analyzeFunc(ctx, f)
	}

	return a
}

func (a *Analysis) analyzeFunc(ctx context.Context, f *ir.Func) {
	tr := tlog.SpanFromContext(ctx)

	fp := &funcPtrs{
		f:      f,
		ptrs:   map[string][]Ptr{},
		allocs: map[*ir.Instruction]*Alloc{},
	}

	a.funcs[f.Name] = fp

	work := make([]int, len(f.Blocks))
	queued := make([]bool, len(f.Blocks))

	for i := range f.Blocks {
		work[i] = i
		queued[i] = true
	}

	for len(work) != 0 {
		i := work[0]
		work = work[1:]
		queued[i] = false

		if !fp.transferBlock(a, f.Blocks[i]) {
			continue
		}

		for _, s := range f.Blocks[i].Succs {
			if !queued[s] {
				work = append(work, s)
				queued[s] = true
			}
		}
	}

	if tr.If("dump_ptrs") {
		for v, ptrs := range fp.ptrs {
			for _, p := range ptrs {
				tr.Printw("ptr", "func", f.Name, "var", v, "alloc", p.Base.ID, "off", p.Off)
			}
		}
	}
}

// transferBlock applies every instruction's transfer function once,
// reporting whether any variable's Ptr set grew.
func (fp *funcPtrs) transferBlock(a *Analysis, b *ir.Block) (changed bool) {
	for _, ins := range b.Code {
		if ins.Out.Kind != ir.Var {
			continue
		}

		var out []Ptr

		switch ins.Op {
		case ir.Alloca:
			out = []Ptr{{Base: fp.freshAlloc(ins), Off: i64(0)}}
		case ir.Palloca, ir.Calloca:
			out = []Ptr{{Base: a.sharedAlloc(fp, ins), Off: i64(0)}}
		case ir.Gep:
			base := ins.In[0]
			if base.Kind != ir.Var {
				break
			}

			var add *int64
			if off := ins.In[1]; off.Kind == ir.Lit && off.Num.IsUint64() {
				add = i64(int64(off.Num.Uint64()))
			}

			for _, p := range fp.ptrs[base.Name] {
				q := Ptr{Base: p.Base}

				if p.Off != nil && add != nil {
					q.Off = i64(*p.Off + *add)
				}

				out = append(out, q)
			}
		case ir.Assign:
			if v := ins.In[0]; v.Kind == ir.Var {
				out = fp.ptrs[v.Name]
			}
		case ir.Phi:
			for _, op := range ins.StackOps() {
				if op.Kind == ir.Var {
					out = merge(out, fp.ptrs[op.Name])
				}
			}
		default:
			continue
		}

		if len(out) == 0 {
			continue
		}

		old := fp.ptrs[ins.Out.Name]

		n := merge(merge(nil, old), out)
		if !ptrsEqual(n, old) {
			fp.ptrs[ins.Out.Name] = n
			changed = true
		}
	}

	return changed
}

func (fp *funcPtrs) freshAlloc(ins *ir.Instruction) *Alloc {
	if al, ok := fp.allocs[ins]; ok {
		return al
	}

	al := &Alloc{
		Func: fp.f.Name,
		ID:   litOr(ins.In[2], -1),
		Size: litOr(ins.In[0], 0),
	}

	fp.allocs[ins] = al

	return al
}

func (a *Analysis) sharedAlloc(fp *funcPtrs, ins *ir.Instruction) *Alloc {
	id := litOr(ins.In[2], -1)

	if al, ok := a.shared[id]; ok {
		fp.allocs[ins] = al
		return al
	}

	al := &Alloc{
		Func: fp.f.Name,
		ID:   id,
		Size: litOr(ins.In[0], 0),
	}

	a.shared[id] = al
	fp.allocs[ins] = al

	return al
}

// Ptrs returns the possible targets of a variable, nil if unknown.
func (a *Analysis) Ptrs(fn, name string) []Ptr {
	fp, ok := a.funcs[fn]
	if !ok {
		return nil
	}

	return fp.ptrs[name]
}

func merge(a, b []Ptr) []Ptr {
	r := a

next:
	for _, p := range b {
		for i, q := range r {
			if p.Base != q.Base {
				continue
			}

			if eqOff(p.Off, q.Off) {
				continue next
			}

			if q.Off == nil {
				continue next
			}

			if p.Off == nil {
				r[i].Off = nil
				continue next
			}
		}

		r = append(r, p)
	}

	// collapse offset fan-out per base
	counts := map[*Alloc]int{}
	for _, p := range r {
		counts[p.Base]++
	}

	for base, n := range counts {
		if n <= maxPtrOffsets {
			continue
		}

		keep := r[:0:0]
		seen := false

		for _, p := range r {
			if p.Base != base {
				keep = append(keep, p)
				continue
			}

			if !seen {
				keep = append(keep, Ptr{Base: base})
				seen = true
			}
		}

		r = keep
	}

	return r
}

func ptrsEqual(a, b []Ptr) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i].Base != b[i].Base || !eqOff(a[i].Off, b[i].Off) {
			return false
		}
	}

	return true
}

func eqOff(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

func litOr(op ir.Operand, def int64) int64 {
	if op.Kind == ir.Lit && op.Num.IsUint64() {
		return int64(op.Num.Uint64())
	}

	return def
}

func i64(v int64) *int64 { return &v }
