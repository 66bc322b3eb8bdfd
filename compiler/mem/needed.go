package mem

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/etchlang/etch/compiler/ir"
)

// maxTracked bounds the tracked range set. Dropping ranges is always
// safe, it only keeps stores alive.
const maxTracked = 64

type (
	// Needed is the backward dataflow over write ranges: at every
	// point it knows which ranges will be overwritten again before
	// any read observes them.
	Needed struct {
		f *ir.Func
		a *Analysis

		out [][]Location // tracked set at each block's end
	}
)

func NeededMemory(ctx context.Context, f *ir.Func, a *Analysis) *Needed {
	n := &Needed{
		f:   f,
		a:   a,
		out: make([][]Location, len(f.Blocks)),
	}

	before := make([][]Location, len(f.Blocks))

	maxIter := len(f.Blocks)*maxTracked + 16

	for iter := 0; ; iter++ {
		if iter > maxIter {
			ir.Panicf(f.Name, nil, "needed-memory analysis did not converge after %d iterations", iter)
		}

		changed := false

		for i := len(f.Blocks) - 1; i >= 0; i-- {
			b := f.Blocks[i]

			var out []Location

			for _, s := range b.Succs {
				out = unionRanges(out, before[s])
			}

			in := n.walk(b, out, nil)

			if !locsEqual(out, n.out[i]) || !locsEqual(in, before[i]) {
				changed = true
			}

			n.out[i] = out
			before[i] = in
		}

		if !changed {
			break
		}
	}

	return n
}

// walk applies the block's instructions backward to the tracked set.
// dead, if given, is called for stores fully covered by a later write
// with no intervening overlapping read.
func (n *Needed) walk(b *ir.Block, tracked []Location, dead func(ins *ir.Instruction)) []Location {
	t := append([]Location{}, tracked...)

	for i := len(b.Code) - 1; i >= 0; i-- {
		ins := b.Code[i]

		w := n.a.Writes(n.f, ins)
		r := n.a.Reads(n.f, ins)

		if !w.IsEmpty() && w.Fixed() {
			if dead != nil && !w.Volatile() && isPlainStore(ins.Op) && covered(t, w) {
				dead(ins)
			}

			t = addRange(t, w)
		}

		switch {
		case r.IsEmpty():
		case !r.Fixed():
			// anything could be needed now
			t = t[:0]
		default:
			t = carve(t, r)
		}
	}

	return t
}

// EliminateDeadStores removes stores whose written range is provably
// overwritten before any read. Returns the number of removed stores.
func EliminateDeadStores(ctx context.Context, f *ir.Func, a *Analysis) int {
	tr := tlog.SpanFromContext(ctx)

	n := NeededMemory(ctx, f, a)

	removed := 0

	for i, b := range f.Blocks {
		deadSet := map[*ir.Instruction]struct{}{}

		n.walk(b, n.out[i], func(ins *ir.Instruction) {
			deadSet[ins] = struct{}{}
		})

		if len(deadSet) == 0 {
			continue
		}

		code := b.Code[:0:0]

		for _, ins := range b.Code {
			if _, ok := deadSet[ins]; ok {
				tr.Printw("dead store", "func", f.Name, "block", b.Name, "ins", ins)
				removed++
				continue
			}

			code = append(code, ins)
		}

		b.Code = code
	}

	return removed
}

func isPlainStore(op ir.Op) bool {
	return op == ir.Mstore || op == ir.Sstore || op == ir.Tstore
}

// covered reports whether some tracked range completely contains w.
func covered(t []Location, w Location) bool {
	for _, x := range t {
		if x.CompletelyContains(w) {
			return true
		}
	}

	return false
}

func addRange(t []Location, w Location) []Location {
	for _, x := range t {
		if x.CompletelyContains(w) {
			return t
		}
	}

	if len(t) >= maxTracked {
		return t
	}

	return append(t, w)
}

// carve removes the portion of every tracked range the read may
// observe. Ranges it cannot split precisely are dropped whole.
func carve(t []Location, r Location) []Location {
	keep := t[:0:0]

	for _, x := range t {
		if !x.MayOverlap(r) {
			keep = append(keep, x)
			continue
		}

		if !sameRegion(x, r) {
			// overlap is possible but the shapes do not line up,
			// drop the range
			continue
		}

		// same region, both fixed: keep the sub-intervals the read
		// does not cover
		xo, xs := *x.off, *x.size
		ro, rs := *r.off, *r.size

		if ro > xo {
			keep = append(keep, x.sub(xo, ro-xo))
		}

		if end, xend := ro+rs, xo+xs; xend > end {
			keep = append(keep, x.sub(end, xend-end))
		}
	}

	return keep
}

func sameRegion(a, b Location) bool {
	return a.kind == b.kind && a.space == b.space && a.base == b.base && a.Fixed() && b.Fixed()
}

func (l Location) sub(off, size int64) Location {
	l.off = &off
	l.size = &size

	return l
}

func unionRanges(a, b []Location) []Location {
	r := append([]Location{}, a...)

next:
	for _, x := range b {
		for _, y := range r {
			if locEqual(x, y) {
				continue next
			}
		}

		if len(r) >= maxTracked {
			break
		}

		r = append(r, x)
	}

	return r
}

func locEqual(a, b Location) bool {
	return a.kind == b.kind && a.space == b.space && a.base == b.base &&
		eqOff(a.off, b.off) && eqOff(a.size, b.size) && a.volatile == b.volatile
}

func locsEqual(a, b []Location) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !locEqual(a[i], b[i]) {
			return false
		}
	}

	return true
}
