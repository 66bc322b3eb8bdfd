package asm

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/etchlang/etch/compiler/ir"
)

// maxOptimizeIter bounds the rewrite loop. Exceeding it means a rule
// cycle, which is a compiler bug, not bad input.
const maxOptimizeIter = 64

// Optimize applies the peephole rule set until no rule fires.
// Running it on its own output is a no-op.
func Optimize(ctx context.Context, items []Item, keep map[string]bool) []Item {
	tr := tlog.SpanFromContext(ctx)

	if keep == nil {
		keep = map[string]bool{}
	}

	for iter := 0; ; iter++ {
		if iter > maxOptimizeIter {
			ir.Panicf("", nil, "peephole optimizer did not settle after %d iterations", iter)
		}

		changed := false

		items, changed = deadCode(items, changed)
		items, changed = collapseChains(items, changed)
		items, changed = jumpToNext(items, changed)
		items, changed = microRules(items, changed)
		items, changed = unusedJumpdests(items, keep, changed)

		if !changed {
			tr.Printw("peephole settled", "iterations", iter, "items", len(items))
			break
		}
	}

	for i, it := range items {
		if r, ok := it.(Runtime); ok {
			r.Items = Optimize(ctx, r.Items, nil)
			items[i] = r
		}
	}

	return items
}

// deadCode drops unreachable items between a terminal opcode and the
// next label or segment boundary.
func deadCode(items []Item, changed bool) ([]Item, bool) {
	out := items[:0:0]
	dead := false

	for _, it := range items {
		switch x := it.(type) {
		case Label, Data, Runtime, ConstDef:
			dead = false
		case Op:
			if dead {
				changed = true
				continue
			}

			dead = terminal[x.Name]
		default:
			if dead {
				changed = true
				continue
			}
		}

		out = append(out, it)
	}

	return out, changed
}

// jumpToNext elides a jump whose target is the immediately following
// label.
func jumpToNext(items []Item, changed bool) ([]Item, bool) {
	out := items[:0:0]

	for i := 0; i < len(items); i++ {
		push, ok := items[i].(PushLabel)
		if !ok {
			out = append(out, items[i])
			continue
		}

		if i+1 >= len(items) {
			out = append(out, items[i])
			continue
		}

		jump, ok := items[i+1].(Op)
		if !ok || jump.Name != "JUMP" || jump.Jump != 0 {
			out = append(out, items[i])
			continue
		}

		next := false

		for j := i + 2; j < len(items); j++ {
			l, ok := items[j].(Label)
			if !ok {
				break
			}

			if l.Name == push.Name {
				next = true
				break
			}
		}

		if !next {
			out = append(out, items[i])
			continue
		}

		i++ // skip the JUMP too
		changed = true
	}

	return out, changed
}

// collapseChains redirects references to a jumpdest that only jumps
// further on.
func collapseChains(items []Item, changed bool) ([]Item, bool) {
	alias := map[string]string{}

	for i := 0; i+3 < len(items); i++ {
		l, ok := items[i].(Label)
		if !ok {
			continue
		}

		jd, ok := items[i+1].(Op)
		if !ok || jd.Name != "JUMPDEST" {
			continue
		}

		push, ok := items[i+2].(PushLabel)
		if !ok || push.Name == l.Name {
			continue
		}

		jump, ok := items[i+3].(Op)
		if !ok || jump.Name != "JUMP" || jump.Jump != 0 {
			continue
		}

		alias[l.Name] = push.Name
	}

	if len(alias) == 0 {
		return items, changed
	}

	resolve := func(name string) string {
		seen := map[string]bool{name: true}

		for {
			t, ok := alias[name]
			if !ok || seen[t] {
				return name
			}

			seen[t] = true
			name = t
		}
	}

	for i, it := range items {
		switch x := it.(type) {
		case PushLabel:
			if t := resolve(x.Name); t != x.Name {
				x.Name = t
				items[i] = x
				changed = true
			}
		case Data:
			for j, d := range x.Items {
				if d.Ref == "" {
					continue
				}

				if t := resolve(d.Ref); t != d.Ref {
					x.Items[j].Ref = t
					changed = true
				}
			}
		}
	}

	return items, changed
}

// microRules cancels adjacent instruction pairs that undo each other.
func microRules(items []Item, changed bool) ([]Item, bool) {
	out := items[:0:0]

	for i := 0; i < len(items); i++ {
		if i+1 < len(items) {
			a, aok := items[i].(Op)
			b, bok := items[i+1].(Op)

			if aok && bok {
				// ISZERO ISZERO JUMPI -> JUMPI
				if a.Name == "ISZERO" && b.Name == "ISZERO" && i+2 < len(items) {
					if c, ok := items[i+2].(Op); ok && c.Name == "JUMPI" {
						i++
						changed = true
						continue
					}
				}

				// ISZERO ISZERO ISZERO -> ISZERO
				if a.Name == "ISZERO" && b.Name == "ISZERO" && i+2 < len(items) {
					if c, ok := items[i+2].(Op); ok && c.Name == "ISZERO" {
						i++
						changed = true
						continue
					}
				}

				// SWAPn SWAPn cancels
				if n, ok := isSwap(a.Name); ok {
					if m, ok2 := isSwap(b.Name); ok2 && n == m {
						i++
						changed = true
						continue
					}
				}

				// DUPn POP cancels
				if _, ok := isDup(a.Name); ok && b.Name == "POP" {
					i++
					changed = true
					continue
				}
			}

			// PUSH* POP cancels
			if b, bok := items[i+1].(Op); bok && b.Name == "POP" && isPush(items[i]) {
				i++
				changed = true
				continue
			}
		}

		out = append(out, items[i])
	}

	return out, changed
}

// unusedJumpdests removes jumpdest markers nothing references.
func unusedJumpdests(items []Item, keep map[string]bool, changed bool) ([]Item, bool) {
	used := map[string]bool{}

	for name := range keep {
		used[name] = true
	}

	var mark func(items []Item)
	mark = func(items []Item) {
		for _, it := range items {
			switch x := it.(type) {
			case PushLabel:
				used[x.Name] = true
			case PushOffset:
				used[x.Name] = true
			case ConstDef:
				markConstRefs(x.Expr, used)
			case Data:
				for _, d := range x.Items {
					if d.Ref != "" {
						used[d.Ref] = true
					}
				}
			case Runtime:
				used[x.Name] = true
				mark(x.Items)
			}
		}
	}

	mark(items)

	out := items[:0:0]

	for i := 0; i < len(items); i++ {
		l, ok := items[i].(Label)
		if !ok || used[l.Name] {
			out = append(out, items[i])
			continue
		}

		if i+1 < len(items) {
			if jd, ok := items[i+1].(Op); ok && jd.Name == "JUMPDEST" {
				i++
				changed = true
				continue
			}
		}

		out = append(out, items[i])
	}

	return out, changed
}

func markConstRefs(e ir.ConstExpr, used map[string]bool) {
	switch e := e.(type) {
	case ir.ConstRef:
		if !e.Symbol {
			used[e.Name] = true
		}
	case ir.ConstBin:
		markConstRefs(e.L, used)
		markConstRefs(e.R, used)
	}
}

func isPush(it Item) bool {
	switch it.(type) {
	case Push, PushLabel, PushOffset:
		return true
	}

	return false
}
