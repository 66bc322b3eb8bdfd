package asm

import (
	"context"

	"github.com/holiman/uint256"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/etchlang/etch/compiler/ir"
)

type (
	// SourceMap associates bytecode positions with source spans and
	// semantic annotations.
	SourceMap struct {
		JumpMap  map[int]string // pc -> "i" (call-in), "o" (call-out), "-"
		AstMap   map[int]*ir.Debug
		ErrorMap map[int]string // pc -> revert reason

		Breakpoints   []int
		PCBreakpoints map[int]bool
	}

	Result struct {
		Code []byte

		Symbols map[string]int
		Consts  map[string]*uint256.Int

		Map SourceMap
	}
)

// Assemble turns a symbolic stream into bytecode and a source map.
// ext supplies externally-defined constants, keep names labels the
// optimizer must preserve.
func Assemble(ctx context.Context, items []Item, ext map[string]*uint256.Int, keep map[string]bool) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "asm: assemble", "items", len(items))
	defer tr.Finish("err", &err)

	r := newResolver(ext)

	// pass 1: constant resolution
	for _, it := range items {
		d, ok := it.(ConstDef)
		if !ok {
			continue
		}

		err = r.define(ir.ConstDef{Name: d.Name, Expr: d.Expr})
		if err != nil {
			return nil, errors.Wrap(err, "resolve constants")
		}
	}

	// pass 3 runs on the symbolic stream so that label offsets stay
	// valid; the pc accounting below sees the final instruction
	// sequence
	items = Optimize(ctx, items, keep)

	subs := map[int]*Result{} // item index -> nested runtime

	for i, it := range items {
		rt, ok := it.(Runtime)
		if !ok {
			continue
		}

		sub, err := Assemble(ctx, rt.Items, ext, nil)
		if err != nil {
			return nil, errors.Wrap(err, "runtime %v", rt.Name)
		}

		subs[i] = sub
	}

	// pass 2: symbol and offset resolution
	labels := map[string]int{}
	pc := 0

	for i, it := range items {
		switch x := it.(type) {
		case Label:
			if _, ok := labels[x.Name]; ok {
				ir.Panicf("", nil, "duplicate label %v", x.Name)
			}

			labels[x.Name] = pc
		case Op:
			pc++
		case Push:
			pc += 1 + byteWidth(x.Num)
		case PushLabel:
			pc += 1 + SymbolSize
		case PushOffset:
			pc += 1 + r.offsetWidth(x)
		case Data:
			labels[x.Name] = pc

			for _, d := range x.Items {
				if d.Ref != "" {
					pc += SymbolSize
				} else {
					pc += len(d.Bytes)
				}
			}
		case Runtime:
			labels[x.Name] = pc
			pc += len(subs[i].Code)
		case ConstDef, Breakpoint:
		}
	}

	r.labels = labels

	err = r.link()
	if err != nil {
		return nil, errors.Wrap(err, "link deferred constants")
	}

	// pass 4: emission
	res = &Result{
		Code:    make([]byte, 0, pc),
		Symbols: labels,
		Consts:  r.consts,
		Map: SourceMap{
			JumpMap:       map[int]string{},
			AstMap:        map[int]*ir.Debug{},
			ErrorMap:      map[int]string{},
			PCBreakpoints: map[int]bool{},
		},
	}

	for i, it := range items {
		at := len(res.Code)

		switch x := it.(type) {
		case Label, ConstDef:
		case Breakpoint:
			res.Map.Breakpoints = append(res.Map.Breakpoints, at)
			res.Map.PCBreakpoints[at] = true
		case Op:
			b, ok := opcode(x.Name)
			if !ok {
				ir.Panicf("", nil, "unhandled mnemonic %q", x.Name)
			}

			res.Code = append(res.Code, b)

			if x.Debug != nil {
				res.Map.AstMap[at] = x.Debug
			}

			if x.Name == "JUMP" || x.Name == "JUMPI" {
				res.Map.JumpMap[at] = jumpClass(x.Jump)
			}

			if x.Name == "REVERT" && x.Err != "" {
				res.Map.ErrorMap[at] = x.Err
			}
		case Push:
			res.Code = appendPush(res.Code, x.Num)

			if x.Debug != nil {
				res.Map.AstMap[at] = x.Debug
			}
		case PushLabel:
			target, ok := labels[x.Name]
			if !ok {
				ir.Panicf("", nil, "undefined label %v", x.Name)
			}

			res.Code = appendSymbol(res.Code, target)

			if x.Debug != nil {
				res.Map.AstMap[at] = x.Debug
			}
		case PushOffset:
			res.Code = r.appendOffset(res.Code, x)

			if x.Debug != nil {
				res.Map.AstMap[at] = x.Debug
			}
		case Data:
			for _, d := range x.Items {
				if d.Ref == "" {
					res.Code = append(res.Code, d.Bytes...)
					continue
				}

				target, ok := labels[d.Ref]
				if !ok {
					ir.Panicf("", nil, "undefined data reference %v", d.Ref)
				}

				checkSymbol(target)
				res.Code = append(res.Code, byte(target>>8), byte(target))
			}
		case Runtime:
			sub := subs[i]

			res.Code = append(res.Code, sub.Code...)
			mergeMaps(&res.Map, &sub.Map, at)
		}
	}

	if len(res.Code) != pc {
		ir.Panicf("", nil, "pc accounting drifted: measured %d, emitted %d", pc, len(res.Code))
	}

	tr.Printw("assembled", "bytes", len(res.Code), "symbols", len(labels), "consts", len(r.consts))

	return res, nil
}

// offsetWidth is the operand width of a PushOffset. Constants
// resolved in pass 1 take the minimal width of their value, symbols
// and deferred constants take the fixed SymbolSize budget.
func (r *resolver) offsetWidth(x PushOffset) int {
	v, ok := r.consts[x.Name]
	if !ok {
		return SymbolSize
	}

	return byteWidth(addOffset(v, x.Offset))
}

func (r *resolver) appendOffset(code []byte, x PushOffset) []byte {
	if v, ok := r.consts[x.Name]; ok {
		val := addOffset(v, x.Offset)

		// constants deferred past the pc pass were measured at the
		// fixed symbol width, keep the encoding consistent
		if r.wasDeferred[x.Name] {
			if !val.IsUint64() || val.Uint64() >= 1<<(8*SymbolSize) {
				ir.Panicf("", nil, "deferred constant %v does not fit %d symbol bytes", x.Name, SymbolSize)
			}

			return appendSymbol(code, int(val.Uint64()))
		}

		return appendPush(code, val)
	}

	target, ok := r.labels[x.Name]
	if !ok {
		ir.Panicf("", nil, "undefined symbol %v", x.Name)
	}

	return appendSymbol(code, target+int(x.Offset))
}

func addOffset(v *uint256.Int, off int64) *uint256.Int {
	if off == 0 {
		return v
	}

	r := new(uint256.Int)

	if off > 0 {
		r.AddUint64(v, uint64(off))
	} else {
		r.SubUint64(v, uint64(-off))
	}

	return r
}

func byteWidth(v *uint256.Int) int {
	return v.ByteLen()
}

func appendPush(code []byte, v *uint256.Int) []byte {
	w := byteWidth(v)

	code = append(code, byte(PushBase+w))

	if w > 0 {
		b := v.Bytes()
		code = append(code, b...)
	}

	return code
}

func appendSymbol(code []byte, target int) []byte {
	checkSymbol(target)

	code = append(code, byte(PushBase+SymbolSize), byte(target>>8), byte(target))

	return code
}

func checkSymbol(target int) {
	if target < 0 || target >= 1<<(8*SymbolSize) {
		ir.Panicf("", nil, "label offset %d does not fit %d symbol bytes", target, SymbolSize)
	}
}

func jumpClass(j byte) string {
	if j == 'i' || j == 'o' {
		return string(j)
	}

	return "-"
}

func mergeMaps(dst, src *SourceMap, off int) {
	for pc, v := range src.JumpMap {
		dst.JumpMap[pc+off] = v
	}

	for pc, v := range src.AstMap {
		dst.AstMap[pc+off] = v
	}

	for pc, v := range src.ErrorMap {
		dst.ErrorMap[pc+off] = v
	}

	for _, pc := range src.Breakpoints {
		dst.Breakpoints = append(dst.Breakpoints, pc+off)
		dst.PCBreakpoints[pc+off] = true
	}
}
