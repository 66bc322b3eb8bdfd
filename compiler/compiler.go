package compiler

import (
	"context"
	"os"

	"github.com/holiman/uint256"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/etchlang/etch/compiler/asm"
	"github.com/etchlang/etch/compiler/cfg"
	"github.com/etchlang/etch/compiler/ir"
	"github.com/etchlang/etch/compiler/mem"
	"github.com/etchlang/etch/compiler/parse"
	"github.com/etchlang/etch/compiler/sched"
)

func CompileFile(ctx context.Context, name string) (*asm.Result, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text)
}

// Compile runs the whole pipeline on one unit: parse, control flow
// and liveness, memory analysis, stack scheduling, assembly.
func Compile(ctx context.Context, name string, text []byte) (res *asm.Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile: unit", "name", name)
	defer tr.Finish("err", &err)

	defer func() {
		p := recover()
		if p == nil {
			return
		}

		e, ok := p.(*ir.PanicError)
		if !ok {
			panic(p)
		}

		err = e
	}()

	c, err := parse.Unit(ctx, name, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	if len(c.Funcs) == 0 {
		return nil, errors.New("no functions in unit")
	}

	items, err := Schedule(ctx, c)
	if err != nil {
		return nil, err
	}

	res, err = asm.Assemble(ctx, items, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "assemble")
	}

	return res, nil
}

// Schedule lowers a parsed unit to the symbolic assembly stream. The
// first function is the entry point and comes first in the code.
func Schedule(ctx context.Context, c *ir.Context) (items []asm.Item, err error) {
	for _, f := range c.Funcs {
		cfg.Build(ctx, f)
	}

	a := mem.Analyze(ctx, c)

	for _, f := range c.Funcs {
		if n := mem.EliminateDeadStores(ctx, f, a); n != 0 {
			tlog.SpanFromContext(ctx).Printw("dead stores", "func", f.Name, "removed", n)
		}

		cfg.Liveness(ctx, f)
	}

	for _, d := range c.Consts {
		items = append(items, asm.ConstDef{Name: d.Name, Expr: d.Expr})
	}

	for i, f := range c.Funcs {
		code, err := sched.Schedule(ctx, c, f, i == 0)
		if err != nil {
			return nil, errors.Wrap(err, "schedule %v", f.Name)
		}

		items = append(items, code...)
	}

	data, err := globalData(c)
	if err != nil {
		return nil, err
	}

	items = append(items, data...)

	return items, nil
}

// globalData lays every global out as one machine word, initialized
// from its constant expression.
func globalData(c *ir.Context) (items []asm.Item, err error) {
	if len(c.Globals) == 0 {
		return nil, nil
	}

	defs := append([]ir.ConstDef{}, c.Consts...)

	for _, g := range c.Globals {
		init := g.Init
		if init == nil {
			init = ir.ConstLit{Num: new(uint256.Int)}
		}

		defs = append(defs, ir.ConstDef{Name: "." + g.Name, Expr: init})
	}

	vals, err := asm.Eval(defs, nil)
	if err != nil {
		return nil, errors.Wrap(err, "global initializers")
	}

	for _, g := range c.Globals {
		w := vals["."+g.Name].Bytes32()

		items = append(items, asm.Data{
			Name:  g.Name,
			Items: []asm.DataItem{{Bytes: w[:]}},
		})
	}

	return items, nil
}
