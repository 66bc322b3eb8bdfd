// Package format renders a unit back to its textual form.
package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/etchlang/etch/compiler/ir"
)

func Format(ctx context.Context, b []byte, c *ir.Context) (_ []byte, err error) {
	for _, d := range c.Consts {
		b = hfmt.Appendf(b, "const %s = ", d.Name)

		b, err = formatConstExpr(b, d.Expr)
		if err != nil {
			return nil, errors.Wrap(err, "const %v", d.Name)
		}

		b = append(b, '\n')
	}

	for _, g := range c.Globals {
		b = hfmt.Appendf(b, "global %s", g.Name)

		if g.Init != nil {
			b = append(b, " = "...)

			b, err = formatConstExpr(b, g.Init)
			if err != nil {
				return nil, errors.Wrap(err, "global %v", g.Name)
			}
		}

		b = append(b, '\n')
	}

	for i, f := range c.Funcs {
		if i != 0 || len(c.Consts)+len(c.Globals) != 0 {
			b = append(b, '\n')
		}

		b = formatFunc(b, f)
	}

	return b, nil
}

func formatFunc(b []byte, f *ir.Func) []byte {
	b = hfmt.Appendf(b, "function %s(", f.Name)

	for i, p := range f.Params {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = hfmt.Appendf(b, "%%%s", p.Name)
	}

	b = append(b, ") {\n"...)

	for _, blk := range f.Blocks {
		b = hfmt.Appendf(b, "%s:\n", blk.Name)

		for _, ins := range blk.Code {
			b = hfmt.Appendf(b, "\t%v", ins)

			if ins.Op == ir.Revert && ins.ErrMsg != "" {
				b = hfmt.Appendf(b, ", %q", ins.ErrMsg)
			}

			b = append(b, '\n')
		}
	}

	return append(b, "}\n"...)
}

func formatConstExpr(b []byte, e ir.ConstExpr) ([]byte, error) {
	switch e := e.(type) {
	case ir.ConstLit:
		return append(b, e.Num.Dec()...), nil
	case ir.ConstRef:
		if e.Symbol {
			return hfmt.Appendf(b, "$%s", e.Name), nil
		}

		return hfmt.Appendf(b, "@%s", e.Name), nil
	case ir.ConstBin:
		b = hfmt.Appendf(b, "%s(", e.Op)

		b, err := formatConstExpr(b, e.L)
		if err != nil {
			return nil, err
		}

		b = append(b, ", "...)

		b, err = formatConstExpr(b, e.R)
		if err != nil {
			return nil, err
		}

		return append(b, ')'), nil
	}

	return nil, errors.New("unsupported expression: %T", e)
}
