package asm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/etchlang/etch/compiler/ir"
)

type (
	// ConstEvalError is the one recoverable error kind of the
	// assembler: an undefined reference or division by zero inside a
	// constant expression.
	ConstEvalError struct {
		Name string
		Msg  string
	}

	resolver struct {
		consts map[string]*uint256.Int
		labels map[string]int // nil until symbols are resolved

		deferred    map[string]ir.ConstExpr
		wasDeferred map[string]bool
	}
)

func (e *ConstEvalError) Error() string {
	if e.Name == "" {
		return "const eval: " + e.Msg
	}

	return fmt.Sprintf("const %v: %v", e.Name, e.Msg)
}

func newResolver(ext map[string]*uint256.Int) *resolver {
	r := &resolver{
		consts:      map[string]*uint256.Int{},
		deferred:    map[string]ir.ConstExpr{},
		wasDeferred: map[string]bool{},
	}

	for name, v := range ext {
		r.consts[name] = v
	}

	return r
}

// Eval resolves constant definitions with no code symbols in scope.
// Label references do not resolve here and are reported as errors.
func Eval(defs []ir.ConstDef, ext map[string]*uint256.Int) (map[string]*uint256.Int, error) {
	r := newResolver(ext)
	r.labels = map[string]int{}

	for _, d := range defs {
		err := r.define(d)
		if err != nil {
			return nil, err
		}
	}

	err := r.link()
	if err != nil {
		return nil, err
	}

	return r.consts, nil
}

// define evaluates one constant definition. Definitions referencing
// not-yet-resolved labels are deferred until symbol resolution.
func (r *resolver) define(d ir.ConstDef) error {
	v, deferred, err := r.eval(d.Name, d.Expr)
	if err != nil {
		return err
	}

	if deferred {
		r.deferred[d.Name] = d.Expr
		r.wasDeferred[d.Name] = true

		return nil
	}

	r.consts[d.Name] = v

	return nil
}

// link evaluates every deferred constant once labels are known.
func (r *resolver) link() error {
	for name, e := range r.deferred {
		v, deferred, err := r.eval(name, e)
		if err != nil {
			return err
		}

		if deferred {
			return &ConstEvalError{Name: name, Msg: "unresolved label reference"}
		}

		r.consts[name] = v
	}

	r.deferred = map[string]ir.ConstExpr{}

	return nil
}

func (r *resolver) eval(name string, e ir.ConstExpr) (v *uint256.Int, deferred bool, err error) {
	switch e := e.(type) {
	case ir.ConstLit:
		return e.Num, false, nil
	case ir.ConstRef:
		return r.ref(name, e)
	case ir.ConstBin:
		l, dl, err := r.eval(name, e.L)
		if err != nil {
			return nil, false, err
		}

		rv, dr, err := r.eval(name, e.R)
		if err != nil {
			return nil, false, err
		}

		if dl || dr {
			return nil, true, nil
		}

		return r.binop(name, e.Op, l, rv)
	}

	ir.Panicf("", nil, "unhandled const expression %T", e)
	return nil, false, nil
}

func (r *resolver) ref(name string, e ir.ConstRef) (v *uint256.Int, deferred bool, err error) {
	if e.Symbol {
		if v, ok := r.consts[e.Name]; ok {
			return v, false, nil
		}

		if _, ok := r.deferred[e.Name]; ok {
			return nil, true, nil
		}

		return nil, false, &ConstEvalError{Name: name, Msg: fmt.Sprintf("undefined constant $%v", e.Name)}
	}

	if r.labels == nil {
		return nil, true, nil
	}

	pc, ok := r.labels[e.Name]
	if !ok {
		return nil, true, nil
	}

	return uint256.NewInt(uint64(pc)), false, nil
}

func (r *resolver) binop(name, op string, l, rv *uint256.Int) (*uint256.Int, bool, error) {
	v := new(uint256.Int)

	switch op {
	case "add":
		v.Add(l, rv)
	case "sub":
		v.Sub(l, rv)
	case "mul":
		v.Mul(l, rv)
	case "div":
		if rv.IsZero() {
			return nil, false, &ConstEvalError{Name: name, Msg: "division by zero"}
		}

		v.Div(l, rv)
	case "mod":
		if rv.IsZero() {
			return nil, false, &ConstEvalError{Name: name, Msg: "modulo by zero"}
		}

		v.Mod(l, rv)
	case "max":
		if l.Gt(rv) {
			v.Set(l)
		} else {
			v.Set(rv)
		}
	case "min":
		if l.Lt(rv) {
			v.Set(l)
		} else {
			v.Set(rv)
		}
	default:
		ir.Panicf("", nil, "unhandled const operation %q", op)
	}

	return v, false, nil
}
