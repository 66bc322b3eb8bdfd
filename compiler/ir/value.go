package ir

import (
	"fmt"

	"github.com/holiman/uint256"
)

type (
	VarID int

	ValueKind int

	// Value is a literal, a variable or a label reference.
	// Values are immutable once created.
	Value struct {
		Kind ValueKind

		Num  *uint256.Int // Lit
		Name string       // Var, Label

		Symbol bool // Label only: data symbol, not a code position
	}

	// Operand is a Value as used by one instruction.
	Operand struct {
		Value

		AddrAccess bool // used as an address, not as a plain word
	}

	Debug struct {
		Line int
		Pos  int
		End  int
	}
)

const (
	None ValueKind = iota
	Lit
	Var
	Label
)

func Int(v uint64) Value {
	return Value{Kind: Lit, Num: uint256.NewInt(v)}
}

func Num(x *uint256.Int) Value {
	return Value{Kind: Lit, Num: x}
}

func Variable(name string) Value {
	return Value{Kind: Var, Name: name}
}

func Lbl(name string) Value {
	return Value{Kind: Label, Name: name}
}

func Sym(name string) Value {
	return Value{Kind: Label, Name: name, Symbol: true}
}

func (v Value) IsZero() bool { return v.Kind == None }

func (v Value) Equal(x Value) bool {
	if v.Kind != x.Kind {
		return false
	}

	switch v.Kind {
	case Lit:
		return v.Num.Eq(x.Num)
	case Var, Label:
		return v.Name == x.Name && v.Symbol == x.Symbol
	}

	return true
}

func (v Value) String() string {
	switch v.Kind {
	case Lit:
		return v.Num.Dec()
	case Var:
		return "%" + v.Name
	case Label:
		if v.Symbol {
			return "$" + v.Name
		}

		return "@" + v.Name
	}

	return "<none>"
}

func Op1(v Value) Operand { return Operand{Value: v} }

func Addr(v Value) Operand { return Operand{Value: v, AddrAccess: true} }

func Ops(v ...Value) []Operand {
	ops := make([]Operand, len(v))

	for i, x := range v {
		ops[i] = Operand{Value: x}
	}

	return ops
}

func (d *Debug) String() string {
	if d == nil {
		return "-"
	}

	return fmt.Sprintf("line %d [%d:%d]", d.Line, d.Pos, d.End)
}
