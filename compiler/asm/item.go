package asm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/etchlang/etch/compiler/ir"
)

type (
	// Item is one element of the symbolic assembly stream.
	Item interface {
		item()
	}

	// Op is a plain opcode by mnemonic, DUPn and SWAPn included.
	Op struct {
		Name  string
		Jump  byte   // 'i', 'o' or 0; JUMP/JUMPI classification
		Err   string // revert reason, REVERT only
		Debug *ir.Debug
	}

	// Push is a literal push, encoded with the minimal width for the
	// value.
	Push struct {
		Num   *uint256.Int
		Debug *ir.Debug
	}

	// PushLabel pushes a code position. Always SymbolSize operand
	// bytes.
	PushLabel struct {
		Name  string
		Debug *ir.Debug
	}

	// PushOffset pushes a symbol or constant value plus a fixed
	// offset. Labels keep the SymbolSize budget, constants use the
	// minimal width for the resolved value.
	PushOffset struct {
		Name   string
		Offset int64
		Debug  *ir.Debug
	}

	// Label marks the current position. Does not advance the pc.
	Label struct {
		Name string
	}

	// ConstDef defines a named constant from an expression.
	ConstDef struct {
		Name string
		Expr ir.ConstExpr
	}

	// Data is a raw data segment, addressable via its header label.
	Data struct {
		Name  string
		Items []DataItem
	}

	// DataItem is raw bytes, or a label reference occupying
	// SymbolSize bytes.
	DataItem struct {
		Bytes []byte
		Ref   string
	}

	// Runtime is a nested program assembled independently and
	// appended after the main code, addressable via its name.
	Runtime struct {
		Name  string
		Items []Item
	}

	// Breakpoint records a debug hook at the current pc.
	Breakpoint struct{}
)

func (Op) item()         {}
func (Push) item()       {}
func (PushLabel) item()  {}
func (PushOffset) item() {}
func (Label) item()      {}
func (ConstDef) item()   {}
func (Data) item()       {}
func (Runtime) item()    {}
func (Breakpoint) item() {}

func (x Op) String() string         { return x.Name }
func (x Push) String() string       { return "PUSH " + x.Num.Dec() }
func (x PushLabel) String() string  { return "PUSH @" + x.Name }
func (x PushOffset) String() string { return fmt.Sprintf("PUSH $%s+%d", x.Name, x.Offset) }
func (x Label) String() string      { return x.Name + ":" }
func (x ConstDef) String() string   { return "const " + x.Name }

// Dump renders the symbolic stream, one item per line.
func Dump(b []byte, items []Item) []byte {
	for _, it := range items {
		switch x := it.(type) {
		case Label:
			b = fmt.Appendf(b, "%s:\n", x.Name)
		case Runtime:
			b = fmt.Appendf(b, "runtime %s:\n", x.Name)
			b = Dump(b, x.Items)
		case Data:
			b = fmt.Appendf(b, "data %s: %d items\n", x.Name, len(x.Items))
		case fmt.Stringer:
			b = fmt.Appendf(b, "\t%v\n", x)
		default:
			b = fmt.Appendf(b, "\t%T\n", x)
		}
	}

	return b
}
