// Package parse reads the textual intermediate form into ir.
//
// A unit is a sequence of constant definitions, global data labels
// and functions. Function bodies are flat instruction lists split
// into basic blocks by labels:
//
//	const SLOT_SIZE = 32
//	const BASE = mul(SLOT_SIZE, 128)
//
//	global counter
//
//	function main() {
//	entry:
//		%p = alloca 32, 0, 1
//		mstore %p, 42
//		stop
//	}
package parse

import (
	"context"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/etchlang/etch/compiler/ir"
)

type (
	state struct {
		name string
		b    []byte
	}

	Token interface{}

	Char    byte
	Keyword []byte
	Number  []byte
	Ident   []byte
	Str     []byte

	UnexpectedError struct {
		Token Token
		Want  []Token
	}

	// PosError wraps a parse error with its position in the unit.
	PosError struct {
		File string
		Line int
		Err  error
	}
)

// Unit parses one compilation unit.
func Unit(ctx context.Context, name string, text []byte) (c *ir.Context, err error) {
	tr := tlog.SpawnFromContext(ctx, "parse: unit", "name", name, "size", len(text))
	defer tr.Finish("err", &err)

	s := &state{name: name, b: text}

	c = &ir.Context{Name: name}

	i := 0

	for {
		tk, tst, e := s.next(i)

		switch tk := tk.(type) {
		case nil:
			return c, nil
		case Char:
			if tk == '\n' {
				i = e
				continue
			}
		case Keyword:
			switch string(tk) {
			case "const":
				i, err = s.parseConst(ctx, c, e)
			case "global":
				i, err = s.parseGlobal(ctx, c, e)
			case "function":
				i, err = s.parseFunction(ctx, c, e)
			default:
				err = NewUnexpected(tk, Keyword("const"), Keyword("global"), Keyword("function"))
			}

			if err != nil {
				return nil, s.wrap(err, tst)
			}

			continue
		}

		return nil, s.wrap(NewUnexpected(tk, Keyword("function")), tst)
	}
}

func (s *state) parseConst(ctx context.Context, c *ir.Context, st int) (i int, err error) {
	tk, tst, i := s.next(st)

	name, ok := tk.(Ident)
	if !ok {
		return tst, NewUnexpected(tk, Ident{})
	}

	tk, tst, i = s.next(i)
	if tk != Char('=') {
		return tst, NewUnexpected(tk, Char('='))
	}

	expr, i, err := s.parseConstExpr(i)
	if err != nil {
		return i, errors.Wrap(err, "const %s", name)
	}

	c.Consts = append(c.Consts, ir.ConstDef{Name: string(name), Expr: expr})

	return s.endOfLine(i)
}

func (s *state) parseGlobal(ctx context.Context, c *ir.Context, st int) (i int, err error) {
	tk, tst, i := s.next(st)

	name, ok := tk.(Ident)
	if !ok {
		return tst, NewUnexpected(tk, Ident{})
	}

	g := ir.Global{Name: string(name)}

	if tk, _, e := s.next(i); tk == Char('=') {
		g.Init, i, err = s.parseConstExpr(e)
		if err != nil {
			return i, errors.Wrap(err, "global %s", name)
		}
	}

	c.Globals = append(c.Globals, g)

	return s.endOfLine(i)
}

// parseConstExpr reads a literal, a $name or @name reference, or a
// call-form binary operation over two such expressions.
func (s *state) parseConstExpr(st int) (x ir.ConstExpr, i int, err error) {
	tk, tst, i := s.next(st)

	switch tk := tk.(type) {
	case Number:
		num, err := parseNum(tk)
		if err != nil {
			return nil, tst, err
		}

		return ir.ConstLit{Num: num}, i, nil
	case Char:
		switch tk {
		case '$', '@':
			name, _, e := s.next(i)

			id, ok := name.(Ident)
			if !ok {
				return nil, i, NewUnexpected(name, Ident{})
			}

			return ir.ConstRef{Name: string(id), Symbol: tk == '$'}, e, nil
		}
	case Ident:
		switch string(tk) {
		case "add", "sub", "mul", "div", "mod", "min", "max":
		default:
			return nil, tst, errors.New("unknown operation: %s", tk)
		}

		x := ir.ConstBin{Op: string(tk)}

		var d Token

		if d, tst, i = s.next(i); d != Char('(') {
			return nil, tst, NewUnexpected(d, Char('('))
		}

		x.L, i, err = s.parseConstExpr(i)
		if err != nil {
			return nil, i, err
		}

		if d, tst, i = s.next(i); d != Char(',') {
			return nil, tst, NewUnexpected(d, Char(','))
		}

		x.R, i, err = s.parseConstExpr(i)
		if err != nil {
			return nil, i, err
		}

		if d, tst, i = s.next(i); d != Char(')') {
			return nil, tst, NewUnexpected(d, Char(')'))
		}

		return x, i, nil
	}

	return nil, tst, NewUnexpected(tk, Number{}, Char('$'), Char('@'), Ident("add"))
}

func (s *state) parseFunction(ctx context.Context, c *ir.Context, st int) (i int, err error) {
	tk, tst, i := s.next(st)

	name, ok := tk.(Ident)
	if !ok {
		return tst, NewUnexpected(tk, Ident{})
	}

	var params []string

	if tk, tst, i = s.next(i); tk != Char('(') {
		return tst, NewUnexpected(tk, Char('('))
	}

	for {
		tk, tst, e := s.next(i)

		if tk == Char(')') {
			i = e
			break
		}

		if len(params) != 0 {
			if tk != Char(',') {
				return tst, NewUnexpected(tk, Char(','), Char(')'))
			}

			tk, tst, e = s.next(e)
		}

		if tk != Char('%') {
			return tst, NewUnexpected(tk, Char('%'))
		}

		tk, tst, e = s.next(e)

		p, ok := tk.(Ident)
		if !ok {
			return tst, NewUnexpected(tk, Ident{})
		}

		params = append(params, string(p))
		i = e
	}

	if tk, tst, i = s.next(i); tk != Char('{') {
		return tst, NewUnexpected(tk, Char('{'))
	}

	f := ir.NewFunc(string(name), params...)

	i, err = s.parseBody(ctx, f, i)
	if err != nil {
		return i, errors.Wrap(err, "function %s", name)
	}

	tlog.SpanFromContext(ctx).Printw("function", "name", f.Name, "params", len(f.Params), "blocks", len(f.Blocks))

	c.Funcs = append(c.Funcs, f)

	return i, nil
}

func (s *state) parseBody(ctx context.Context, f *ir.Func, st int) (i int, err error) {
	i = st

	var b *ir.Block

	for {
		tk, tst, e := s.next(i)

		switch tk {
		case Char('\n'):
			i = e
			continue
		case Char('}'):
			return e, nil
		case nil:
			return tst, NewUnexpected(nil, Char('}'))
		}

		name, ok := tk.(Ident)
		if !ok {
			if tk != Char('%') {
				return tst, NewUnexpected(tk, Ident{}, Char('%'))
			}
		} else if tk2, _, e2 := s.next(e); tk2 == Char(':') {
			b = f.AddBlock(string(name))
			i = e2
			continue
		}

		if b == nil {
			b = f.AddBlock("entry")
		}

		i, err = s.parseInstruction(ctx, f, b, tst)
		if err != nil {
			return i, s.wrap(err, tst)
		}
	}
}

func (s *state) parseInstruction(ctx context.Context, f *ir.Func, b *ir.Block, st int) (i int, err error) {
	ins := &ir.Instruction{}

	tk, tst, i := s.next(st)

	if tk == Char('%') {
		tk, tst, i = s.next(i)

		out, ok := tk.(Ident)
		if !ok {
			return tst, NewUnexpected(tk, Ident{})
		}

		ins.Out = ir.Variable(string(out))

		if tk, tst, i = s.next(i); tk != Char('=') {
			return tst, NewUnexpected(tk, Char('='))
		}

		tk, tst, i = s.next(i)
	}

	name, ok := tk.(Ident)
	if !ok {
		return tst, NewUnexpected(tk, Ident{})
	}

	op, ok := ir.OpByName(string(name))
	if !ok {
		return tst, errors.New("unknown opcode: %s", name)
	}

	ins.Op = op

	for {
		tk, tst, e := s.next(i)

		if tk == Char('\n') || tk == Char('}') || tk == nil {
			break
		}

		if len(ins.In) != 0 {
			if tk != Char(',') {
				return tst, NewUnexpected(tk, Char(','), Char('\n'))
			}

			tk, tst, e = s.next(e)
		}

		var op ir.Operand
		op, e, err = s.parseOperand(tk, tst, e, ins)
		if err != nil {
			return e, err
		}

		if op.Kind != ir.None {
			ins.In = append(ins.In, op)
		}

		i = e
	}

	end := i
	ins.Debug = &ir.Debug{Line: s.lineAt(st), Pos: st, End: end}

	b.Add(ins)

	return s.endOfLine(i)
}

func (s *state) parseOperand(tk Token, tst, i int, ins *ir.Instruction) (op ir.Operand, _ int, err error) {
	switch tk := tk.(type) {
	case Number:
		num, err := parseNum(tk)
		if err != nil {
			return op, tst, err
		}

		return ir.Op1(ir.Num(num)), i, nil
	case Str:
		if ins.Op != ir.Revert {
			return op, tst, errors.New("string operand outside revert")
		}

		ins.ErrMsg = string(tk)

		return op, i, nil
	case Char:
		switch tk {
		case '%', '@', '$':
			name, nst, e := s.next(i)

			id, ok := name.(Ident)
			if !ok {
				return op, nst, NewUnexpected(name, Ident{})
			}

			switch tk {
			case '%':
				return ir.Op1(ir.Variable(string(id))), e, nil
			case '@':
				return ir.Op1(ir.Lbl(string(id))), e, nil
			default:
				return ir.Op1(ir.Sym(string(id))), e, nil
			}
		}
	}

	return op, tst, NewUnexpected(tk, Number{}, Char('%'), Char('@'), Char('$'))
}

// endOfLine requires the next token to terminate the statement.
func (s *state) endOfLine(st int) (i int, err error) {
	tk, tst, i := s.next(st)

	switch tk {
	case Char('\n'), Char('}'), nil:
		return tst, nil
	}

	return tst, NewUnexpected(tk, Char('\n'))
}

func (s *state) next(st int) (tk Token, tst int, i int) {
	i = skipSpaces(s.b, st)
	tst = i

	if i == len(s.b) {
		return nil, tst, i
	}

	c := s.b[i]

	switch c {
	case '{', '}', '(', ')', '=', ',', ':', '%', '@', '$', '\n':
		return Char(c), tst, i + 1
	case '"':
		e := i + 1
		for e < len(s.b) && s.b[e] != '"' && s.b[e] != '\n' {
			e++
		}

		if e == len(s.b) || s.b[e] != '"' {
			return Char(c), tst, i + 1 // unterminated, reported by the caller
		}

		return Str(s.b[i+1 : e]), tst, e + 1
	}

	switch {
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '.':
		e := skipIdent(s.b, i)

		switch string(s.b[i:e]) {
		case "const", "global", "function":
			return Keyword(s.b[i:e]), tst, e
		}

		return Ident(s.b[i:e]), tst, e
	case c >= '0' && c <= '9':
		e := skipNum(s.b, i)
		return Number(s.b[i:e]), tst, e
	}

	return Char(c), tst, i + 1
}

func parseNum(tk Number) (*uint256.Int, error) {
	x := new(uint256.Int)

	var err error

	if len(tk) > 2 && (tk[1] == 'x' || tk[1] == 'X') {
		err = x.SetFromHex("0x" + string(tk[2:]))
	} else {
		err = x.SetFromDecimal(string(tk))
	}

	if err != nil {
		return nil, errors.Wrap(err, "number %s", tk)
	}

	return x, nil
}

func skipSpaces(b []byte, i int) int {
	for i < len(b) {
		switch {
		case b[i] == ' ' || b[i] == '\t' || b[i] == '\r':
			i++
		case b[i] == ';' || b[i] == '#':
			for i < len(b) && b[i] != '\n' {
				i++
			}
		default:
			return i
		}
	}

	return i
}

func skipIdent(b []byte, i int) int {
	for i < len(b) && (b[i] >= 'a' && b[i] <= 'z' || b[i] >= 'A' && b[i] <= 'Z' || b[i] >= '0' && b[i] <= '9' || b[i] == '_' || b[i] == '.') {
		i++
	}

	return i
}

func skipNum(b []byte, i int) int {
	for i < len(b) && (b[i] >= '0' && b[i] <= '9' ||
		b[i] >= 'a' && b[i] <= 'f' || b[i] >= 'A' && b[i] <= 'F' ||
		b[i] == 'x' || b[i] == 'X') {
		i++
	}

	return i
}

func (s *state) lineAt(pos int) int {
	n := 1

	for _, c := range s.b[:pos] {
		if c == '\n' {
			n++
		}
	}

	return n
}

func (s *state) wrap(err error, pos int) error {
	var pe PosError
	if errors.As(err, &pe) {
		return err
	}

	return PosError{File: s.name, Line: s.lineAt(pos), Err: err}
}

func NewUnexpected(got Token, want ...Token) error {
	return UnexpectedError{Token: got, Want: want}
}

func (e UnexpectedError) Error() string {
	l := make([]string, len(e.Want))

	for i, w := range e.Want {
		l[i] = fmt.Sprintf("%T", w)
	}

	return fmt.Sprintf("unexpected token %q (%[1]T), want %v", e.Token, strings.Join(l, ", "))
}

func (e PosError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e PosError) Unwrap() error {
	return e.Err
}
