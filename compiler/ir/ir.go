package ir

import (
	"fmt"

	"github.com/etchlang/etch/compiler/set"
	"github.com/holiman/uint256"
)

type (
	Instruction struct {
		Op  Op
		In  []Operand
		Out Value // Var or zero

		Debug  *Debug
		ErrMsg string // revert reason, Revert only

		// recomputed by liveness, not part of instruction identity
		LiveAfter set.Bits[VarID]
	}

	Block struct {
		Name string
		Code []*Instruction

		Preds []int
		Succs []int

		LiveIn  set.Bits[VarID]
		LiveOut set.Bits[VarID]
	}

	Param struct {
		Name string
	}

	Func struct {
		Name   string
		Params []Param

		Blocks []*Block

		byLabel map[string]int

		vars    map[string]VarID
		varName []string
	}

	ConstExpr interface {
		constExpr()
	}

	ConstLit struct {
		Num *uint256.Int
	}

	ConstRef struct {
		Name   string
		Symbol bool // true for $const, false for @label
	}

	ConstBin struct {
		Op   string // add sub mul div mod max min
		L, R ConstExpr
	}

	ConstDef struct {
		Name string
		Expr ConstExpr
	}

	Global struct {
		Name string
		Init ConstExpr // nil if omitted
	}

	// Context owns all functions of a compilation unit and the
	// global label and constant tables.
	Context struct {
		Name string

		Consts  []ConstDef
		Globals []Global

		Funcs []*Func

		Ids IdGen
	}

	IdGen struct {
		n int
	}
)

func (ConstLit) constExpr() {}
func (ConstRef) constExpr() {}
func (ConstBin) constExpr() {}

func (g *IdGen) Next(prefix string) string {
	g.n++

	return fmt.Sprintf("%s%d", prefix, g.n)
}

func NewFunc(name string, params ...string) *Func {
	f := &Func{
		Name:    name,
		byLabel: map[string]int{},
		vars:    map[string]VarID{},
	}

	for _, p := range params {
		f.Params = append(f.Params, Param{Name: p})
		f.VarID(p)
	}

	return f
}

func (f *Func) AddBlock(label string) *Block {
	if _, ok := f.byLabel[label]; ok {
		Panicf(f.Name, nil, "duplicate block label %v", label)
	}

	b := &Block{Name: label}

	f.byLabel[label] = len(f.Blocks)
	f.Blocks = append(f.Blocks, b)

	return b
}

func (f *Func) BlockIndex(label string) (int, bool) {
	i, ok := f.byLabel[label]
	return i, ok
}

// Reindex rebuilds the label table after blocks were removed.
func (f *Func) Reindex() {
	f.byLabel = make(map[string]int, len(f.Blocks))

	for i, b := range f.Blocks {
		f.byLabel[b.Name] = i
	}
}

// VarID interns a variable name to a dense id used by bitmap sets.
func (f *Func) VarID(name string) VarID {
	if id, ok := f.vars[name]; ok {
		return id
	}

	id := VarID(len(f.varName))
	f.vars[name] = id
	f.varName = append(f.varName, name)

	return id
}

func (f *Func) VarName(id VarID) string { return f.varName[int(id)] }

func (f *Func) Vars() int { return len(f.varName) }

func (b *Block) Add(ins *Instruction) *Instruction {
	b.Code = append(b.Code, ins)
	return ins
}

func (b *Block) Terminator() *Instruction {
	if len(b.Code) == 0 {
		return nil
	}

	last := b.Code[len(b.Code)-1]
	if !last.Op.IsTerminator() {
		return nil
	}

	return last
}

// Targets lists the label operands naming CFG successors or phi sources.
func (ins *Instruction) Targets() []string {
	switch ins.Op {
	case Jmp:
		return []string{ins.In[0].Name}
	case Jnz:
		return []string{ins.In[1].Name, ins.In[2].Name}
	case Djmp:
		t := make([]string, 0, len(ins.In)-1)

		for _, op := range ins.In[1:] {
			t = append(t, op.Name)
		}

		return t
	case Phi:
		t := make([]string, 0, len(ins.In)/2)

		for i := 0; i < len(ins.In); i += 2 {
			t = append(t, ins.In[i].Name)
		}

		return t
	}

	return nil
}

// StackOps lists the operands the instruction consumes from the stack,
// first operand on top.
func (ins *Instruction) StackOps() []Operand {
	switch ins.Op {
	case Jmp:
		return nil
	case Alloca, Palloca, Calloca:
		// size, offset and id are compile-time literals
		return nil
	case Jnz, Djmp:
		return ins.In[:1]
	case Invoke:
		return ins.In[1:]
	case Phi:
		t := make([]Operand, 0, len(ins.In)/2)

		for i := 1; i < len(ins.In); i += 2 {
			t = append(t, ins.In[i])
		}

		return t
	}

	return ins.In
}

// PhiSource returns the phi operand flowing in from the given block.
func (ins *Instruction) PhiSource(pred string) (Operand, bool) {
	for i := 0; i+1 < len(ins.In); i += 2 {
		if ins.In[i].Name == pred {
			return ins.In[i+1], true
		}
	}

	return Operand{}, false
}

// Validate checks operand arity against the opcode table.
func (ins *Instruction) Validate(fn string) {
	info := ops[ins.Op]

	switch {
	case ins.Op == Phi:
		if len(ins.In) == 0 || len(ins.In)%2 != 0 {
			Panicf(fn, ins, "phi wants label/value pairs, got %d operands", len(ins.In))
		}
	case info.in >= 0 && info.labels >= 0:
		if len(ins.In) != info.in+info.labels {
			Panicf(fn, ins, "%v wants %d operands, got %d", ins.Op, info.in+info.labels, len(ins.In))
		}
	}

	if info.out && ins.Out.Kind != Var {
		Panicf(fn, ins, "%v wants an output variable", ins.Op)
	}

	if !info.out && ins.Out.Kind != None {
		Panicf(fn, ins, "%v cannot have an output", ins.Op)
	}
}

func (ins *Instruction) String() string {
	b := []byte{}

	if ins.Out.Kind == Var {
		b = fmt.Appendf(b, "%v = ", ins.Out)
	}

	b = fmt.Appendf(b, "%v", ins.Op)

	for i, op := range ins.In {
		if i == 0 {
			b = append(b, ' ')
		} else {
			b = append(b, ',', ' ')
		}

		b = fmt.Appendf(b, "%v", op.Value)
	}

	return string(b)
}
