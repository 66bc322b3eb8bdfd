package sched

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/etchlang/etch/compiler/asm"
	"github.com/etchlang/etch/compiler/cfg"
	"github.com/etchlang/etch/compiler/ir"
)

type (
	// fnSched is the scheduling state of one function. Constructed
	// fresh per function and dropped when its code is emitted.
	fnSched struct {
		c *ir.Context
		f *ir.Func

		entry bool // first function, no return pc on the stack

		producer map[string]*ir.Instruction
		insBlock map[*ir.Instruction]int

		visited  map[*ir.Instruction]bool
		layoutIn map[int][]ir.Value

		stack *Stack
		block *ir.Block
		cur   *ir.Instruction

		out []asm.Item
	}
)

// retPC is the slot holding the caller's return position. It is kept
// alive for the whole function by construction, not by liveness.
var retPC = ir.Variable(".retpc")

// Schedule emits a symbolic stack-machine program for one function.
// CFG and liveness annotations must be in place.
func Schedule(ctx context.Context, c *ir.Context, f *ir.Func, entry bool) (items []asm.Item, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "sched: function", "name", f.Name, "blocks", len(f.Blocks))
	defer tr.Finish("err", &err)

	s := &fnSched{
		c:        c,
		f:        f,
		entry:    entry,
		producer: map[string]*ir.Instruction{},
		insBlock: map[*ir.Instruction]int{},
		visited:  map[*ir.Instruction]bool{},
		layoutIn: map[int][]ir.Value{},
	}

	for i, b := range f.Blocks {
		for _, ins := range b.Code {
			s.insBlock[ins] = i

			if ins.Out.Kind == ir.Var {
				s.producer[ins.Out.Name] = ins
			}
		}
	}

	s.layoutIn[0] = s.entryLayout()

	s.label(f.Name)

	for _, i := range cfg.ReversePostorder(f) {
		s.scheduleBlock(i)
	}

	if tr.If("dump_asm") {
		tr.Printw("assembly", "func", f.Name, "text", string(asm.Dump(nil, s.out)))
	}

	return s.out, nil
}

// entryLayout is the stack as the caller leaves it: return position
// at the bottom, then arguments with the first one on top.
func (s *fnSched) entryLayout() []ir.Value {
	var l []ir.Value

	if !s.entry {
		l = append(l, retPC)
	}

	for i := len(s.f.Params) - 1; i >= 0; i-- {
		l = append(l, ir.Variable(s.f.Params[i].Name))
	}

	return l
}

func (s *fnSched) scheduleBlock(i int) {
	b := s.f.Blocks[i]

	layout, ok := s.layoutIn[i]
	if !ok {
		ir.Panicf(s.f.Name, nil, "block %v scheduled before any predecessor", b.Name)
	}

	s.block = b
	s.stack = NewStack(layout)

	if i != 0 {
		s.label(s.qual(b.Name))
	}

	for _, ins := range b.Code {
		s.emit(ins)
	}

	s.block = nil
	s.stack = nil
}

// emit schedules one instruction, first ensuring its operands are on
// the stack. Memoized: a diamond-shaped dependency graph emits each
// producer once.
func (s *fnSched) emit(ins *ir.Instruction) {
	if s.visited[ins] {
		return
	}

	s.visited[ins] = true

	prev := s.cur
	s.cur = ins
	defer func() { s.cur = prev }()

	switch ins.Op {
	case ir.Phi:
		s.emitPhi(ins)
	case ir.Assign:
		s.emitAssign(ins)
	case ir.Alloca, ir.Palloca, ir.Calloca:
		s.emitAlloca(ins)
	case ir.Jmp:
		s.emitJmp(ins)
	case ir.Jnz:
		s.emitJnz(ins)
	case ir.Djmp:
		s.emitDjmp(ins)
	case ir.Invoke:
		s.emitInvoke(ins)
	case ir.Ret:
		s.emitRet(ins)
	default:
		s.emitPlain(ins)
	}
}

func (s *fnSched) emitPlain(ins *ir.Instruction) {
	if ins.Op.HasOutput() && !ins.Op.Volatile() && !s.liveAfter(ins, ins.Out) {
		return // pure value nothing reads
	}

	in := ins.StackOps()

	s.produceOperands(ins, in)
	s.placeOperands(ins, in)

	s.op(ins.Op.Mnemonic())
	s.stack.Pop(len(in))

	if !ins.Op.HasOutput() {
		return
	}

	s.stack.Push(ins.Out)

	if !s.liveAfter(ins, ins.Out) {
		s.pop()
	}
}

// produceOperands schedules the in-block producer of every operand
// that is not on the stack yet.
func (s *fnSched) produceOperands(ins *ir.Instruction, in []ir.Operand) {
	for _, op := range in {
		if op.Kind != ir.Var {
			continue
		}

		p, ok := s.producer[op.Name]
		if !ok || s.visited[p] {
			continue
		}

		if s.insBlock[p] != s.insBlock[ins] {
			continue // lives on the stack across the block edge
		}

		s.emit(p)
	}
}

// placeOperands arranges the operands on top of the stack, first
// operand on top, duplicating the ones still needed afterwards.
func (s *fnSched) placeOperands(ins *ir.Instruction, in []ir.Operand) {
	// first materialize a dedicated copy per operand slot, last
	// operand first so the top ends up in order already
	for k := len(in) - 1; k >= 0; k-- {
		op := in[k]
		v := op.Value

		// literals and label or symbol references are constants,
		// every operand slot gets its own push
		if v.Kind != ir.Var {
			s.push(v)
			continue
		}

		again := s.liveAfter(ins, v)

		for _, other := range in[:k] {
			if other.Value.Equal(v) {
				again = true
				break
			}
		}

		if !again {
			continue
		}

		d := s.stack.Depth(v)
		if d < 0 {
			ir.Panicf(s.f.Name, ins, "operand %v not on the stack %v", v, s.stack)
		}

		s.dup(d)
	}

	// then permute the top slots into operand order
	target := make([]ir.Value, len(in))

	for k, op := range in {
		target[len(in)-1-k] = op.Value // first operand on top
	}

	s.permute(target)
}

// permute rearranges the top len(target) slots to match target
// (bottom first). Every required copy must already be on the stack.
func (s *fnSched) permute(target []ir.Value) {
	n := len(target)

	for i := 0; i < n; i++ {
		want := target[i]
		final := n - 1 - i

		if s.stack.Peek(final).Equal(want) {
			continue
		}

		d := s.findMovable(want, final, n)
		if d < 0 {
			ir.Panicf(s.f.Name, s.cur, "value %v not movable to depth %d on %v", want, final, s.stack)
		}

		if d != 0 {
			s.swap(d)
		}

		if final != 0 {
			s.swap(final)
		}
	}
}

// findMovable looks for a copy of v outside the already-settled deep
// slots of the target region.
func (s *fnSched) findMovable(v ir.Value, final, n int) int {
	for d := 0; d < s.stack.Height(); d++ {
		if d > final && d < n {
			continue // settled slots of the target region
		}

		if s.stack.Peek(d).Equal(v) {
			return d
		}
	}

	return -1
}

func (s *fnSched) liveAfter(ins *ir.Instruction, v ir.Value) bool {
	if v.Kind != ir.Var {
		return false
	}

	if v.Equal(retPC) {
		return true
	}

	return ins.LiveAfter.IsSet(s.f.VarID(v.Name))
}
