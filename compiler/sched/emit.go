package sched

import (
	"fmt"

	"github.com/etchlang/etch/compiler/asm"
	"github.com/etchlang/etch/compiler/ir"
)

// emitPhi renames the stack slot holding one of the phi's sources in
// place. The join edge already materialized the slot for
// multi-predecessor blocks, so this mostly fires for single-pred
// phis.
func (s *fnSched) emitPhi(ins *ir.Instruction) {
	if s.stack.Depth(ins.Out) >= 0 {
		return // renamed at the incoming edge
	}

	for _, op := range ins.StackOps() {
		d := s.stack.Depth(op.Value)
		if d < 0 {
			continue
		}

		if s.liveAfter(ins, op.Value) {
			s.dup(d)
			d = 0
		}

		s.stack.Rename(d, ins.Out)

		return
	}

	ir.Panicf(s.f.Name, ins, "no phi source on the stack %v", s.stack)
}

// emitAssign binds a new name to a value. Costs nothing when the
// source slot can simply be relabeled.
func (s *fnSched) emitAssign(ins *ir.Instruction) {
	if !s.liveAfter(ins, ins.Out) {
		return
	}

	src := ins.In[0].Value

	if src.Kind != ir.Var {
		s.push(src)
		s.stack.Rename(0, ins.Out)

		return
	}

	d := s.stack.Depth(src)
	if d < 0 {
		ir.Panicf(s.f.Name, ins, "source %v not on the stack %v", src, s.stack)
	}

	if s.liveAfter(ins, src) {
		s.dup(d)
		d = 0
	}

	s.stack.Rename(d, ins.Out)
}

// emitAlloca materializes the allocation's base offset. The offset
// operand was fixed by earlier lowering, so the output is just a
// literal address.
func (s *fnSched) emitAlloca(ins *ir.Instruction) {
	if !s.liveAfter(ins, ins.Out) {
		return
	}

	off := ins.In[1].Value
	if off.Kind != ir.Lit {
		ir.Panicf(s.f.Name, ins, "%v offset is not a literal", ins.Op)
	}

	s.push(off)
	s.stack.Rename(0, ins.Out)
}

func (s *fnSched) qual(label string) string {
	return s.f.Name + "." + label
}

// symbolic item emission, each helper keeps the model in sync

func (s *fnSched) label(name string) {
	s.out = append(s.out, asm.Label{Name: name}, asm.Op{Name: "JUMPDEST", Debug: s.debug()})
}

func (s *fnSched) op(mnem string) {
	if mnem == "" {
		ir.Panicf(s.f.Name, s.cur, "opcode %v has no direct encoding", s.cur.Op)
	}

	it := asm.Op{Name: mnem, Debug: s.debug()}

	if s.cur != nil && s.cur.Op == ir.Revert {
		it.Err = s.cur.ErrMsg
	}

	s.out = append(s.out, it)
}

func (s *fnSched) push(v ir.Value) {
	switch v.Kind {
	case ir.Lit:
		s.out = append(s.out, asm.Push{Num: v.Num, Debug: s.debug()})
	case ir.Label:
		if v.Symbol {
			s.out = append(s.out, asm.PushOffset{Name: v.Name, Debug: s.debug()})
		} else {
			s.out = append(s.out, asm.PushLabel{Name: v.Name, Debug: s.debug()})
		}
	default:
		ir.Panicf(s.f.Name, s.cur, "cannot push %v", v)
	}

	s.stack.Push(v)
	s.checkHeight()
}

func (s *fnSched) pop() {
	s.out = append(s.out, asm.Op{Name: "POP", Debug: s.debug()})
	s.stack.Pop(1)
}

func (s *fnSched) swap(depth int) {
	if depth == 0 {
		return
	}

	if depth > Reach {
		ir.Panicf(s.f.Name, s.cur, "swap depth %d beyond the addressable window on %v", depth, s.stack)
	}

	if depth >= s.stack.Height() {
		ir.Panicf(s.f.Name, s.cur, "swap depth %d on stack of height %d", depth, s.stack.Height())
	}

	s.out = append(s.out, asm.Op{Name: fmt.Sprintf("SWAP%d", depth), Debug: s.debug()})
	s.stack.Swap(depth)
}

func (s *fnSched) dup(depth int) {
	if depth+1 > Reach {
		ir.Panicf(s.f.Name, s.cur, "dup depth %d beyond the addressable window on %v", depth, s.stack)
	}

	if depth >= s.stack.Height() {
		ir.Panicf(s.f.Name, s.cur, "dup depth %d on stack of height %d", depth, s.stack.Height())
	}

	s.out = append(s.out, asm.Op{Name: fmt.Sprintf("DUP%d", depth+1), Debug: s.debug()})
	s.stack.Dup(depth)
	s.checkHeight()
}

func (s *fnSched) checkHeight() {
	if s.stack.Height() > MaxHeight {
		ir.Panicf(s.f.Name, s.cur, "stack height %d exceeds the machine limit", s.stack.Height())
	}
}

func (s *fnSched) debug() *ir.Debug {
	if s.cur == nil {
		return nil
	}

	return s.cur.Debug
}
