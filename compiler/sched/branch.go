package sched

import (
	"github.com/etchlang/etch/compiler/asm"
	"github.com/etchlang/etch/compiler/ir"
)

func (s *fnSched) emitJmp(ins *ir.Instruction) {
	ti := s.blockIndex(ins.In[0].Name)

	s.edgeTo(ti)
	s.jump(s.qual(ins.In[0].Name), 0)
}

func (s *fnSched) emitJnz(ins *ir.Instruction) {
	cond := ins.In[0].Value
	ti := s.blockIndex(ins.In[1].Name)
	fi := s.blockIndex(ins.In[2].Name)

	s.produceOperands(ins, ins.StackOps())
	s.cleanup(s.keepFor([]int{ti, fi}, cond))

	condLive := cond.Kind == ir.Var &&
		(s.liveInto(ti, cond) || s.liveInto(fi, cond))

	base := s.stack.Layout()

	if cond.Kind == ir.Var && !condLive {
		base = removeOne(base, cond)
	}

	target := append(append([]ir.Value{}, base...), cond)

	s.materialize(target)
	s.branchPermute(target)

	s.layoutIn[ti] = append([]ir.Value{}, base...)
	s.layoutIn[fi] = append([]ir.Value{}, base...)

	s.push(ir.Lbl(s.qual(ins.In[1].Name)))
	s.out = append(s.out, asm.Op{Name: "JUMPI", Debug: s.debug()})
	s.stack.Pop(2) // target and condition

	s.jump(s.qual(ins.In[2].Name), 0)
}

func (s *fnSched) emitDjmp(ins *ir.Instruction) {
	addr := ins.In[0].Value

	succs := make([]int, 0, len(ins.In)-1)
	for _, op := range ins.In[1:] {
		succs = append(succs, s.blockIndex(op.Name))
	}

	s.produceOperands(ins, ins.StackOps())
	s.cleanup(s.keepFor(succs, addr))

	addrLive := false

	if addr.Kind == ir.Var {
		for _, si := range succs {
			addrLive = addrLive || s.liveInto(si, addr)
		}
	}

	base := s.stack.Layout()

	if addr.Kind == ir.Var && !addrLive {
		base = removeOne(base, addr)
	}

	target := append(append([]ir.Value{}, base...), addr)

	s.materialize(target)
	s.branchPermute(target)

	for _, si := range succs {
		s.layoutIn[si] = append([]ir.Value{}, base...)
	}

	s.out = append(s.out, asm.Op{Name: "JUMP", Debug: s.debug()})
	s.stack.Pop(1)
}

func (s *fnSched) emitInvoke(ins *ir.Instruction) {
	callee := ins.In[0].Name
	args := ins.StackOps()

	s.produceOperands(ins, args)
	s.cleanup(func(v ir.Value) bool {
		return s.liveAfter(ins, v) || v.Kind == ir.Label
	})

	ret := ir.Lbl(s.c.Ids.Next(s.f.Name + ".ret"))

	// caller leaves: return position, then arguments, first on top
	target := append(s.stack.Layout(), ret)

	for i := len(args) - 1; i >= 0; i-- {
		target = append(target, args[i].Value)
	}

	s.materialize(target)
	s.branchPermute(target)

	s.jump(callee, 'i')
	s.stack.Pop(len(args) + 1)

	s.label(ret.Name)

	if ins.Out.Kind == ir.Var {
		s.stack.Push(ins.Out)
		s.checkHeight()

		if !s.liveAfter(ins, ins.Out) {
			s.pop()
		}
	}
}

func (s *fnSched) emitRet(ins *ir.Instruction) {
	if s.entry {
		ir.Panicf(s.f.Name, ins, "ret in the entry function")
	}

	vals := ins.StackOps()

	s.produceOperands(ins, vals)
	s.cleanup(func(v ir.Value) bool {
		if v.Equal(retPC) || v.Kind == ir.Label {
			return true
		}

		for _, op := range vals {
			if op.Value.Equal(v) {
				return true
			}
		}

		return false
	})

	target := make([]ir.Value, 0, len(vals)+1)

	for _, op := range vals {
		target = append(target, op.Value)
	}

	target = append(target, retPC)

	s.materialize(target)
	s.branchPermute(target)

	s.out = append(s.out, asm.Op{Name: "JUMP", Jump: 'o', Debug: s.debug()})
	s.stack.Pop(1)
}

// edgeTo reconciles the stack with the successor's expected incoming
// layout, establishing it if this is the first scheduled edge in.
func (s *fnSched) edgeTo(ti int) {
	s.cleanup(s.keepFor([]int{ti}, ir.Value{}))

	layout, ok := s.layoutIn[ti]
	if !ok {
		s.materializePhis(ti)
		s.layoutIn[ti] = s.stack.Layout()

		return
	}

	target := s.translate(layout, ti)

	s.materialize(target)
	s.branchPermute(target)
}

// materializePhis renames this predecessor's phi sources into the
// phi outputs, duplicating sources that are still needed as
// themselves.
func (s *fnSched) materializePhis(ti int) {
	for _, phi := range s.f.Blocks[ti].Code {
		if phi.Op != ir.Phi {
			break
		}

		src, ok := phi.PhiSource(s.block.Name)
		if !ok {
			ir.Panicf(s.f.Name, phi, "no phi source for predecessor %v", s.block.Name)
		}

		if src.Kind != ir.Var {
			s.push(src.Value)
			s.stack.Rename(0, phi.Out)
			continue
		}

		d := s.stack.Depth(src.Value)
		if d < 0 {
			ir.Panicf(s.f.Name, phi, "phi source %v not on the stack %v", src.Value, s.stack)
		}

		if s.liveInto(ti, src.Value) {
			s.dup(d)
			d = 0
		}

		s.stack.Rename(d, phi.Out)
	}
}

// translate rewrites an expected layout into this predecessor's
// terms: phi outputs become the source values flowing in from here.
func (s *fnSched) translate(layout []ir.Value, ti int) []ir.Value {
	target := append([]ir.Value{}, layout...)

	for _, phi := range s.f.Blocks[ti].Code {
		if phi.Op != ir.Phi {
			break
		}

		src, ok := phi.PhiSource(s.block.Name)
		if !ok {
			ir.Panicf(s.f.Name, phi, "no phi source for predecessor %v", s.block.Name)
		}

		for i, v := range target {
			if v.Equal(phi.Out) {
				target[i] = src.Value
			}
		}
	}

	return target
}

// materialize duplicates or pushes values until the stack holds
// enough copies for every target slot.
func (s *fnSched) materialize(target []ir.Value) {
	for i, v := range target {
		need := 1

		for _, w := range target[:i] {
			if w.Equal(v) {
				need = 0 // counted at its first occurrence
				break
			}
		}

		if need == 0 {
			continue
		}

		for _, w := range target[i+1:] {
			if w.Equal(v) {
				need++
			}
		}

		for have := s.stack.Count(v); have < need; have++ {
			d := s.stack.Depth(v)

			if d < 0 {
				if v.Kind == ir.Var {
					ir.Panicf(s.f.Name, s.cur, "value %v required but not on the stack %v", v, s.stack)
				}

				s.push(v)
				continue
			}

			s.dup(d)
		}
	}
}

// branchPermute rearranges the whole stack to the target layout.
func (s *fnSched) branchPermute(target []ir.Value) {
	if s.stack.Height() != len(target) {
		ir.Panicf(s.f.Name, s.cur, "stack %v does not reconcile with layout %v", s.stack, target)
	}

	s.permute(target)
}

// cleanup pops dead values and redundant copies from the reachable
// window so that join points see a canonical stack.
func (s *fnSched) cleanup(keep func(ir.Value) bool) {
	for {
		popped := false

		for d := 0; d <= Reach && d < s.stack.Height(); d++ {
			v := s.stack.Peek(d)

			if keep(v) && !s.deeperCopy(v, d) {
				continue
			}

			s.swap(d)
			s.pop()

			popped = true

			break
		}

		if !popped {
			break
		}
	}
}

func (s *fnSched) deeperCopy(v ir.Value, d int) bool {
	for dd := d + 1; dd < s.stack.Height(); dd++ {
		if s.stack.Peek(dd).Equal(v) {
			return true
		}
	}

	return false
}

// keepFor keeps values live into any of the successors, phi sources
// flowing from this block, the return position and one extra value.
func (s *fnSched) keepFor(succs []int, extra ir.Value) func(ir.Value) bool {
	return func(v ir.Value) bool {
		if v.Kind == ir.Label || v.Equal(retPC) {
			return true
		}

		if !extra.IsZero() && v.Equal(extra) {
			return true
		}

		if v.Kind != ir.Var {
			return false
		}

		for _, si := range succs {
			if s.liveInto(si, v) {
				return true
			}

			for _, phi := range s.f.Blocks[si].Code {
				if phi.Op != ir.Phi {
					break
				}

				if src, ok := phi.PhiSource(s.block.Name); ok && src.Value.Equal(v) {
					return true
				}
			}
		}

		return false
	}
}

func (s *fnSched) liveInto(ti int, v ir.Value) bool {
	if v.Kind != ir.Var {
		return false
	}

	return s.f.Blocks[ti].LiveIn.IsSet(s.f.VarID(v.Name))
}

func (s *fnSched) blockIndex(label string) int {
	i, ok := s.f.BlockIndex(label)
	if !ok {
		ir.Panicf(s.f.Name, s.cur, "jump to unknown label %v", label)
	}

	return i
}

func (s *fnSched) jump(label string, class byte) {
	s.push(ir.Lbl(label))
	s.out = append(s.out, asm.Op{Name: "JUMP", Jump: class, Debug: s.debug()})
	s.stack.Pop(1)
}

func removeOne(layout []ir.Value, v ir.Value) []ir.Value {
	for i := len(layout) - 1; i >= 0; i-- {
		if layout[i].Equal(v) {
			return append(layout[:i:i], layout[i+1:]...)
		}
	}

	return layout
}
