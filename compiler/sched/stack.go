package sched

import (
	"github.com/etchlang/etch/compiler/ir"
)

// EVM stack discipline: 1024 slots total, only the top 16 reachable
// by DUP and SWAP.
const (
	MaxHeight = 1024
	Reach     = 16
)

type (
	// Stack mirrors the runtime operand stack during scheduling of
	// one function. Slot 0 is the bottom, the top is the last slot.
	Stack struct {
		vals []ir.Value
	}
)

func (s *Stack) Height() int { return len(s.vals) }

func (s *Stack) Clone() *Stack {
	c := &Stack{vals: make([]ir.Value, len(s.vals))}
	copy(c.vals, s.vals)

	return c
}

// Layout snapshots the stack bottom first.
func (s *Stack) Layout() []ir.Value {
	return append([]ir.Value{}, s.vals...)
}

func NewStack(layout []ir.Value) *Stack {
	return &Stack{vals: append([]ir.Value{}, layout...)}
}

// Peek returns the value at the given depth, 0 being the top.
func (s *Stack) Peek(depth int) ir.Value {
	i := len(s.vals) - 1 - depth
	if i < 0 {
		return ir.Value{}
	}

	return s.vals[i]
}

// Depth finds the shallowest slot holding v, -1 if absent.
func (s *Stack) Depth(v ir.Value) int {
	for d := 0; d < len(s.vals); d++ {
		if s.Peek(d).Equal(v) {
			return d
		}
	}

	return -1
}

// Count counts slots holding v.
func (s *Stack) Count(v ir.Value) (n int) {
	for _, x := range s.vals {
		if x.Equal(v) {
			n++
		}
	}

	return n
}

func (s *Stack) Push(v ir.Value) {
	s.vals = append(s.vals, v)
}

func (s *Stack) Pop(n int) {
	s.vals = s.vals[:len(s.vals)-n]
}

// Swap exchanges the top with the slot at the given depth.
func (s *Stack) Swap(depth int) {
	i := len(s.vals) - 1
	j := i - depth

	s.vals[i], s.vals[j] = s.vals[j], s.vals[i]
}

// Dup pushes a copy of the slot at the given depth.
func (s *Stack) Dup(depth int) {
	s.vals = append(s.vals, s.Peek(depth))
}

// Rename relabels the slot at the given depth in place.
func (s *Stack) Rename(depth int, v ir.Value) {
	s.vals[len(s.vals)-1-depth] = v
}

func (s *Stack) String() string {
	b := []byte{'['}

	for i, v := range s.vals {
		if i != 0 {
			b = append(b, ' ')
		}

		b = append(b, v.String()...)
	}

	return string(append(b, ']'))
}
