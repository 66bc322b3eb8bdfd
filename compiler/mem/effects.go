package mem

import (
	"github.com/etchlang/etch/compiler/ir"
)

const wordSize = 32

// Writes derives the location an instruction writes.
func (a *Analysis) Writes(f *ir.Func, ins *ir.Instruction) Location {
	if ins.Op.Barrier() {
		// control escapes the analysis, anything may be written
		return Undefined()
	}

	switch ins.Op {
	case ir.Mstore:
		return a.locAt(f, ins.In[0], Memory, i64(wordSize))
	case ir.Sstore:
		return a.locAt(f, ins.In[0], Storage, i64(1))
	case ir.Tstore:
		return a.locAt(f, ins.In[0], Transient, i64(1))
	case ir.Calldatacopy, ir.Codecopy, ir.Returndatacopy, ir.Mcopy:
		return a.locAt(f, ins.In[0], Memory, litSize(ins.In[2]))
	}

	return Empty()
}

// Reads derives the location an instruction reads.
func (a *Analysis) Reads(f *ir.Func, ins *ir.Instruction) Location {
	if ins.Op.Barrier() {
		// calls observe memory and leave storage to later
		// transactions, same for stop and return
		return Undefined()
	}

	switch ins.Op {
	case ir.Mload:
		return a.locAt(f, ins.In[0], Memory, i64(wordSize))
	case ir.Sload:
		return a.locAt(f, ins.In[0], Storage, i64(1))
	case ir.Tload:
		return a.locAt(f, ins.In[0], Transient, i64(1))
	case ir.Mcopy:
		return a.locAt(f, ins.In[1], Memory, litSize(ins.In[2]))
	case ir.Sha3, ir.Revert:
		return a.locAt(f, ins.In[0], Memory, litSize(ins.In[1]))
	case ir.Log0, ir.Log1, ir.Log2, ir.Log3, ir.Log4:
		return a.locAt(f, ins.In[0], Memory, litSize(ins.In[1]))
	}

	return Empty()
}

// locAt resolves an address operand to a location of the given size.
// Storage and transient slots survive the frame, so their locations
// stay volatile and dead-store walks leave them alone.
func (a *Analysis) locAt(f *ir.Func, addr ir.Operand, space Space, size *int64) Location {
	if space != Memory {
		return a.locAtMem(f, addr, space, size).WithVolatile()
	}

	return a.locAtMem(f, addr, space, size)
}

func (a *Analysis) locAtMem(f *ir.Func, addr ir.Operand, space Space, size *int64) Location {
	if addr.Kind == ir.Lit {
		if !addr.Num.IsUint64() {
			return UnknownSegment(space, size)
		}

		off := int64(addr.Num.Uint64())

		return Location{kind: segment, space: space, off: &off, size: size}
	}

	if addr.Kind != ir.Var || space != Memory || !addr.AddrAccess {
		return UnknownSegment(space, size)
	}

	ptrs := a.Ptrs(f.Name, addr.Name)
	if len(ptrs) == 0 {
		return UnknownSegment(space, size)
	}

	if len(ptrs) == 1 {
		return Abstract(space, ptrs[0].Base, ptrs[0].Off, size)
	}

	base := ptrs[0].Base

	for _, p := range ptrs[1:] {
		if p.Base != base {
			// may point into distinct allocations
			return UnknownSegment(space, size)
		}
	}

	return Abstract(space, base, nil, size)
}

// addrOperands lists the operand slots an opcode dereferences.
func addrOperands(op ir.Op) []int {
	switch op {
	case ir.Mload, ir.Sload, ir.Tload,
		ir.Mstore, ir.Sstore, ir.Tstore,
		ir.Calldatacopy, ir.Codecopy, ir.Returndatacopy,
		ir.Gep, ir.Sha3, ir.Revert, ir.Return,
		ir.Log0, ir.Log1, ir.Log2, ir.Log3, ir.Log4:
		return []int{0}
	case ir.Mcopy:
		return []int{0, 1}
	}

	return nil
}

// markAddrOperands flags operands used as addresses, the location
// resolver only follows pointers that are actually dereferenced.
func markAddrOperands(c *ir.Context) {
	for _, f := range c.Funcs {
		for _, b := range f.Blocks {
			for _, ins := range b.Code {
				for _, k := range addrOperands(ins.Op) {
					if k < len(ins.In) {
						ins.In[k].AddrAccess = true
					}
				}
			}
		}
	}
}

func litSize(op ir.Operand) *int64 {
	if op.Kind == ir.Lit && op.Num.IsUint64() {
		return i64(int64(op.Num.Uint64()))
	}

	return nil
}
