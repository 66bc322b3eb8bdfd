package mem

import (
	"fmt"
)

type (
	Space int

	locKind int

	// Alloc is one abstract allocation discovered by pointer
	// analysis. Identity is pointer identity; distinct allocations
	// never alias.
	Alloc struct {
		Func string
		ID   int64
		Size int64
	}

	// Ptr is one possible target of an address value: a base
	// allocation plus an offset into it. A nil offset is unknown.
	Ptr struct {
		Base *Alloc
		Off  *int64
	}

	// Location is the memory range one instruction reads or writes.
	// Nil offset or size means unknown at compile time, and every
	// query involving unknowns resolves conservatively.
	Location struct {
		kind  locKind
		space Space

		base *Alloc // abstract only

		off  *int64
		size *int64

		volatile bool
	}
)

const (
	Memory Space = iota
	Storage
	Transient
)

const (
	empty locKind = iota
	undef
	segment
	abstract
)

// Empty is the no-access location.
func Empty() Location { return Location{kind: empty} }

// Undefined conservatively touches everything, in every space.
func Undefined() Location { return Location{kind: undef} }

func Segment(space Space, off, size int64) Location {
	return Location{kind: segment, space: space, off: &off, size: &size}
}

// UnknownSegment is a concrete-space access at an unknown offset.
func UnknownSegment(space Space, size *int64) Location {
	return Location{kind: segment, space: space, size: size}
}

func Abstract(space Space, base *Alloc, off, size *int64) Location {
	return Location{kind: abstract, space: space, base: base, off: off, size: size}
}

func (l Location) IsEmpty() bool     { return l.kind == empty }
func (l Location) IsUndefined() bool { return l.kind == undef }

func (l Location) Volatile() bool { return l.volatile }

func (l Location) WithVolatile() Location {
	l.volatile = true
	return l
}

// Fixed reports whether both offset and size are known, so the
// location can be tracked as a concrete range.
func (l Location) Fixed() bool {
	switch l.kind {
	case segment, abstract:
		return l.off != nil && l.size != nil
	}

	return false
}

// MayOverlap reports whether two locations can touch the same cell.
// Any unknown dimension forces true.
func (l Location) MayOverlap(x Location) bool {
	if l.kind == empty || x.kind == empty {
		return false
	}

	if l.kind == undef || x.kind == undef {
		return true
	}

	if l.space != x.space {
		return false
	}

	if l.kind == abstract && x.kind == abstract {
		if l.base != x.base {
			return false
		}

		return rangesMayOverlap(l.off, l.size, x.off, x.size)
	}

	if l.kind != x.kind {
		// a concrete access at an unknown offset may land in any
		// allocation, and abstract allocations live somewhere
		// concrete eventually
		return true
	}

	return rangesMayOverlap(l.off, l.size, x.off, x.size)
}

// CompletelyContains reports whether x's range is provably inside l's.
func (l Location) CompletelyContains(x Location) bool {
	if x.kind == empty {
		return true
	}

	if l.kind == empty {
		return false
	}

	if l.kind == undef {
		return true
	}

	if x.kind == undef {
		return false
	}

	if l.space != x.space || l.kind != x.kind {
		return false
	}

	if l.kind == abstract && l.base != x.base {
		return false
	}

	if l.off == nil || l.size == nil || x.off == nil || x.size == nil {
		return false
	}

	return *x.off >= *l.off && *x.off+*x.size <= *l.off+*l.size
}

func rangesMayOverlap(aoff, asize, boff, bsize *int64) bool {
	if aoff == nil || asize == nil || boff == nil || bsize == nil {
		return true
	}

	if *aoff+*asize <= *boff {
		return false
	}

	if *boff+*bsize <= *aoff {
		return false
	}

	return true
}

func (l Location) String() string {
	switch l.kind {
	case empty:
		return "empty"
	case undef:
		return "undefined"
	}

	s := "mem"

	switch l.space {
	case Storage:
		s = "storage"
	case Transient:
		s = "transient"
	}

	if l.kind == abstract {
		s = fmt.Sprintf("%s:alloc%d", s, l.base.ID)
	}

	return fmt.Sprintf("%s[%s:%s]", s, optInt(l.off), optInt(l.size))
}

func optInt(p *int64) string {
	if p == nil {
		return "?"
	}

	return fmt.Sprintf("%d", *p)
}
