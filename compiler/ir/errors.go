package ir

import (
	"fmt"

	"tlog.app/go/loc"
)

type (
	// PanicError is an internal invariant violation. It always means
	// a bug in an earlier stage or in the compiler itself, so it is
	// raised as a panic and only converted to an error at the
	// pipeline boundary.
	PanicError struct {
		Func  string
		Instr string
		Msg   string
		PC    loc.PC
	}
)

func Panicf(fn string, ins *Instruction, f string, args ...interface{}) {
	e := &PanicError{
		Func: fn,
		Msg:  fmt.Sprintf(f, args...),
		PC:   loc.Caller(1),
	}

	if ins != nil {
		e.Instr = ins.String()
	}

	panic(e)
}

func (e *PanicError) Error() string {
	name, file, line := e.PC.NameFileLine()

	b := fmt.Sprintf("internal: %v", e.Msg)

	if e.Func != "" {
		b += fmt.Sprintf(" (func %v", e.Func)

		if e.Instr != "" {
			b += fmt.Sprintf(", at %v", e.Instr)
		}

		b += ")"
	}

	b += fmt.Sprintf(" [%v at %v:%d]", name, file, line)

	return b
}
