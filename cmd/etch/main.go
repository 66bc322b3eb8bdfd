package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/etchlang/etch/compiler"
	"github.com/etchlang/etch/compiler/asm"
	"github.com/etchlang/etch/compiler/format"
	"github.com/etchlang/etch/compiler/parse"
)

func main() {
	compileCmd := &cli.Command{
		Name:   "compile",
		Action: compileAct,
		Args:   cli.Args{},
	}

	dumpCmd := &cli.Command{
		Name:   "dump",
		Action: dumpAct,
		Args:   cli.Args{},
	}

	fmtCmd := &cli.Command{
		Name:   "fmt",
		Action: fmtAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "etch",
		Description: "etch compiles intermediate form units to stack machine bytecode",
		Commands: []*cli.Command{
			compileCmd,
			dumpCmd,
			fmtCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		res, err := compiler.CompileFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "compile %v", a)
		}

		fmt.Printf("%s\n", hex.EncodeToString(res.Code))

		for name, pc := range res.Symbols {
			tlog.Printw("symbol", "name", name, "pc", pc)
		}
	}

	return nil
}

func dumpAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		u, err := parse.Unit(ctx, a, text)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		items, err := compiler.Schedule(ctx, u)
		if err != nil {
			return errors.Wrap(err, "schedule %v", a)
		}

		fmt.Printf("%s", asm.Dump(nil, items))
	}

	return nil
}

func fmtAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		u, err := parse.Unit(ctx, a, text)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		b, err := format.Format(ctx, nil, u)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		fmt.Printf("%s", b)
	}

	return nil
}
