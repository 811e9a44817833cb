package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/pcalc/compiler"
	"github.com/slowlang/pcalc/compiler/asm"
	"github.com/slowlang/pcalc/compiler/back"
	"github.com/slowlang/pcalc/compiler/build"
	"github.com/slowlang/pcalc/compiler/format"
	"github.com/slowlang/pcalc/compiler/front"
)

func main() {
	exprFlags := func() []*cli.Flag {
		return []*cli.Flag{
			cli.NewFlag("format,f", compiler.DefaultFormat, "printf template for the result (second argument overrides)"),
			cli.NewFlag("max-depth", front.DefaultMaxDepth, "max expression nesting"),
		}
	}

	outFlag := func() *cli.Flag {
		return cli.NewFlag("output,o", "test", "output base name, assembly goes to <output>.asm")
	}

	parseCmd := &cli.Command{
		Name:        "parse",
		Description: "parse expressions and print their trees",
		Action:      parseAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("max-depth", front.DefaultMaxDepth, "max expression nesting"),
		},
	}

	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile expression into fasm assembly",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags:       append(exprFlags(), outFlag()),
	}

	buildCmd := &cli.Command{
		Name:        "build",
		Description: "compile expression, assemble it with fasm and link with gcc",
		Action:      buildAct,
		Args:        cli.Args{},
		Flags: append(exprFlags(),
			outFlag(),
			cli.NewFlag("fasm", "fasm", "assembler command"),
			cli.NewFlag("cc", "gcc", "linker command"),
		),
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "compile expression and execute the assembly on the built-in machine",
		Action:      runAct,
		Args:        cli.Args{},
		Flags:       exprFlags(),
	}

	app := &cli.Command{
		Name:        "pcalc",
		Description: "pcalc compiles prefix arithmetic expressions into x86-64 assembly",
		Before:      before,
		After:       after,
		Flags: []*cli.Flag{
			cli.NewFlag("log", "stderr", "log output file (or stderr)"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics (dump_ast, dump_asm, trace, lex, tool)"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			parseCmd,
			compileCmd,
			buildCmd,
			runCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

var logFile io.Closer

func before(c *cli.Command) error {
	w, cl, err := openLog(c.String("log"))
	if err != nil {
		return err
	}

	logFile = cl

	tlog.DefaultLogger = tlog.New(tlog.NewConsoleWriter(w, tlog.LstdFlags))

	tlog.SetVerbosity(c.String("verbosity"))

	return nil
}

func after(c *cli.Command) error {
	if logFile == nil {
		return nil
	}

	err := logFile.Close()
	logFile = nil

	if err != nil {
		return errors.Wrap(err, "close log file")
	}

	return nil
}

// openLog returns stderr for empty name or "stderr".
// Otherwise it creates the file, which the caller must close.
func openLog(name string) (io.Writer, io.Closer, error) {
	if name == "" || name == "stderr" {
		return os.Stderr, nil, nil
	}

	f, err := os.Create(name)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open log file")
	}

	return f, f, nil
}

func parseAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	p := &front.Parser{MaxDepth: c.Int("max-depth")}

	for _, a := range c.Args {
		x, err := p.Parse(ctx, []byte(a))
		if err != nil {
			return errors.Wrap(err, "parse %q", a)
		}

		b, err := format.Indent(ctx, nil, x)
		if err != nil {
			return errors.Wrap(err, "format")
		}

		fmt.Printf("%s\n", b)
	}

	return nil
}

func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	_, err = compileTo(ctx, c)

	return err
}

func buildAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	out, err := compileTo(ctx, c)
	if err != nil {
		return err
	}

	b := build.New()
	b.Assembler = c.String("fasm")
	b.Linker = c.String("cc")

	err = b.Build(ctx, out)
	if err != nil {
		return errors.Wrap(err, "build")
	}

	return nil
}

func runAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	expr, opts := input(c)

	obj, err := compiler.Compile(ctx, expr, opts)
	if err != nil {
		return errors.Wrap(err, "compile")
	}

	p, err := asm.Parse(ctx, obj)
	if err != nil {
		return errors.Wrap(err, "read assembly")
	}

	m := &asm.Machine{
		Externs: map[asm.Sym]asm.Extern{
			back.Printf: asm.Printf(os.Stdout),
		},
	}

	exit, err := m.Run(ctx, p)
	if err != nil {
		return errors.Wrap(err, "run")
	}

	if exit != 0 {
		return errors.New("exit status %d", exit)
	}

	return nil
}

func compileTo(ctx context.Context, c *cli.Command) (out string, err error) {
	expr, opts := input(c)

	obj, err := compiler.Compile(ctx, expr, opts)
	if err != nil {
		return "", errors.Wrap(err, "compile")
	}

	out = c.String("output")

	err = compiler.WriteFile(ctx, out+".asm", obj)
	if err != nil {
		return "", err
	}

	return out, nil
}

func input(c *cli.Command) (expr []byte, opts compiler.Options) {
	return inputArgs(c.Args, c.String("format"), c.Int("max-depth"))
}

// inputArgs picks expression and template.
// Positional arguments override the default expression and the format flag.
// Explicitly given empty template is kept.
func inputArgs(args []string, format string, maxDepth int) (expr []byte, opts compiler.Options) {
	expr = []byte(compiler.DefaultExpr)
	if len(args) > 0 {
		expr = []byte(args[0])
	}

	opts.Format = format
	if len(args) > 1 {
		opts.Format = args[1]
	}

	opts.MaxDepth = maxDepth

	return expr, opts
}
