package back

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/pcalc/compiler/asm"
	"github.com/slowlang/pcalc/compiler/ast"
)

// Program symbols.
const (
	Entry  asm.Sym = "main"
	Printf asm.Sym = "printf"
	Msg    asm.Sym = "msg"
)

// CompileProgram appends an ELF64 fasm program which evaluates x
// and prints the result with printf using format.
func (c *Compiler) CompileProgram(ctx context.Context, b []byte, x ast.Expr, format string) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile program", "format", format)
	defer tr.Finish("err", &err)

	st := len(b)
	r := c.conv()

	for _, d := range []asm.Instr{
		asm.Format("ELF64"),
		asm.Section{Name: ".text", Flags: []string{"executable"}},
		asm.Public(Entry),
		asm.Extrn(Printf),
		asm.Data{Name: Msg, Bytes: Template(format)},
		asm.Label(Entry),
	} {
		b = asm.Append(b, d)
	}

	b, err = c.compileExpr(ctx, b, r, x)
	if err != nil {
		return nil, errors.Wrap(err, "expr")
	}

	for _, d := range []asm.Instr{
		asm.Mov{Dst: asm.RDI, Src: Msg},
		asm.Mov{Dst: asm.RSI, Src: r.Acc},
		asm.Xor{Dst: asm.RAX, Src: asm.RAX}, // no vector registers used by variadic call
		asm.Call{Sym: Printf},
		asm.Mov{Dst: asm.RAX, Src: asm.Imm(0)},
		asm.Ret{},
	} {
		b = asm.Append(b, d)
	}

	dumpCode(tr, b[st:])

	return b, nil
}

// Template returns printf format data: format, newline and NUL.
func Template(format string) []byte {
	d := make([]byte, 0, len(format)+2)
	d = append(d, format...)

	return append(d, '\n', 0)
}
