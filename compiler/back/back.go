package back

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/pcalc/compiler/asm"
	"github.com/slowlang/pcalc/compiler/ast"
)

type (
	// Conv is the register convention of generated code.
	Conv struct {
		Acc     asm.Reg // every node leaves its value here
		Second  asm.Reg // left operand restored from the stack
		Divisor asm.Reg
		High    asm.Reg // high half of the dividend, zeroed before div
	}

	// Compiler generates stack machine code for expression trees.
	// Zero value uses AMD64 convention.
	Compiler struct {
		Conv Conv
	}
)

var AMD64 = Conv{
	Acc:     asm.RAX,
	Second:  asm.RBX,
	Divisor: asm.RCX,
	High:    asm.RDX,
}

var ErrUnsupported = errors.New("unsupported")

func New() *Compiler {
	return &Compiler{Conv: AMD64}
}

// CompileExpr appends code computing x into the accumulator.
// Nodes are emitted in post-order, a binary node is followed by an empty line.
func (c *Compiler) CompileExpr(ctx context.Context, b []byte, x ast.Expr) (_ []byte, err error) {
	return c.compileExpr(ctx, b, c.conv(), x)
}

func (c *Compiler) compileExpr(ctx context.Context, b []byte, r Conv, x ast.Expr) (_ []byte, err error) {
	switch x := x.(type) {
	case ast.Literal:
		return asm.Append(b, asm.Mov{Dst: r.Acc, Src: asm.Imm(x.Value)}), nil
	case ast.BinaryOp:
		b, err = c.compileExpr(ctx, b, r, x.Left)
		if err != nil {
			return nil, errors.Wrap(err, "%v left", x.Op)
		}

		b = asm.Append(b, asm.Push{Src: r.Acc})

		b, err = c.compileExpr(ctx, b, r, x.Right)
		if err != nil {
			return nil, errors.Wrap(err, "%v right", x.Op)
		}

		b = asm.Append(b, asm.Pop{Dst: r.Second})

		b, err = c.compileOp(b, r, x.Op)
		if err != nil {
			return nil, errors.Wrap(err, "pos %d", x.Pos)
		}

		return append(b, '\n'), nil
	default:
		return nil, errors.Wrap(ErrUnsupported, "expr %T", x)
	}
}

// compileOp combines Second (left value) and Acc (right value) into Acc.
func (c *Compiler) compileOp(b []byte, r Conv, op ast.Op) ([]byte, error) {
	switch op {
	case ast.Add:
		b = asm.Append(b, asm.Add{Dst: r.Acc, Src: r.Second})
	case ast.Sub:
		b = asm.Append(b, asm.Sub{Dst: r.Acc, Src: r.Second})
	case ast.Mul:
		b = asm.Append(b, asm.Imul{Dst: r.Acc, Src: r.Second})
	case ast.Div:
		b = asm.Append(b, asm.Mov{Dst: r.High, Src: asm.Imm(0)})
		b = asm.Append(b, asm.Mov{Dst: r.Divisor, Src: r.Acc})
		b = asm.Append(b, asm.Mov{Dst: r.Acc, Src: r.Second})
		b = asm.Append(b, asm.Div{Src: r.Divisor})
	default:
		return nil, errors.Wrap(ErrUnsupported, "op %d", int(op))
	}

	return b, nil
}

func (c *Compiler) conv() Conv {
	if c.Conv == (Conv{}) {
		return AMD64
	}

	return c.Conv
}

func dumpCode(tr tlog.Span, b []byte) {
	if !tr.If("dump_asm") {
		return
	}

	tr.Printw("generated code", "size", len(b), "code", string(b))
}
