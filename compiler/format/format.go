package format

import (
	"context"
	"strconv"

	"tlog.app/go/errors"

	"github.com/slowlang/pcalc/compiler/ast"
)

var ErrUnrepresentable = errors.New("unrepresentable literal")

// Format appends x in canonical prefix form: (+ 1 (* 2 3)).
// Zero literal is written as ().
func Format(ctx context.Context, b []byte, x ast.Expr) ([]byte, error) {
	return format(ctx, b, x, 0)
}

// Indent is like Format but puts each nested operation on its own line.
func Indent(ctx context.Context, b []byte, x ast.Expr) ([]byte, error) {
	return format(ctx, b, x, 1)
}

func format(ctx context.Context, b []byte, x ast.Expr, d int) (_ []byte, err error) {
	switch x := x.(type) {
	case ast.Literal:
		switch {
		case x.Value == 0:
			b = append(b, "()"...)
		case x.Value > 0:
			b = strconv.AppendInt(b, x.Value, 10)
		default:
			return nil, errors.Wrap(ErrUnrepresentable, "%d", x.Value)
		}
	case ast.BinaryOp:
		if !x.Op.Valid() {
			return nil, errors.New("unsupported op: %d", int(x.Op))
		}

		b = append(b, '(')
		b = append(b, x.Op.String()...)

		b = sep(b, d, x.Left)

		b, err = format(ctx, b, x.Left, next(d))
		if err != nil {
			return nil, errors.Wrap(err, "left")
		}

		b = sep(b, d, x.Right)

		b, err = format(ctx, b, x.Right, next(d))
		if err != nil {
			return nil, errors.Wrap(err, "right")
		}

		b = append(b, ')')
	default:
		return nil, errors.New("unsupported expr: %T", x)
	}

	return b, nil
}

func sep(b []byte, d int, x ast.Expr) []byte {
	if _, ok := x.(ast.BinaryOp); !ok || d == 0 {
		return append(b, ' ')
	}

	return app(b, d)
}

func next(d int) int {
	if d == 0 {
		return 0
	}

	return d + 1
}

func app(b []byte, d int) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"

	b = append(b, '\n')

	for d > len(tabs) {
		b = append(b, tabs...)
		d -= len(tabs)
	}

	return append(b, tabs[:d]...)
}
