package compiler

import (
	"context"
	"fmt"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/pcalc/compiler/back"
	"github.com/slowlang/pcalc/compiler/format"
	"github.com/slowlang/pcalc/compiler/front"
)

type (
	Options struct {
		// Format is the printf template for the result, used as is.
		// Empty template prints bare newline.
		Format string

		// MaxDepth limits expression nesting, see front.Parser.
		MaxDepth int
	}

	WriteError struct {
		Name string
		Err  error
	}
)

const (
	DefaultExpr   = "(* (* 10 2) (+ 1 1))"
	DefaultFormat = "RESULT: %d"
)

// Compile translates expression text into assembly text.
// Nothing is returned on error.
func Compile(ctx context.Context, text []byte, opts Options) (obj []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "size", len(text))
	defer tr.Finish("err", &err)

	p := front.New()

	if opts.MaxDepth != 0 {
		p.MaxDepth = opts.MaxDepth
	}

	x, err := p.Parse(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	if tr.If("dump_ast") {
		s, err := format.Format(ctx, nil, x)
		tr.Printw("parsed", "expr", string(s), "err", err)
	}

	obj, err = back.New().CompileProgram(ctx, nil, x, opts.Format)
	if err != nil {
		return nil, errors.Wrap(err, "generate")
	}

	return obj, nil
}

// WriteFile writes assembly text into a file.
// Failures are returned as *WriteError.
func WriteFile(ctx context.Context, name string, obj []byte) error {
	err := os.WriteFile(name, obj, 0o644)
	if err != nil {
		return &WriteError{Name: name, Err: err}
	}

	tlog.SpanFromContext(ctx).Printw("written", "name", name, "size", len(obj))

	return nil
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %v: %v", e.Name, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
