package front

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/pcalc/compiler/ast"
)

type (
	// Parser builds an expression tree by recursive descent.
	//
	//	expr  := NUMBER | '(' inner
	//	inner := ')' | OPERATOR expr expr ')'
	Parser struct {
		// MaxDepth limits parentheses nesting. Zero means DefaultMaxDepth, negative means no limit.
		MaxDepth int
	}

	state struct {
		l   *Lexer
		max int
	}

	SyntaxError struct {
		Pos   int
		Token Token
		Err   error
	}
)

const DefaultMaxDepth = 10000

var (
	ErrUnexpectedToken = errors.New("unexpected token")
	ErrUnexpectedEOF   = errors.New("unexpected end of input")
	ErrMissingRParen   = errors.New("missing closing parenthesis")
	ErrTrailingInput   = errors.New("trailing input")
	ErrTooDeep         = errors.New("expression nested too deep")
)

func New() *Parser {
	return &Parser{MaxDepth: DefaultMaxDepth}
}

func Parse(ctx context.Context, text []byte) (ast.Expr, error) {
	return New().Parse(ctx, text)
}

func (p *Parser) Parse(ctx context.Context, text []byte) (x ast.Expr, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "front: parse", "size", len(text))
	defer tr.Finish("err", &err)

	s := &state{
		l:   &Lexer{b: text, tr: tr},
		max: p.MaxDepth,
	}

	if s.max == 0 {
		s.max = DefaultMaxDepth
	}

	x, err = s.parseExpr(ctx, 0)
	if err != nil {
		return nil, err
	}

	t, err := s.l.Next()
	if err != nil {
		return nil, err
	}

	if t.Kind != EOF {
		return nil, newSyntaxError(t, ErrTrailingInput)
	}

	return x, nil
}

func (s *state) parseExpr(ctx context.Context, depth int) (x ast.Expr, err error) {
	t, err := s.l.Next()
	if err != nil {
		return nil, err
	}

	switch t.Kind {
	case Number:
		return ast.Literal{Base: ast.Base{Pos: t.Pos, End: t.End}, Value: t.Value}, nil
	case LParen:
	case EOF:
		return nil, newSyntaxError(t, ErrUnexpectedEOF)
	default:
		return nil, newSyntaxError(t, ErrUnexpectedToken)
	}

	if s.max > 0 && depth >= s.max {
		return nil, newSyntaxError(t, ErrTooDeep)
	}

	op, err := s.l.Next()
	if err != nil {
		return nil, err
	}

	switch op.Kind {
	case RParen:
		return ast.Literal{Base: ast.Base{Pos: t.Pos, End: op.End}}, nil
	case Operator:
	case EOF:
		return nil, newSyntaxError(op, ErrUnexpectedEOF)
	default:
		return nil, newSyntaxError(op, ErrUnexpectedToken)
	}

	l, err := s.parseExpr(ctx, depth+1)
	if err != nil {
		return nil, errors.Wrap(err, "%v left", op.Op)
	}

	r, err := s.parseExpr(ctx, depth+1)
	if err != nil {
		return nil, errors.Wrap(err, "%v right", op.Op)
	}

	end, err := s.l.Next()
	if err != nil {
		return nil, err
	}

	if end.Kind != RParen {
		return nil, newSyntaxError(end, ErrMissingRParen)
	}

	return ast.BinaryOp{
		Base:  ast.Base{Pos: t.Pos, End: end.End},
		Op:    op.Op,
		Left:  l,
		Right: r,
	}, nil
}

func newSyntaxError(t Token, err error) *SyntaxError {
	return &SyntaxError{
		Pos:   t.Pos,
		Token: t,
		Err:   err,
	}
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v: got %v at pos %d", e.Err, e.Token, e.Pos)
}

func (e *SyntaxError) Unwrap() error { return e.Err }
