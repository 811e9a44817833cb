package front

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/pcalc/compiler/ast"
)

type (
	Kind int

	Token struct {
		Kind Kind
		Pos  int
		End  int
		Text string

		Op    ast.Op // Operator
		Value int64  // Number
	}

	// Lexer produces tokens one at a time from the input text.
	Lexer struct {
		b []byte
		i int

		tr tlog.Span
	}

	LexError struct {
		Pos  int
		Text string
		Err  error
	}

	Spaces uint64
)

const (
	EOF Kind = iota
	LParen
	RParen
	Symbol
	Operator
	Number
)

const operators = "+-*/"

var ErrUnexpectedChar = errors.New("unexpected character")

var Whitespace = NewSpaces(' ', '\t', '\n', '\f')

func NewLexer(text []byte) *Lexer {
	return &Lexer{b: text}
}

// Tokens lexes the whole text. EOF is not included.
func Tokens(text []byte) (ts []Token, err error) {
	l := NewLexer(text)

	for {
		t, err := l.Next()
		if err != nil {
			return ts, err
		}

		if t.Kind == EOF {
			return ts, nil
		}

		ts = append(ts, t)
	}
}

// Next returns the next token. Once the input is exhausted it keeps returning EOF.
func (l *Lexer) Next() (t Token, err error) {
	st := Whitespace.Skip(l.b, l.i)
	l.i = st

	if st == len(l.b) {
		return Token{Kind: EOF, Pos: st, End: st}, nil
	}

	c := l.b[st]
	i := st + 1

	switch {
	case c == '(':
		t.Kind = LParen
	case c == ')':
		t.Kind = RParen
	case isAlpha(c):
		i = skipAlpha(l.b, i)

		t.Kind = Symbol
	case strings.IndexByte(operators, c) >= 0:
		t.Kind = Operator
		t.Op = opFromChar(c)
	case c >= '1' && c <= '9':
		i = skipDigits(l.b, i)

		v, err := strconv.ParseInt(string(l.b[st:i]), 10, 64)
		if err != nil {
			return Token{}, &LexError{Pos: st, Text: string(l.b[st:i]), Err: errors.Wrap(err, "number")}
		}

		t.Kind = Number
		t.Value = v
	default:
		_, w := utf8.DecodeRune(l.b[st:])

		return Token{}, &LexError{Pos: st, Text: string(l.b[st : st+w]), Err: ErrUnexpectedChar}
	}

	t.Pos = st
	t.End = i
	t.Text = string(l.b[st:i])

	l.i = i

	if l.tr.If("lex") {
		l.tr.Printw("token", "kind", t.Kind, "text", t.Text, "pos", t.Pos, "from", loc.Caller(1))
	}

	return t, nil
}

func opFromChar(c byte) ast.Op {
	switch c {
	case '+':
		return ast.Add
	case '-':
		return ast.Sub
	case '*':
		return ast.Mul
	case '/':
		return ast.Div
	}

	panic(fmt.Sprintf("unreachable: operator %q is outside of %q", c, operators))
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func skipAlpha(b []byte, i int) int {
	for i < len(b) && isAlpha(b[i]) {
		i++
	}

	return i
}

func skipDigits(b []byte, i int) int {
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}

	return i
}

func NewSpaces(skip ...byte) (ss Spaces) {
	for _, q := range skip {
		if q >= 64 {
			panic("too high char code")
		}

		ss |= 1 << q
	}

	return
}

func (s Spaces) Skip(b []byte, st int) (i int) {
	i = st

	for i < len(b) && b[i] < 64 && s&(1<<b[i]) != 0 {
		i++
	}

	return
}

func (k Kind) String() string {
	switch k {
	case EOF:
		return "end of input"
	case LParen:
		return "("
	case RParen:
		return ")"
	case Symbol:
		return "symbol"
	case Operator:
		return "operator"
	case Number:
		return "number"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (t Token) String() string {
	switch t.Kind {
	case EOF, LParen, RParen:
		return t.Kind.String()
	default:
		return fmt.Sprintf("%v %q", t.Kind, t.Text)
	}
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%v %q at pos %d", e.Err, e.Text, e.Pos)
}

func (e *LexError) Unwrap() error { return e.Err }
