package back

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/pcalc/compiler/asm"
	"github.com/slowlang/pcalc/compiler/ast"
	"github.com/slowlang/pcalc/compiler/front"
)

func compile(t *testing.T, src, format string) []byte {
	t.Helper()

	ctx := context.Background()

	x, err := front.Parse(ctx, []byte(src))
	require.NoError(t, err, src)

	var c Compiler

	obj, err := c.CompileProgram(ctx, nil, x, format)
	require.NoError(t, err, src)

	return obj
}

func eval(t *testing.T, src string) string {
	t.Helper()

	ctx := context.Background()

	p, err := asm.Parse(ctx, compile(t, src, "%ld"))
	require.NoError(t, err, src)

	var out bytes.Buffer

	m := &asm.Machine{
		Externs: map[asm.Sym]asm.Extern{Printf: asm.Printf(&out)},
	}

	exit, err := m.Run(ctx, p)
	require.NoError(t, err, src)
	assert.Zero(t, exit, src)

	return strings.TrimSuffix(out.String(), "\n")
}

func TestSmoke(t *testing.T) {
	obj := compile(t, "(+ 1 1)", "RESULT: %d")

	assert.Equal(t, `format ELF64
section ".text" executable
public main
extrn printf
msg db "RESULT: %d",10,0
main:
mov rax, 1
push rax
mov rax, 1
pop rbx
add rax, rbx

mov rdi, msg
mov rsi, rax
xor rax, rax
call printf
mov rax, 0
ret
`, string(obj))
}

func TestEval(t *testing.T) {
	for _, tc := range []struct {
		Src string
		Res string
	}{
		{"5", "5"},
		{"()", "0"},
		{"(+ 1 1)", "2"},
		{"(* (* 10 2) (+ 1 1))", "40"},
		{"(/ 6 2)", "3"},
		{"(/ 2 6)", "0"},
		{"(/ 7 2)", "3"},
		{"(/ (* 10 10) (+ 3 2))", "20"},
		{"(+ () 9)", "9"},
		{"(* 123456789 1000)", "123456789000"},
	} {
		assert.Equal(t, tc.Res, eval(t, tc.Src), tc.Src)
	}
}

// The accumulator holds the right operand and the popped register the left one,
// sub rax, rbx keeps that order, so the result is right minus left.
func TestSubtractOperandOrder(t *testing.T) {
	assert.Equal(t, "-2", eval(t, "(- 5 3)"))
	assert.Equal(t, "2", eval(t, "(- 3 5)"))
}

func TestLiteralCode(t *testing.T) {
	var c Compiler

	b, err := c.CompileExpr(context.Background(), nil, ast.Literal{Value: 5})
	require.NoError(t, err)

	assert.Equal(t, "mov rax, 5\n", string(b))
}

func TestDivisionLowering(t *testing.T) {
	var c Compiler

	x := ast.BinaryOp{
		Op:    ast.Div,
		Left:  ast.Literal{Value: 6},
		Right: ast.Literal{Value: 2},
	}

	b, err := c.CompileExpr(context.Background(), nil, x)
	require.NoError(t, err)

	assert.Equal(t, `mov rax, 6
push rax
mov rax, 2
pop rbx
mov rdx, 0
mov rcx, rax
mov rax, rbx
div rcx

`, string(b))
}

func TestCustomConv(t *testing.T) {
	c := &Compiler{Conv: Conv{Acc: asm.RSI, Second: asm.RDI, Divisor: asm.RBX, High: asm.RDX}}

	b, err := c.CompileExpr(context.Background(), nil, ast.BinaryOp{
		Op:    ast.Mul,
		Left:  ast.Literal{Value: 2},
		Right: ast.Literal{Value: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, "mov rsi, 2\npush rsi\nmov rsi, 3\npop rdi\nimul rsi, rdi\n\n", string(b))
}

func TestUnsupported(t *testing.T) {
	c := New()

	_, err := c.CompileExpr(context.Background(), nil, ast.BinaryOp{
		Op:    ast.Op(77),
		Left:  ast.Literal{Value: 1},
		Right: ast.Literal{Value: 1},
	})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = c.CompileExpr(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestTemplateEscaping(t *testing.T) {
	obj := compile(t, "7", `say "%d"`)

	assert.Contains(t, string(obj), "msg db \"say \",34,\"%d\",34,10,0\n")

	ctx := context.Background()

	p, err := asm.Parse(ctx, obj)
	require.NoError(t, err)

	var out bytes.Buffer

	m := &asm.Machine{Externs: map[asm.Sym]asm.Extern{Printf: asm.Printf(&out)}}

	_, err = m.Run(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, "say \"7\"\n", out.String())
}
