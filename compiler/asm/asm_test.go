package asm

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	var b []byte

	for _, x := range []Instr{
		Format("ELF64"),
		Section{Name: ".text", Flags: []string{"executable"}},
		Public("main"),
		Extrn("printf"),
		Data{Name: "msg", Bytes: []byte("RESULT: %d\n\x00")},
		Label("main"),
		Mov{Dst: RAX, Src: Imm(10)},
		Push{Src: RAX},
		Pop{Dst: RBX},
		Imul{Dst: RAX, Src: RBX},
		Mov{Dst: RDI, Src: Sym("msg")},
		Mov{Dst: RSI, Src: RAX},
		Div{Src: RCX},
		Xor{Dst: RAX, Src: RAX},
		Call{Sym: "printf"},
		Ret{},
	} {
		b = Append(b, x)
	}

	assert.Equal(t, `format ELF64
section ".text" executable
public main
extrn printf
msg db "RESULT: %d",10,0
main:
mov rax, 10
push rax
pop rbx
imul rax, rbx
mov rdi, msg
mov rsi, rax
div rcx
xor rax, rax
call printf
ret
`, string(b))
}

func TestAppendBytes(t *testing.T) {
	assert.Equal(t, `"a",34,"b",10,0`, string(AppendBytes(nil, []byte("a\"b\n\x00"))))
	assert.Equal(t, `9,"tab"`, string(AppendBytes(nil, []byte("\ttab"))))
	assert.Equal(t, ``, string(AppendBytes(nil, nil)))
}

func TestParseLine(t *testing.T) {
	for _, tc := range []struct {
		Line string
		X    Instr
	}{
		{"", nil},
		{"  ; comment", nil},
		{"main:", Label("main")},
		{"mov rax, -5 ; load", Mov{Dst: RAX, Src: Imm(-5)}},
		{"mov rdi, msg", Mov{Dst: RDI, Src: Sym("msg")}},
		{"mov rcx, rax", Mov{Dst: RCX, Src: RAX}},
		{"sub rax, rbx", Sub{Dst: RAX, Src: RBX}},
		{"add  rax ,rbx", Add{Dst: RAX, Src: RBX}},
		{`msg db "a;b",10,0`, Data{Name: "msg", Bytes: []byte("a;b\n\x00")}},
		{`msg db 'x', 34 , "y"`, Data{Name: "msg", Bytes: []byte(`x"y`)}},
		{`section ".data" writeable`, Section{Name: ".data", Flags: []string{"writeable"}}},
	} {
		x, err := ParseLine(tc.Line)
		require.NoError(t, err, tc.Line)
		assert.Equal(t, tc.X, x, tc.Line)
	}
}

func TestParseLineErrors(t *testing.T) {
	for _, line := range []string{
		"mov rax",
		"add rax, 5",
		"push 5",
		"jmp main",
		`msg db "open`,
		"msg db 300",
		"section text",
		"ret rax",
	} {
		_, err := ParseLine(line)
		assert.Error(t, err, line)
	}
}

func TestParseProgram(t *testing.T) {
	p, err := Parse(context.Background(), []byte("format ELF64\npublic main\nmsg db \"x\",0\nmain:\nmov rax, 1\n\nret\n"))
	require.NoError(t, err)

	assert.Equal(t, "ELF64", p.Format)
	assert.Equal(t, []Sym{"main"}, p.Public)
	assert.Equal(t, []Data{{Name: "msg", Bytes: []byte("x\x00")}}, p.Data)
	assert.Equal(t, map[Sym]int{"main": 0}, p.Labels)
	assert.Equal(t, []Instr{Mov{Dst: RAX, Src: Imm(1)}, Ret{}}, p.Code)
	assert.Equal(t, []int{5, 7}, p.Lines)

	_, err = Parse(context.Background(), []byte("main:\nmain:\n"))
	assert.ErrorIs(t, err, ErrSyntax)
}

func run(t *testing.T, src string) (int64, *Machine, error) {
	t.Helper()

	p, err := Parse(context.Background(), []byte(src))
	require.NoError(t, err)

	m := &Machine{}

	exit, err := m.Run(context.Background(), p)

	return exit, m, err
}

func TestMachineArith(t *testing.T) {
	exit, m, err := run(t, `public main
main:
mov rax, 7
push rax
mov rax, 5
pop rbx
sub rax, rbx
mov rcx, rax
mov rax, 3
imul rax, rcx
ret
`)
	require.NoError(t, err)

	assert.Equal(t, int64(-6), exit)
	assert.Equal(t, uint64(7), m.Regs[RBX])
}

func TestMachineDiv(t *testing.T) {
	exit, m, err := run(t, `public main
main:
mov rdx, 0
mov rax, 17
mov rcx, 5
div rcx
ret
`)
	require.NoError(t, err)

	assert.Equal(t, int64(3), exit)
	assert.Equal(t, uint64(2), m.Regs[RDX])

	_, _, err = run(t, "public main\nmain:\nmov rdx, 0\nmov rax, 1\nmov rcx, 0\ndiv rcx\nret\n")
	assert.ErrorIs(t, err, ErrDivide)

	_, _, err = run(t, "public main\nmain:\nmov rdx, 5\nmov rax, 1\nmov rcx, 5\ndiv rcx\nret\n")
	assert.ErrorIs(t, err, ErrDivide)
}

func TestMachineErrors(t *testing.T) {
	_, _, err := run(t, "public main\nmain:\npop rax\nret\n")
	assert.ErrorIs(t, err, ErrStackUnderflow)

	_, _, err = run(t, "public main\nmain:\npush rax\nret\n")
	assert.ErrorIs(t, err, ErrStackNotEmpty)

	_, _, err = run(t, "public main\nmain:\ncall puts\nret\n")
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	_, _, err = run(t, "main:\nret\n")
	assert.ErrorIs(t, err, ErrNoEntry)

	_, _, err = run(t, "public main\nmain:\nmov rax, 1\n")
	assert.Error(t, err)
}

func TestMachineStepLimit(t *testing.T) {
	p, err := Parse(context.Background(), []byte("public main\nmain:\nmov rax, 1\nmov rax, 2\nret\n"))
	require.NoError(t, err)

	m := &Machine{MaxSteps: 2}

	_, err = m.Run(context.Background(), p)
	assert.ErrorIs(t, err, ErrStepLimit)
}

func TestMachineContext(t *testing.T) {
	p, err := Parse(context.Background(), []byte("public main\nmain:\nret\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var m Machine

	_, err = m.Run(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrintf(t *testing.T) {
	var buf bytes.Buffer

	p, err := Parse(context.Background(), []byte(`public main
extrn printf
msg db "R: %d %ld %x%%",10,0
main:
mov rdi, msg
mov rsi, 4294967295
mov rdx, -1
mov rcx, 255
xor rax, rax
call printf
mov rax, 0
ret
`))
	require.NoError(t, err)

	m := &Machine{
		Externs: map[Sym]Extern{"printf": Printf(&buf)},
	}

	exit, err := m.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, int64(0), exit)
	assert.Equal(t, "R: -1 -1 ff%\n", buf.String())
}

func TestPrintfVerbs(t *testing.T) {
	m := &Machine{}
	m.layout(&Program{Data: []Data{{Name: "s", Bytes: []byte("str\x00")}}})

	m.Regs[RSI] = 7
	m.Regs[RDX] = 'z'
	m.Regs[RCX] = DataBase

	b, err := m.appendPrintf(nil, []byte("[%5u] %c %s"))
	require.NoError(t, err)
	assert.Equal(t, "[    7] z str", string(b))

	_, err = m.appendPrintf(nil, []byte("%d %d %d %d"))
	assert.Error(t, err)

	_, err = m.appendPrintf(nil, []byte("%f"))
	assert.Error(t, err)

	_, err = m.appendPrintf(nil, []byte("%l"))
	assert.Error(t, err)
}
