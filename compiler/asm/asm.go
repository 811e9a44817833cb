package asm

import (
	"fmt"
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
)

type (
	Reg int
	Imm int64
	Sym string

	// Operand is one of Reg, Imm or Sym.
	Operand any

	// Instr is any of the instruction or directive types below.
	Instr any

	Mov struct {
		Dst Reg
		Src Operand
	}

	Push struct {
		Src Reg
	}

	Pop struct {
		Dst Reg
	}

	Add struct {
		Dst Reg
		Src Reg
	}

	Sub struct {
		Dst Reg
		Src Reg
	}

	Imul struct {
		Dst Reg
		Src Reg
	}

	Xor struct {
		Dst Reg
		Src Reg
	}

	// Div divides rdx:rax by Src as unsigned, quotient to rax, remainder to rdx.
	Div struct {
		Src Reg
	}

	Call struct {
		Sym Sym
	}

	Ret struct{}

	Label Sym

	Format string

	Section struct {
		Name  string
		Flags []string
	}

	Public Sym
	Extrn  Sym

	Data struct {
		Name  Sym
		Bytes []byte
	}
)

const (
	RAX Reg = iota
	RBX
	RCX
	RDX
	RSI
	RDI

	NumRegs
)

var regNames = [NumRegs]string{"rax", "rbx", "rcx", "rdx", "rsi", "rdi"}

func RegByName(n string) (Reg, bool) {
	for r, rn := range regNames {
		if rn == n {
			return Reg(r), true
		}
	}

	return -1, false
}

func (r Reg) String() string {
	if r < 0 || r >= NumRegs {
		return fmt.Sprintf("Reg(%d)", int(r))
	}

	return regNames[r]
}

// Append appends x as one line of fasm source.
// It panics on types it doesn't know.
func Append(b []byte, x Instr) []byte {
	switch x := x.(type) {
	case Mov:
		b = hfmt.Appendf(b, "mov %s, ", x.Dst.String())
		b = appendOperand(b, x.Src)
	case Push:
		b = hfmt.Appendf(b, "push %s", x.Src.String())
	case Pop:
		b = hfmt.Appendf(b, "pop %s", x.Dst.String())
	case Add:
		b = hfmt.Appendf(b, "add %s, %s", x.Dst.String(), x.Src.String())
	case Sub:
		b = hfmt.Appendf(b, "sub %s, %s", x.Dst.String(), x.Src.String())
	case Imul:
		b = hfmt.Appendf(b, "imul %s, %s", x.Dst.String(), x.Src.String())
	case Xor:
		b = hfmt.Appendf(b, "xor %s, %s", x.Dst.String(), x.Src.String())
	case Div:
		b = hfmt.Appendf(b, "div %s", x.Src.String())
	case Call:
		b = hfmt.Appendf(b, "call %s", string(x.Sym))
	case Ret:
		b = append(b, "ret"...)
	case Label:
		b = hfmt.Appendf(b, "%s:", string(x))
	case Format:
		b = hfmt.Appendf(b, "format %s", string(x))
	case Section:
		b = hfmt.Appendf(b, "section \"%s\"", x.Name)

		for _, f := range x.Flags {
			b = append(b, ' ')
			b = append(b, f...)
		}
	case Public:
		b = hfmt.Appendf(b, "public %s", string(x))
	case Extrn:
		b = hfmt.Appendf(b, "extrn %s", string(x))
	case Data:
		b = hfmt.Appendf(b, "%s db ", string(x.Name))
		b = AppendBytes(b, x.Bytes)
	default:
		panic(fmt.Sprintf("unsupported instruction: %T", x))
	}

	return append(b, '\n')
}

// AppendBytes renders data as a db operand list.
// Printable runs are quoted, quotes and control bytes are written as numbers.
func AppendBytes(b []byte, d []byte) []byte {
	for i := 0; i < len(d); {
		if i != 0 {
			b = append(b, ',')
		}

		if !quotable(d[i]) {
			b = strconv.AppendInt(b, int64(d[i]), 10)
			i++

			continue
		}

		st := i

		for i < len(d) && quotable(d[i]) {
			i++
		}

		b = append(b, '"')
		b = append(b, d[st:i]...)
		b = append(b, '"')
	}

	return b
}

func quotable(c byte) bool {
	return c >= 0x20 && c < 0x7f && c != '"'
}

func appendOperand(b []byte, x Operand) []byte {
	switch x := x.(type) {
	case Reg:
		return append(b, x.String()...)
	case Imm:
		return strconv.AppendInt(b, int64(x), 10)
	case Sym:
		return append(b, x...)
	default:
		panic(fmt.Sprintf("unsupported operand: %T", x))
	}
}
