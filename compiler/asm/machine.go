package asm

import (
	"context"
	"math/bits"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

type (
	// Extern is an external routine callable with the call instruction.
	// It takes arguments from and returns results into the machine registers.
	Extern func(ctx context.Context, m *Machine) error

	// Machine executes a Program on a minimal x86-64 register model.
	Machine struct {
		Regs  [NumRegs]uint64
		Stack []uint64

		Externs map[Sym]Extern

		// MaxSteps limits executed instructions. Zero means DefaultMaxSteps.
		MaxSteps int

		mem  []byte
		addr map[Sym]uint64
	}
)

const (
	DataBase        = 0x1000
	DefaultMaxSteps = 1 << 24
)

var (
	ErrDivide         = errors.New("divide error")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrStackNotEmpty  = errors.New("return with non-empty stack")
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrNoEntry        = errors.New("no entry point")
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrBadAddress     = errors.New("bad address")
)

// Run executes p from its public entry point until the entry returns.
// The exit status is rax at that moment.
func (m *Machine) Run(ctx context.Context, p *Program) (exit int64, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "asm: run", "instrs", len(p.Code))
	defer tr.Finish("err", &err)

	m.layout(p)

	pc, err := m.entry(p)
	if err != nil {
		return 0, err
	}

	max := m.MaxSteps
	if max == 0 {
		max = DefaultMaxSteps
	}

	for step := 0; ; step++ {
		if step == max {
			return 0, ErrStepLimit
		}

		if step&0x3ff == 0 {
			if err = ctx.Err(); err != nil {
				return 0, err
			}
		}

		if pc < 0 || pc >= len(p.Code) {
			return 0, errors.New("execution fell out of code at %d", pc)
		}

		x := p.Code[pc]
		pc++

		if tr.If("trace") {
			tr.Printw("exec", "pc", pc-1, "line", p.Lines[pc-1], "typ", tlog.NextAsType, x, "val", x, "rax", m.Regs[RAX], "stack", len(m.Stack))
		}

		switch x := x.(type) {
		case Ret:
			if len(m.Stack) != 0 {
				return 0, errors.Wrap(ErrStackNotEmpty, "line %d: %d values left", p.Lines[pc-1], len(m.Stack))
			}

			return int64(m.Regs[RAX]), nil
		case Call:
			err = m.call(ctx, x.Sym)
		default:
			err = m.step(x)
		}

		if err != nil {
			return 0, errors.Wrap(err, "line %d", p.Lines[pc-1])
		}
	}
}

func (m *Machine) step(x Instr) error {
	switch x := x.(type) {
	case Mov:
		v, err := m.operand(x.Src)
		if err != nil {
			return err
		}

		m.Regs[x.Dst] = v
	case Push:
		m.Stack = append(m.Stack, m.Regs[x.Src])
	case Pop:
		l := len(m.Stack)
		if l == 0 {
			return ErrStackUnderflow
		}

		m.Regs[x.Dst] = m.Stack[l-1]
		m.Stack = m.Stack[:l-1]
	case Add:
		m.Regs[x.Dst] += m.Regs[x.Src]
	case Sub:
		m.Regs[x.Dst] -= m.Regs[x.Src]
	case Imul:
		m.Regs[x.Dst] *= m.Regs[x.Src]
	case Xor:
		m.Regs[x.Dst] ^= m.Regs[x.Src]
	case Div:
		d := m.Regs[x.Src]
		hi := m.Regs[RDX]

		if d == 0 || hi >= d {
			return ErrDivide
		}

		m.Regs[RAX], m.Regs[RDX] = bits.Div64(hi, m.Regs[RAX], d)
	default:
		return errors.New("unsupported instruction: %T", x)
	}

	return nil
}

func (m *Machine) call(ctx context.Context, s Sym) error {
	f, ok := m.Externs[s]
	if !ok {
		return errors.Wrap(ErrUnknownSymbol, "call %s", s)
	}

	return f(ctx, m)
}

func (m *Machine) operand(x Operand) (uint64, error) {
	switch x := x.(type) {
	case Reg:
		return m.Regs[x], nil
	case Imm:
		return uint64(x), nil
	case Sym:
		a, ok := m.addr[x]
		if !ok {
			return 0, errors.Wrap(ErrUnknownSymbol, "%s", x)
		}

		return a, nil
	default:
		return 0, errors.New("unsupported operand: %T", x)
	}
}

func (m *Machine) layout(p *Program) {
	m.mem = m.mem[:0]
	m.addr = make(map[Sym]uint64, len(p.Data))

	for _, d := range p.Data {
		m.addr[d.Name] = DataBase + uint64(len(m.mem))
		m.mem = append(m.mem, d.Bytes...)
	}
}

func (m *Machine) entry(p *Program) (int, error) {
	if len(p.Public) == 0 {
		return 0, ErrNoEntry
	}

	pc, ok := p.Labels[p.Public[0]]
	if !ok {
		return 0, errors.Wrap(ErrNoEntry, "label %s", p.Public[0])
	}

	return pc, nil
}

// CString reads a NUL terminated string from the data memory.
func (m *Machine) CString(addr uint64) ([]byte, error) {
	if addr < DataBase || addr-DataBase >= uint64(len(m.mem)) {
		return nil, errors.Wrap(ErrBadAddress, "%#x", addr)
	}

	b := m.mem[addr-DataBase:]

	for i, c := range b {
		if c == 0 {
			return b[:i], nil
		}
	}

	return nil, errors.Wrap(ErrBadAddress, "unterminated string at %#x", addr)
}
