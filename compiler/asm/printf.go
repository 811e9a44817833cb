package asm

import (
	"context"
	"io"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
)

var argRegs = []Reg{RSI, RDX, RCX}

// Printf returns a printf extern writing to w.
// Format string address is taken from rdi and arguments from rsi, rdx and rcx.
// Supported verbs are d, i, u, x, X, c, s and %%, with flags, width and length modifiers.
// Without a length modifier integers are 32 bit as C int.
func Printf(w io.Writer) Extern {
	return func(ctx context.Context, m *Machine) error {
		f, err := m.CString(m.Regs[RDI])
		if err != nil {
			return errors.Wrap(err, "printf: format")
		}

		b, err := m.appendPrintf(nil, f)
		if err != nil {
			return errors.Wrap(err, "printf")
		}

		n, err := w.Write(b)

		m.Regs[RAX] = uint64(n)

		return err
	}
}

func (m *Machine) appendPrintf(b, f []byte) (_ []byte, err error) {
	arg := 0

	next := func() (uint64, error) {
		if arg == len(argRegs) {
			return 0, errors.New("too many arguments")
		}

		v := m.Regs[argRegs[arg]]
		arg++

		return v, nil
	}

	for i := 0; i < len(f); {
		if f[i] != '%' {
			st := i

			for i < len(f) && f[i] != '%' {
				i++
			}

			b = append(b, f[st:i]...)

			continue
		}

		st := i
		i++

		for i < len(f) && (f[i] == '-' || f[i] == '+' || f[i] == ' ' || f[i] == '0' || f[i] == '#') {
			i++
		}

		for i < len(f) && f[i] >= '0' && f[i] <= '9' {
			i++
		}

		pre := string(f[st:i])

		size := 32

	mods:
		for i < len(f) {
			switch f[i] {
			case 'l', 'q', 'j', 'z', 't':
				size = 64
			case 'h':
				if size == 16 {
					size = 8
				} else {
					size = 16
				}
			default:
				break mods
			}

			i++
		}

		if i == len(f) {
			return nil, errors.New("incomplete verb %q", f[st:])
		}

		c := f[i]
		i++

		if c == '%' {
			b = append(b, '%')
			continue
		}

		v, err := next()
		if err != nil {
			return nil, err
		}

		switch c {
		case 'd', 'i':
			b = hfmt.Appendf(b, pre+"d", signed(v, size))
		case 'u':
			b = hfmt.Appendf(b, pre+"d", unsigned(v, size))
		case 'x', 'X':
			b = hfmt.Appendf(b, pre+string(c), unsigned(v, size))
		case 'c':
			b = append(b, byte(v))
		case 's':
			s, err := m.CString(v)
			if err != nil {
				return nil, errors.Wrap(err, "%%s argument")
			}

			b = hfmt.Appendf(b, pre+"s", string(s))
		default:
			return nil, errors.New("unsupported verb %q", c)
		}
	}

	return b, nil
}

func signed(v uint64, size int) int64 {
	switch size {
	case 8:
		return int64(int8(v))
	case 16:
		return int64(int16(v))
	case 32:
		return int64(int32(v))
	}

	return int64(v)
}

func unsigned(v uint64, size int) uint64 {
	if size == 64 {
		return v
	}

	return v & (1<<size - 1)
}
