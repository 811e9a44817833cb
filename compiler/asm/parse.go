package asm

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

type (
	// Program is a parsed assembly file.
	Program struct {
		Format   string
		Sections []Section
		Public   []Sym
		Extrn    []Sym
		Data     []Data

		Code   []Instr
		Lines  []int       // source line of each Code entry
		Labels map[Sym]int // label -> index in Code
	}
)

var ErrSyntax = errors.New("syntax error")

// Parse reads the fasm subset produced by Append.
func Parse(ctx context.Context, text []byte) (p *Program, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "asm: parse", "size", len(text))
	defer tr.Finish("err", &err)

	p = &Program{
		Labels: map[Sym]int{},
	}

	for n, line := range bytes.Split(text, []byte{'\n'}) {
		x, err := ParseLine(string(line))
		if err != nil {
			return nil, errors.Wrap(err, "line %d", n+1)
		}

		switch x := x.(type) {
		case nil:
		case Format:
			p.Format = string(x)
		case Section:
			p.Sections = append(p.Sections, x)
		case Public:
			p.Public = append(p.Public, Sym(x))
		case Extrn:
			p.Extrn = append(p.Extrn, Sym(x))
		case Data:
			if p.defined(x.Name) {
				return nil, errors.Wrap(ErrSyntax, "line %d: symbol redefined: %s", n+1, x.Name)
			}

			p.Data = append(p.Data, x)
		case Label:
			if p.defined(Sym(x)) {
				return nil, errors.Wrap(ErrSyntax, "line %d: symbol redefined: %s", n+1, x)
			}

			p.Labels[Sym(x)] = len(p.Code)
		default:
			p.Code = append(p.Code, x)
			p.Lines = append(p.Lines, n+1)
		}
	}

	if tr.If("dump_asm") {
		for i, x := range p.Code {
			tr.Printw("instr", "i", i, "line", p.Lines[i], "typ", tlog.NextAsType, x, "val", x)
		}
	}

	return p, nil
}

func (p *Program) defined(s Sym) bool {
	if _, ok := p.Labels[s]; ok {
		return true
	}

	for _, d := range p.Data {
		if d.Name == s {
			return true
		}
	}

	return false
}

// ParseLine parses a single source line. Empty and comment lines return nil.
func ParseLine(line string) (x Instr, err error) {
	line = strings.TrimSpace(stripComment(line))
	if line == "" {
		return nil, nil
	}

	if strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " \t\"'") {
		name := line[:len(line)-1]
		if !isIdent(name) {
			return nil, errors.Wrap(ErrSyntax, "bad label: %q", line)
		}

		return Label(name), nil
	}

	op, rest := cut(line)

	switch op {
	case "format":
		if rest == "" {
			return nil, errors.Wrap(ErrSyntax, "format: missing argument")
		}

		return Format(rest), nil
	case "section":
		return parseSection(rest)
	case "public", "extrn":
		if !isIdent(rest) {
			return nil, errors.Wrap(ErrSyntax, "%s: bad symbol: %q", op, rest)
		}

		if op == "public" {
			return Public(rest), nil
		}

		return Extrn(rest), nil
	case "ret":
		if rest != "" {
			return nil, errors.Wrap(ErrSyntax, "ret: unexpected operands")
		}

		return Ret{}, nil
	case "push", "pop", "div":
		r, err := parseReg(rest)
		if err != nil {
			return nil, errors.Wrap(err, "%s", op)
		}

		switch op {
		case "push":
			return Push{Src: r}, nil
		case "pop":
			return Pop{Dst: r}, nil
		default:
			return Div{Src: r}, nil
		}
	case "call":
		if !isIdent(rest) {
			return nil, errors.Wrap(ErrSyntax, "call: bad symbol: %q", rest)
		}

		return Call{Sym: Sym(rest)}, nil
	case "mov", "add", "sub", "imul", "xor":
		return parseBinary(op, rest)
	}

	if name, rest := cut(rest); name == "db" {
		if !isIdent(op) {
			return nil, errors.Wrap(ErrSyntax, "db: bad symbol: %q", op)
		}

		d, err := parseBytes(rest)
		if err != nil {
			return nil, errors.Wrap(err, "db")
		}

		return Data{Name: Sym(op), Bytes: d}, nil
	}

	return nil, errors.Wrap(ErrSyntax, "unsupported instruction: %q", op)
}

func parseBinary(op, rest string) (x Instr, err error) {
	l, r, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errors.Wrap(ErrSyntax, "%s: two operands expected", op)
	}

	dst, err := parseReg(strings.TrimSpace(l))
	if err != nil {
		return nil, errors.Wrap(err, "%s: dst", op)
	}

	r = strings.TrimSpace(r)

	if op == "mov" {
		src, err := parseOperand(r)
		if err != nil {
			return nil, errors.Wrap(err, "mov: src")
		}

		return Mov{Dst: dst, Src: src}, nil
	}

	src, err := parseReg(r)
	if err != nil {
		return nil, errors.Wrap(err, "%s: src", op)
	}

	switch op {
	case "add":
		return Add{Dst: dst, Src: src}, nil
	case "sub":
		return Sub{Dst: dst, Src: src}, nil
	case "imul":
		return Imul{Dst: dst, Src: src}, nil
	default:
		return Xor{Dst: dst, Src: src}, nil
	}
}

func parseOperand(s string) (Operand, error) {
	if r, ok := RegByName(s); ok {
		return r, nil
	}

	if s != "" && (s[0] >= '0' && s[0] <= '9' || s[0] == '-') {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, errors.Wrap(err, "immediate")
		}

		return Imm(v), nil
	}

	if isIdent(s) {
		return Sym(s), nil
	}

	return nil, errors.Wrap(ErrSyntax, "bad operand: %q", s)
}

func parseReg(s string) (Reg, error) {
	r, ok := RegByName(s)
	if !ok {
		return -1, errors.Wrap(ErrSyntax, "register expected: %q", s)
	}

	return r, nil
}

func parseSection(rest string) (Section, error) {
	if len(rest) < 2 || rest[0] != '"' {
		return Section{}, errors.Wrap(ErrSyntax, "section: quoted name expected")
	}

	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		return Section{}, errors.Wrap(ErrSyntax, "section: unterminated name")
	}

	return Section{
		Name:  rest[1 : end+1],
		Flags: strings.Fields(rest[end+2:]),
	}, nil
}

func parseBytes(s string) (d []byte, err error) {
	for i := 0; ; {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}

		if i == len(s) {
			return nil, errors.Wrap(ErrSyntax, "value expected")
		}

		if q := s[i]; q == '"' || q == '\'' {
			end := strings.IndexByte(s[i+1:], q)
			if end < 0 {
				return nil, errors.Wrap(ErrSyntax, "unterminated string")
			}

			d = append(d, s[i+1:i+1+end]...)
			i += end + 2
		} else {
			st := i

			for i < len(s) && s[i] != ',' {
				i++
			}

			v, err := strconv.ParseUint(strings.TrimSpace(s[st:i]), 0, 8)
			if err != nil {
				return nil, errors.Wrap(err, "byte value")
			}

			d = append(d, byte(v))
		}

		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}

		if i == len(s) {
			return d, nil
		}

		if s[i] != ',' {
			return nil, errors.Wrap(ErrSyntax, "comma expected at %d", i)
		}

		i++
	}
}

func stripComment(line string) string {
	var q byte

	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case q != 0:
			if c == q {
				q = 0
			}
		case c == '"' || c == '\'':
			q = c
		case c == ';':
			return line[:i]
		}
	}

	return line
}

func cut(s string) (word, rest string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}

	return s[:i], strings.TrimSpace(s[i+1:])
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '.':
		case i != 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}

	return true
}
