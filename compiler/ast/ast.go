package ast

type (
	Op byte

	Expr interface {
		Span() Base
	}

	Base struct {
		Pos int
		End int
	}

	Literal struct {
		Base `tlog:",embed"`

		Value int64
	}

	BinaryOp struct {
		Base `tlog:",embed"`

		Op    Op
		Left  Expr
		Right Expr
	}
)

const (
	Add Op = iota + 1
	Sub
	Mul
	Div
)

func (b Base) Span() Base { return b }

func (op Op) String() string {
	switch op {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	default:
		return "?"
	}
}

func (op Op) Valid() bool {
	return op >= Add && op <= Div
}
