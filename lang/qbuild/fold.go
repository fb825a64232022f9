package qbuild

import "github.com/rill-lang/rillc/lang/qcode"

// BinaryOp emits a binary operation, folding it away when both operands are
// literal (§4.3 "Literals and constant folding"). A folded result is
// returned as the literal operand itself, not materialized into a register:
// this is what lets a chain like 1+2*3 collapse all the way down to one
// constant, with the single move appearing only when the final value is
// captured into its real destination. Folding covers add/sub/mul on numbers
// and shifts/bitwise ops on integers; it declines (falls back to a real
// instruction) on anything that would change overflow behavior, since
// integer arithmetic must keep the language's wraparound semantics rather
// than silently promoting to Go's untyped-constant math.
func (b *Builder) BinaryOp(op qcode.Opcode, a, c qcode.Operand, line int32) qcode.Operand {
	if folded, ok := foldBinary(op, a, c); ok {
		return folded
	}
	return b.EmitToValue(op, a, c, line)
}

// UnaryOp emits a unary operation, folding constant operands.
func (b *Builder) UnaryOp(op qcode.Opcode, a qcode.Operand, line int32) qcode.Operand {
	if folded, ok := foldUnary(op, a); ok {
		return folded
	}
	return b.EmitToValue(op, a, qcode.NoOperand(), line)
}

func foldUnary(op qcode.Opcode, a qcode.Operand) (qcode.Operand, bool) {
	switch op {
	case qcode.UPLUS:
		switch a.Kind {
		case qcode.IntConst, qcode.FloatConst:
			return a, true
		}
	case qcode.UMINUS:
		switch a.Kind {
		case qcode.IntConst:
			if a.Int == minInt64 {
				return qcode.Operand{}, false // would overflow on negate, decline
			}
			return qcode.IntOperand(-a.Int), true
		case qcode.FloatConst:
			return qcode.FloatOperand(-a.Float), true
		}
	case qcode.BNOT:
		if a.Kind == qcode.IntConst {
			return qcode.IntOperand(^a.Int), true
		}
	case qcode.LNOT:
		switch a.Kind {
		case qcode.TrueConst:
			return qcode.FalseOperand(), true
		case qcode.FalseConst:
			return qcode.TrueOperand(), true
		case qcode.NullConst:
			return qcode.TrueOperand(), true
		}
	}
	return qcode.Operand{}, false
}

const minInt64 = -1 << 63

func foldBinary(op qcode.Opcode, a, c qcode.Operand) (qcode.Operand, bool) {
	switch op {
	case qcode.ADD, qcode.SUB, qcode.MUL:
		return foldArith(op, a, c)
	case qcode.SHL, qcode.SHR, qcode.AND, qcode.OR, qcode.XOR:
		return foldBitwise(op, a, c)
	}
	return qcode.Operand{}, false
}

func foldArith(op qcode.Opcode, a, c qcode.Operand) (qcode.Operand, bool) {
	if a.Kind == qcode.IntConst && c.Kind == qcode.IntConst {
		x, y := a.Int, c.Int
		var r int64
		var overflow bool
		switch op {
		case qcode.ADD:
			r = x + y
			overflow = (y > 0 && r < x) || (y < 0 && r > x)
		case qcode.SUB:
			r = x - y
			overflow = (y < 0 && r < x) || (y > 0 && r > x)
		case qcode.MUL:
			r = x * y
			overflow = x != 0 && r/x != y
		}
		if overflow {
			return qcode.Operand{}, false
		}
		return qcode.IntOperand(r), true
	}
	if isNumericConst(a) && isNumericConst(c) {
		x, y := asFloat(a), asFloat(c)
		var r float64
		switch op {
		case qcode.ADD:
			r = x + y
		case qcode.SUB:
			r = x - y
		case qcode.MUL:
			r = x * y
		}
		return qcode.FloatOperand(r), true
	}
	return qcode.Operand{}, false
}

func foldBitwise(op qcode.Opcode, a, c qcode.Operand) (qcode.Operand, bool) {
	if a.Kind != qcode.IntConst || c.Kind != qcode.IntConst {
		return qcode.Operand{}, false
	}
	x, y := a.Int, c.Int
	switch op {
	case qcode.SHL:
		if y < 0 || y >= 64 {
			return qcode.Operand{}, false
		}
		return qcode.IntOperand(x << uint(y)), true
	case qcode.SHR:
		if y < 0 || y >= 64 {
			return qcode.Operand{}, false
		}
		return qcode.IntOperand(x >> uint(y)), true
	case qcode.AND:
		return qcode.IntOperand(x & y), true
	case qcode.OR:
		return qcode.IntOperand(x | y), true
	case qcode.XOR:
		return qcode.IntOperand(x ^ y), true
	}
	return qcode.Operand{}, false
}

func isNumericConst(o qcode.Operand) bool {
	return o.Kind == qcode.IntConst || o.Kind == qcode.FloatConst
}

func asFloat(o qcode.Operand) float64 {
	if o.Kind == qcode.IntConst {
		return float64(o.Int)
	}
	return o.Float
}
