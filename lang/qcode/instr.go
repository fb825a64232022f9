package qcode

import "fmt"

// Instr is a Q-instruction: one three-address operation plus its originating
// source line (§3 "Q-instruction"). Dst/Src1/Src2 are interpreted according
// to Op's entry in operandCounts; an operand kind of None in an unused slot
// is normal and expected.
type Instr struct {
	Op   Opcode
	Dst  Operand
	Src1 Operand
	Src2 Operand
	Line int32
}

// Deleted reports whether this instruction was marked dead by the optimizer's
// dead-code pass, and should be skipped by anything walking the instruction
// list (jump retargeting already accounts for these when merging chains).
func (in Instr) Deleted() bool { return in.Op == DELETE }

func (in Instr) String() string {
	n := OperandCount(in.Op)
	neg := n < 0
	if neg {
		n = -n
	}
	switch {
	case n == 0:
		return in.Op.String()
	case neg:
		// store-like: the "dst" slot is actually read
		switch n {
		case 1:
			return fmt.Sprintf("%s %s", in.Op, in.Dst)
		case 2:
			return fmt.Sprintf("%s %s, %s", in.Op, in.Dst, in.Src1)
		default:
			return fmt.Sprintf("%s %s, %s, %s", in.Op, in.Dst, in.Src1, in.Src2)
		}
	default:
		switch n {
		case 1:
			return fmt.Sprintf("%s %s, %s", in.Op, in.Dst, in.Src1)
		case 2:
			return fmt.Sprintf("%s %s, %s, %s", in.Op, in.Dst, in.Src1, in.Src2)
		default:
			return in.Op.String()
		}
	}
}
