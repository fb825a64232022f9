package optimizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rill-lang/rillc/lang/optimizer"
	"github.com/rill-lang/rillc/lang/qcode"
)

// buildCallReturn assembles the four-instruction tail `FCALL; MOVE t0, stk[0];
// POPF; RETONE t0` that the parser emits for `return f(n)` (§8 scenario S2),
// after a PUSHF, optionally followed by the given trailing instructions.
func buildCallReturn(trailing ...qcode.Instr) *qcode.Func {
	fn := qcode.NewFunc(1, qcode.NoParent)
	fn.AddInstr(qcode.Instr{Op: qcode.PUSHF})
	fn.AddInstr(qcode.Instr{Op: qcode.FCALL, Dst: qcode.StackOperand(0, false), Src1: qcode.FuncOperand(0)})
	t0 := qcode.TempOperand(0)
	fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: t0, Src1: qcode.StackOperand(0, false)})
	fn.AddInstr(qcode.Instr{Op: qcode.POPF})
	fn.AddInstr(qcode.Instr{Op: qcode.RETONE, Dst: t0})
	for _, in := range trailing {
		fn.AddInstr(in)
	}
	return fn
}

func TestTailCallRewrite(t *testing.T) {
	fn := buildCallReturn()
	optimizer.Optimize(codeOf(fn))

	require.Len(t, fn.Instructions, 5)
	assert.Equal(t, qcode.PUSHF, fn.Instructions[0].Op)
	assert.Equal(t, qcode.FTAIL, fn.Instructions[1].Op, "call must become the tail-call variant")
	assert.Equal(t, qcode.DELETE, fn.Instructions[2].Op)
	assert.Equal(t, qcode.DELETE, fn.Instructions[3].Op)
	assert.Equal(t, qcode.DELETE, fn.Instructions[4].Op)
}

func TestTailCallNotRewrittenForNonZeroStackRead(t *testing.T) {
	// The pass matches the exact FCALL/MOVE t, stk[0]/POPF/RETONE t shape;
	// a call whose returned value is read from a stack position other than
	// 0 is not that shape, so the FCALL must be left untouched.
	fn := qcode.NewFunc(1, qcode.NoParent)
	fn.AddInstr(qcode.Instr{Op: qcode.PUSHF})
	fn.AddInstr(qcode.Instr{Op: qcode.FCALL, Dst: qcode.StackOperand(0, false), Src1: qcode.FuncOperand(0)})
	// Value is captured from a non-zero stack position: not the tail shape.
	fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.TempOperand(0), Src1: qcode.StackOperand(1, false)})
	fn.AddInstr(qcode.Instr{Op: qcode.POPF})
	fn.AddInstr(qcode.Instr{Op: qcode.RETONE, Dst: qcode.TempOperand(0)})
	optimizer.Optimize(codeOf(fn))

	assert.Equal(t, qcode.FCALL, fn.Instructions[1].Op, "non-tail shape must not be rewritten")
}

func TestJumpChainMerge(t *testing.T) {
	// jmp L1; L1: jmp L2; L2: retnone  — B (the jmp at L1) is reachable only
	// from A, per §8 scenario S5.
	fn := qcode.NewFunc(1, qcode.NoParent)
	l1 := fn.Labels.New()
	l2 := fn.Labels.New()

	fn.AddInstr(qcode.Instr{Op: qcode.JMP, Dst: qcode.LabelOperand(l1)}) // A -> L1
	fn.Labels.Bind(l1, uint32(len(fn.Instructions)))
	fn.AddInstr(qcode.Instr{Op: qcode.JMP, Dst: qcode.LabelOperand(l2)}) // B -> L2
	fn.Labels.Bind(l2, uint32(len(fn.Instructions)))
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	optimizer.Optimize(codeOf(fn))

	target, ok := fn.Labels.Target(l1)
	require.True(t, ok)
	assert.Equal(t, uint32(2), target, "A must now resolve directly to C, skipping B")
}

func TestDeadCodeEliminationRemovesUnreachableBlock(t *testing.T) {
	// jmp L1; <dead add>; L1: retnone
	fn := qcode.NewFunc(1, qcode.NoParent)
	l1 := fn.Labels.New()
	fn.AddInstr(qcode.Instr{Op: qcode.JMP, Dst: qcode.LabelOperand(l1)})
	fn.AddInstr(qcode.Instr{Op: qcode.ADD, Dst: qcode.TempOperand(1), Src1: qcode.TempOperand(1), Src2: qcode.IntOperand(1)})
	fn.Labels.Bind(l1, uint32(len(fn.Instructions)))
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	optimizer.Optimize(codeOf(fn))

	assert.Equal(t, qcode.DELETE, fn.Instructions[1].Op)
}

func TestDeadCodeEliminationIdempotent(t *testing.T) {
	// §8 property 6: running DCE twice is the same as running it once.
	fn := qcode.NewFunc(1, qcode.NoParent)
	l1 := fn.Labels.New()
	fn.AddInstr(qcode.Instr{Op: qcode.JMP, Dst: qcode.LabelOperand(l1)})
	fn.AddInstr(qcode.Instr{Op: qcode.ADD, Dst: qcode.TempOperand(1), Src1: qcode.TempOperand(1), Src2: qcode.IntOperand(1)})
	fn.Labels.Bind(l1, uint32(len(fn.Instructions)))
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	optimizer.Optimize(codeOf(fn))
	first := append([]qcode.Instr(nil), fn.Instructions...)

	optimizer.Optimize(codeOf(fn))
	assert.Equal(t, first, fn.Instructions)
}

func TestTempCoalescingNeverRemapsTempZero(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	fn.TempCount = 3
	fn.AddInstr(qcode.Instr{Op: qcode.ADD, Dst: qcode.TempOperand(0), Src1: qcode.TempOperand(1), Src2: qcode.TempOperand(2)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETONE, Dst: qcode.TempOperand(0)})

	optimizer.Optimize(codeOf(fn))

	assert.Equal(t, qcode.TempOperand(0), fn.Instructions[0].Dst)
}

func TestTempCoalescingReusesNonOverlappingLiveRanges(t *testing.T) {
	// t1 is written and fully consumed before t2 is ever written: a
	// non-overlapping pair should collapse onto the same physical register.
	fn := qcode.NewFunc(1, qcode.NoParent)
	fn.TempCount = 3
	fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.TempOperand(1), Src1: qcode.IntOperand(1)})
	fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.LocalOperand(0), Src1: qcode.TempOperand(1)})
	fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.TempOperand(2), Src1: qcode.IntOperand(2)})
	fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.LocalOperand(1), Src1: qcode.TempOperand(2)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	optimizer.Optimize(codeOf(fn))

	assert.Equal(t, fn.Instructions[0].Dst, fn.Instructions[2].Dst, "non-overlapping temps should share a register")
	assert.Less(t, fn.TempCount, uint32(3), "peak simultaneous temp count should shrink")
}

// codeOf wraps a single *qcode.Func in a *qcode.Code so it can be passed to
// optimizer.Optimize, which iterates Code.Functions.
func codeOf(fn *qcode.Func) *qcode.Code {
	c := qcode.NewCode(fn.Line)
	c.Functions = append(c.Functions, fn)
	return c
}
