package pcode_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rill-lang/rillc/lang/pcode"
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/token"
)

func newCode(fns ...*qcode.Func) *qcode.Code {
	c := qcode.NewCode(1)
	for _, fn := range fns {
		c.AddFunc(fn)
	}
	return c
}

func disasmString(t *testing.T, prog *pcode.Program) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, pcode.Disassemble(prog, &buf))
	return buf.String()
}

func TestLowerMoveAndReturn(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	t0 := fn.AllocTemp()
	t1 := fn.AllocTemp()
	fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.TempOperand(t0), Src1: qcode.TempOperand(t1)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	prog, err := pcode.Lower(newCode(fn))
	require.NoError(t, err)

	out := disasmString(t, prog)
	assert.Contains(t, out, "move.r")
	assert.Contains(t, out, "retnone")
}

func TestLowerBinaryChoosesLFormForSmallInt(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	t0 := fn.AllocTemp()
	t1 := fn.AllocTemp()
	fn.AddInstr(qcode.Instr{Op: qcode.ADD, Dst: qcode.TempOperand(t0), Src1: qcode.TempOperand(t1), Src2: qcode.IntOperand(5)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	prog, err := pcode.Lower(newCode(fn))
	require.NoError(t, err)

	out := disasmString(t, prog)
	assert.Contains(t, out, "add.rl")
	assert.Contains(t, out, "#5")
	assert.NotContains(t, out, "ldint")
}

func TestLowerBinaryMaterializesFloat(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	t0 := fn.AllocTemp()
	t1 := fn.AllocTemp()
	fn.AddInstr(qcode.Instr{Op: qcode.ADD, Dst: qcode.TempOperand(t0), Src1: qcode.TempOperand(t1), Src2: qcode.FloatOperand(1.5)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	prog, err := pcode.Lower(newCode(fn))
	require.NoError(t, err)

	out := disasmString(t, prog)
	assert.Contains(t, out, "ldflt")
	assert.Contains(t, out, "add.rr")
	assert.Contains(t, out, "1.5")
}

func TestLowerBinaryMaterializesOversizedInt(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	t0 := fn.AllocTemp()
	t1 := fn.AllocTemp()
	fn.AddInstr(qcode.Instr{Op: qcode.ADD, Dst: qcode.TempOperand(t0), Src1: qcode.TempOperand(t1), Src2: qcode.IntOperand(1 << 20)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	prog, err := pcode.Lower(newCode(fn))
	require.NoError(t, err)

	out := disasmString(t, prog)
	assert.Contains(t, out, "ldint")
	assert.Contains(t, out, "add.rr")
	assert.Contains(t, out, "1048576")
}

func TestLowerJumpTargetsInstructionStart(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	t0 := fn.AllocTemp()
	label := fn.Labels.New()
	fn.AddInstr(qcode.Instr{Op: qcode.JMP, Dst: qcode.LabelOperand(label)})
	idx := fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.TempOperand(t0), Src1: qcode.TempOperand(t0)})
	fn.Labels.Bind(label, idx)
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	prog, err := pcode.Lower(newCode(fn))
	require.NoError(t, err)
	require.NoError(t, pcode.Disassemble(prog, &bytes.Buffer{}))

	// the jmp at offset 2 (past the DEL marker) must target the move
	// instruction's own start offset, not some other byte.
	out := disasmString(t, prog)
	assert.Contains(t, out, "jmp")
	assert.Contains(t, out, "move.r")
	assert.Contains(t, out, "-> 0004")
}

func TestLowerAttributeAndPublicAccessResolvePoolNames(t *testing.T) {
	var idents token.Pool
	nameFoo := idents.Intern("foo")
	nameBar := idents.Intern("bar")

	fn := qcode.NewFunc(1, qcode.NoParent)
	t0 := fn.AllocTemp()
	t1 := fn.AllocTemp()
	fn.AddInstr(qcode.Instr{Op: qcode.GETATTR, Dst: qcode.TempOperand(t0), Src1: qcode.TempOperand(t1), Src2: qcode.IdentOperand(nameFoo)})
	fn.AddInstr(qcode.Instr{Op: qcode.SETPUBLIC, Dst: qcode.PublicOperand(nameBar), Src1: qcode.TempOperand(t0)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	code := newCode(fn)
	code.IdentPool = idents

	prog, err := pcode.Lower(code)
	require.NoError(t, err)

	out := disasmString(t, prog)
	assert.Contains(t, out, `"foo"`)
	assert.Contains(t, out, `"bar"`)
	assert.Contains(t, out, "getattr")
	assert.Contains(t, out, "setpublic")
}

func TestLowerDropsIdentifierOnlyUsedByDeletedInstruction(t *testing.T) {
	var idents token.Pool
	nameDead := idents.Intern("neverused")
	nameLive := idents.Intern("stillused")

	fn := qcode.NewFunc(1, qcode.NoParent)
	t0 := fn.AllocTemp()
	t1 := fn.AllocTemp()
	// a dead instruction referencing nameDead: the optimizer would have
	// turned this into DELETE before the lowerer ever sees it.
	fn.AddInstr(qcode.Instr{Op: qcode.DELETE, Dst: qcode.TempOperand(t0), Src1: qcode.TempOperand(t1), Src2: qcode.IdentOperand(nameDead)})
	fn.AddInstr(qcode.Instr{Op: qcode.GETATTR, Dst: qcode.TempOperand(t0), Src1: qcode.TempOperand(t1), Src2: qcode.IdentOperand(nameLive)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})
	_ = nameDead

	code := newCode(fn)
	code.IdentPool = idents

	prog, err := pcode.Lower(code)
	require.NoError(t, err)

	out := disasmString(t, prog)
	assert.Contains(t, out, `"stillused"`)
	assert.NotContains(t, out, "neverused")
}

func TestLowerClosureBindOperations(t *testing.T) {
	parent := qcode.NewFunc(1, qcode.NoParent)
	eidx := parent.AllocExhale()
	require.True(t, parent.Flags.Has(qcode.FlagClosure))

	child := qcode.NewFunc(2, 0)
	iidx := child.AllocInhale(qcode.ExhaleOperand(eidx))
	t0 := child.AllocTemp()
	child.AddInstr(qcode.Instr{Op: qcode.GETBIND, Dst: qcode.TempOperand(t0), Src1: qcode.InhaleOperand(iidx)})
	child.AddInstr(qcode.Instr{Op: qcode.RETNONE})
	parent.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	prog, err := pcode.Lower(newCode(parent, child))
	require.NoError(t, err)

	out := disasmString(t, prog)
	assert.Contains(t, out, "getbind")
	assert.Contains(t, out, "inhale[0] <- exhale(0)")
	assert.Contains(t, out, "parent=0")
}

func TestLowerFunctionTooManyRegistersReportsError(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	var last uint32
	for i := 0; i < 300; i++ {
		last = fn.AllocTemp()
	}
	t0 := fn.AllocTemp()
	fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.TempOperand(t0), Src1: qcode.TempOperand(last)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	_, err := pcode.Lower(newCode(fn))
	assert.Error(t, err)
}

func TestLowerNewListAndAsserts(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	t0 := fn.AllocTemp()
	fn.AddInstr(qcode.Instr{Op: qcode.NEWLIST, Dst: qcode.TempOperand(t0), Src1: qcode.UImmOperand(3)})
	fn.AddInstr(qcode.Instr{Op: qcode.ASSERTEQ, Dst: qcode.UImmOperand(2)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	prog, err := pcode.Lower(newCode(fn))
	require.NoError(t, err)

	out := disasmString(t, prog)
	assert.Contains(t, out, "newlist")
	assert.Contains(t, out, "asserteq")
}

func TestLowerStackMoves(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	t0 := fn.AllocTemp()
	fn.AddInstr(qcode.Instr{Op: qcode.PUSHF})
	fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.StackOperand(0, false), Src1: qcode.IntOperand(7)})
	fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.TempOperand(t0), Src1: qcode.StackOperand(1, true)})
	fn.AddInstr(qcode.Instr{Op: qcode.POPF})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	prog, err := pcode.Lower(newCode(fn))
	require.NoError(t, err)

	out := disasmString(t, prog)
	assert.Contains(t, out, "stkput")
	assert.Contains(t, out, "stkget")
	assert.Contains(t, out, "ldint") // the pushed literal is materialized first
	assert.Contains(t, out, "stack[-1]")
}

func TestLowerIteratorOps(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	t0 := fn.AllocTemp()
	t1 := fn.AllocTemp()
	fn.AddInstr(qcode.Instr{Op: qcode.ITERINIT, Dst: qcode.TempOperand(t0)})
	fn.AddInstr(qcode.Instr{Op: qcode.ITERNEXT, Dst: qcode.TempOperand(t1), Src1: qcode.TempOperand(t0)})
	fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})

	prog, err := pcode.Lower(newCode(fn))
	require.NoError(t, err)

	out := disasmString(t, prog)
	assert.Contains(t, out, "iterinit")
	assert.Contains(t, out, "iternext")
}
