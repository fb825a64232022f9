package qcode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rill-lang/rillc/lang/qcode"
)

func TestOperandStrings(t *testing.T) {
	cases := []struct {
		op   qcode.Operand
		want string
	}{
		{qcode.NoOperand(), "-"},
		{qcode.TempOperand(3), "t3"},
		{qcode.LocalOperand(1), "l1"},
		{qcode.ExhaleOperand(0), "e0"},
		{qcode.InhaleOperand(2), "i2"},
		{qcode.IntOperand(-7), "int(-7)"},
		{qcode.TrueOperand(), "true"},
		{qcode.StackOperand(1, true), "stk[-1]"},
		{qcode.StackOperand(1, false), "stk[1]"},
		{qcode.BindableOperand(5, 2), "<bindable#5@2>"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.op.String())
	}
}

func TestOperandClassification(t *testing.T) {
	assert.True(t, qcode.TempOperand(0).IsRegisterLike())
	assert.False(t, qcode.IntOperand(1).IsRegisterLike())
	assert.True(t, qcode.IntOperand(1).IsLiteral())
	assert.True(t, qcode.BindableOperand(0, 1).IsCompileTimeOnly())
	assert.False(t, qcode.TempOperand(0).IsCompileTimeOnly())
}

func TestOpcodeWritesDst(t *testing.T) {
	assert.True(t, qcode.ADD.WritesDst())
	assert.False(t, qcode.SETATTR.WritesDst())
	assert.True(t, qcode.RETNONE.WritesDst()) // zero operands: vacuously not store-like
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "add", qcode.ADD.String())
	assert.Contains(t, qcode.Opcode(255).String(), "illegal")
}

func TestInstrString(t *testing.T) {
	in := qcode.Instr{Op: qcode.ADD, Dst: qcode.TempOperand(0), Src1: qcode.TempOperand(1), Src2: qcode.IntOperand(2)}
	assert.Equal(t, "add t0, t1, int(2)", in.String())

	store := qcode.Instr{Op: qcode.SETATTR, Dst: qcode.TempOperand(0), Src1: qcode.IdentOperand(1), Src2: qcode.TempOperand(2)}
	assert.Equal(t, "setattr t0, ident#1, t2", store.String())
}

func TestFuncAllocation(t *testing.T) {
	fn := qcode.NewFunc(1, qcode.NoParent)
	require.Equal(t, uint32(0), fn.AllocTemp())
	require.Equal(t, uint32(1), fn.AllocTemp())
	require.Equal(t, uint32(0), fn.AllocLocal())

	assert.False(t, fn.Flags.Has(qcode.FlagClosure))
	eidx := fn.AllocExhale()
	assert.Equal(t, uint32(0), eidx)
	assert.True(t, fn.Flags.Has(qcode.FlagClosure))

	idx := fn.AddInstr(qcode.Instr{Op: qcode.MOVE, Dst: qcode.TempOperand(0), Src1: qcode.TempOperand(1)})
	assert.Equal(t, uint32(0), idx)
	assert.Len(t, fn.Instructions, 1)
}

func TestFuncAllocInhaleRecordsSource(t *testing.T) {
	fn := qcode.NewFunc(1, 0)
	src := qcode.ExhaleOperand(4)
	idx := fn.AllocInhale(src)
	assert.Equal(t, uint32(0), idx)
	require.Len(t, fn.InhaleSources, 1)
	assert.Equal(t, src, fn.InhaleSources[0])
}

func TestLabelTableBindAndRetarget(t *testing.T) {
	var lt qcode.LabelTable
	l1 := lt.New()
	l2 := lt.New()
	assert.Equal(t, 2, lt.Len())

	_, ok := lt.Target(l1)
	assert.False(t, ok)

	lt.Bind(l2, 10)
	lt.Retarget(l1, l2)
	got, ok := lt.Target(l1)
	require.True(t, ok)
	assert.Equal(t, uint32(10), got)
}

func TestCodeAddFuncAndTopLevel(t *testing.T) {
	c := qcode.NewCode(1)
	assert.Nil(t, c.TopLevel())

	top := qcode.NewFunc(1, qcode.NoParent)
	idx := c.AddFunc(top)
	assert.Equal(t, uint32(0), idx)
	assert.Same(t, top, c.TopLevel())

	nested := qcode.NewFunc(2, idx)
	c.AddFunc(nested)
	assert.Len(t, c.Functions, 2)
}
