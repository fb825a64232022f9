package parser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rill-lang/rillc/lang/parser"
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/scanner"
)

func compileSrc(t *testing.T, src string) *qcode.Code {
	t.Helper()
	fs, lexOuts, err := scanner.ScanSource(context.Background(), "<test>", []byte(src))
	require.NoError(t, err)
	code, err := parser.Compile(fs.FileAt(0), lexOuts[0])
	require.NoError(t, err)
	return code
}

// parseErr compiles src expecting it to fail, returning the resulting error
// for the caller to inspect.
func parseErr(t *testing.T, src string) (*qcode.Code, error) {
	t.Helper()
	fs, lexOuts, err := scanner.ScanSource(context.Background(), "<test>", []byte(src))
	require.NoError(t, err)
	return parser.Compile(fs.FileAt(0), lexOuts[0])
}

// S1: constant folding (§8 scenario S1) — an all-literal arithmetic
// expression must fold to a single MOVE of the computed constant, never a
// real ADD/MUL instruction.
func TestConstantFolding(t *testing.T) {
	code := compileSrc(t, "x = 1 + 2 * 3\n")
	top := code.TopLevel()
	require.NotEmpty(t, top.Instructions)
	for _, in := range top.Instructions {
		assert.NotEqual(t, qcode.ADD, in.Op)
		assert.NotEqual(t, qcode.MUL, in.Op)
	}
}

// S2: single-target assignment must retarget the right-hand computation's
// destination directly into the target local, never through an extra MOVE
// round-trip via a temp.
func TestAssignmentRetarget(t *testing.T) {
	code := compileSrc(t, "x = 1\ny = x + x\n")
	top := code.TopLevel()
	var sawAddIntoLocal bool
	for _, in := range top.Instructions {
		if in.Op == qcode.ADD && in.Dst.Kind == qcode.Local {
			sawAddIntoLocal = true
		}
	}
	assert.True(t, sawAddIntoLocal, "expected the add to target a local directly")
}

// S3: an if/else must produce at least a guard jump and a join jump.
func TestIfElse(t *testing.T) {
	code := compileSrc(t, "if x\n  y = 1\nelse\n  y = 2\nend\n")
	top := code.TopLevel()
	var jumps int
	for _, in := range top.Instructions {
		if in.Op == qcode.JMP || in.Op == qcode.JMPIFFALSE {
			jumps++
		}
	}
	assert.GreaterOrEqual(t, jumps, 2)
}

// S4: a while loop must end with a backward jump to its condition test.
func TestWhileLoopBackwardJump(t *testing.T) {
	code := compileSrc(t, "while x\n  x = x - 1\nend\n")
	top := code.TopLevel()
	require.NotEmpty(t, top.Instructions)
	last := top.Instructions[len(top.Instructions)-2] // before the trailing RETNONE
	assert.Equal(t, qcode.JMP, last.Op)
}

// S5: a nested function capturing an enclosing function's parameter promotes
// it to an exhale slot in the owner and reads it through an inhale slot
// bound via GETBIND.
func TestClosureCapture(t *testing.T) {
	code := compileSrc(t, "f = function(x)\n  g = function()\n    return x\n  end\n  return g\nend\n")
	require.Len(t, code.Functions, 3)
	owner, nested := code.Functions[1], code.Functions[2]
	assert.True(t, owner.Flags.Has(qcode.FlagClosure))
	assert.True(t, nested.Flags.Has(qcode.FlagClosure))
	assert.Equal(t, uint32(1), nested.InhaleCount)
	var sawGetBind bool
	for _, in := range nested.Instructions {
		if in.Op == qcode.GETBIND {
			sawGetBind = true
		}
	}
	assert.True(t, sawGetBind)
}

// S6: a two-level closure capture threads an inhale slot through the
// intermediate frame rather than capturing the outer parameter directly.
func TestTwoLevelClosureCapture(t *testing.T) {
	code := compileSrc(t, "f = function(x)\n  mid = function()\n    inner = function()\n      return x\n    end\n    return inner\n  end\n  return mid\nend\n")
	require.Len(t, code.Functions, 4)
	mid, inner := code.Functions[2], code.Functions[3]
	assert.True(t, mid.Flags.Has(qcode.FlagClosure))
	assert.Equal(t, uint32(1), mid.InhaleCount)
	assert.Equal(t, uint32(1), inner.InhaleCount)
	require.Len(t, inner.InhaleSources, 1)
	assert.Equal(t, qcode.Inhale, inner.InhaleSources[0].Kind)
}

func TestArgumentPromotion(t *testing.T) {
	code := compileSrc(t, "f = function(a)\n  g = function()\n    return a\n  end\n  return g\nend\n")
	outer := code.Functions[1]
	require.NotEmpty(t, outer.Instructions)
	assert.Equal(t, qcode.SETBIND, outer.Instructions[0].Op)
}

func TestMultiTargetEllipsisAssignment(t *testing.T) {
	code := compileSrc(t, "a, ...rest, b = 1, 2, 3, 4\n")
	top := code.TopLevel()
	var sawMlistp bool
	for _, in := range top.Instructions {
		if in.Op == qcode.MLISTP {
			sawMlistp = true
		}
	}
	assert.True(t, sawMlistp)
}

func TestCompoundAssignment(t *testing.T) {
	code := compileSrc(t, "x = 1\nx += 2\n")
	top := code.TopLevel()
	var sawAdd bool
	for _, in := range top.Instructions {
		if in.Op == qcode.ADD {
			sawAdd = true
		}
	}
	assert.True(t, sawAdd)
}

func TestForLoopNumeric(t *testing.T) {
	code := compileSrc(t, "for i = 1, <10\n  x = i\nend\n")
	top := code.TopLevel()
	var sawClt bool
	for _, in := range top.Instructions {
		if in.Op == qcode.CLT {
			sawClt = true
		}
	}
	assert.True(t, sawClt)
}

// A descending numeric for-loop supplies `>` as its comparison operator and
// a negative step; the comparison must honor the supplied relop rather than
// always hardcoding an ascending CLT (§4.3, §8 "numeric for").
func TestForLoopNumericDescendingWithExplicitOp(t *testing.T) {
	code := compileSrc(t, "for i = 10, >0, -1\n  x = i\nend\n")
	top := code.TopLevel()
	var sawClt bool
	for _, in := range top.Instructions {
		if in.Op == qcode.CLT {
			sawClt = true
		}
	}
	assert.True(t, sawClt, "`>` lowers in terms of CLT with swapped operands")
}

func TestForLoopNumericMissingOperatorIsError(t *testing.T) {
	_, err := parseErr(t, "for i = 1, 10\n  x = i\nend\n")
	assert.Error(t, err)
}

func TestTryCatch(t *testing.T) {
	code := compileSrc(t, "try\n  x = 1\ncatch e\n  x = 2\nend\n")
	top := code.TopLevel()
	var sawXpush, sawXpop bool
	for _, in := range top.Instructions {
		switch in.Op {
		case qcode.XPUSH:
			sawXpush = true
		case qcode.XPOP:
			sawXpop = true
		}
	}
	assert.True(t, sawXpush)
	assert.True(t, sawXpop)
}

func TestParseErrorOnMalformedExpr(t *testing.T) {
	fs, lexOuts, err := scanner.ScanSource(context.Background(), "<test>", []byte("x = )\n"))
	require.NoError(t, err)
	_, cerr := parser.Compile(fs.FileAt(0), lexOuts[0])
	require.Error(t, cerr)
}

// §4.5: a run of same-precedence relational operators compiles as a
// short-circuit AND-chain, so `a < b < c` must jump rather than chain a
// plain left-associative CLT of a CLT.
func TestRelationalChain(t *testing.T) {
	code := compileSrc(t, "x = a < b < c\n")
	top := code.TopLevel()
	var cltCount, jumpIfFalse int
	for _, in := range top.Instructions {
		switch in.Op {
		case qcode.CLT:
			cltCount++
		case qcode.JMPIFFALSE:
			jumpIfFalse++
		}
	}
	assert.Equal(t, 2, cltCount, "both a<b and b<c must be emitted")
	assert.GreaterOrEqual(t, jumpIfFalse, 1, "the chain must short-circuit on the first failed link")
}

// §4.3/§8: assigning from a single bare call in tail position reads back
// each target's value directly off the call's frame-stack, guarded by a
// runtime stack-count assertion, instead of collapsing the call to one
// value.
func TestMultiReturnAssignFromCall(t *testing.T) {
	code := compileSrc(t, "f = function()\n  return 1, 2, 3\nend\na, b, c = f()\n")
	top := code.TopLevel()
	var sawAssertEq bool
	var moveFromStack int
	for _, in := range top.Instructions {
		switch in.Op {
		case qcode.ASSERTEQ:
			sawAssertEq = true
			assert.Equal(t, uint32(3), in.Dst.Index)
		case qcode.MOVE:
			if in.Src1.Kind == qcode.Stack {
				moveFromStack++
			}
		}
	}
	assert.True(t, sawAssertEq, "expected a stack-count assertion guarding the 3-target assignment")
	assert.Equal(t, 3, moveFromStack, "expected one stack read per target")
}

// §4.3 scenario S4: `a, ...b, c = f()` asserts at least as many values as
// the fixed targets need and collects the rest via MLISTP.
func TestMultiReturnEllipsisAssignFromCall(t *testing.T) {
	code := compileSrc(t, "f = function()\n  return 1, 2, 3, 4\nend\na, ...b, c = f()\n")
	top := code.TopLevel()
	var sawAssertGe, sawMlistp bool
	for _, in := range top.Instructions {
		switch in.Op {
		case qcode.ASSERTGE:
			sawAssertGe = true
			assert.Equal(t, uint32(2), in.Dst.Index) // one leading + one trailing fixed target
		case qcode.MLISTP:
			sawMlistp = true
		}
	}
	assert.True(t, sawAssertGe)
	assert.True(t, sawMlistp)
}

// A call whose result is used as an ordinary single value (not a bare
// tail-position RHS of a multi-target assignment) must still collapse to
// one value as before — multi-return consumption must not leak into the
// common case.
func TestSingleReturnCallStillCollapses(t *testing.T) {
	code := compileSrc(t, "f = function()\n  return 1, 2\nend\nx = f() + 1\n")
	top := code.TopLevel()
	for _, in := range top.Instructions {
		assert.NotEqual(t, qcode.ASSERTEQ, in.Op)
		assert.NotEqual(t, qcode.ASSERTGE, in.Op)
	}
}

// §4.3: the expression form of if selects one arm's value into a single
// register and requires the else arm.
func TestInlineIfExpr(t *testing.T) {
	code := compileSrc(t, "x = if a then 1 else 2 end\n")
	top := code.TopLevel()
	var jumpIfFalse, joins int
	for _, in := range top.Instructions {
		switch in.Op {
		case qcode.JMPIFFALSE:
			jumpIfFalse++
		case qcode.JMP:
			joins++
		}
	}
	assert.GreaterOrEqual(t, jumpIfFalse, 1)
	assert.GreaterOrEqual(t, joins, 1)
}

func TestInlineIfElseifChain(t *testing.T) {
	code := compileSrc(t, "x = if a then 1 elseif b then 2 else 3 end\n")
	top := code.TopLevel()
	var jumpIfFalse int
	for _, in := range top.Instructions {
		if in.Op == qcode.JMPIFFALSE {
			jumpIfFalse++
		}
	}
	assert.Equal(t, 2, jumpIfFalse)
}

func TestInlineIfMissingElseIsError(t *testing.T) {
	_, err := parseErr(t, "x = if a then 1 end\n")
	assert.Error(t, err)
}

// The statement form tolerates an explicit `then` between condition and
// body, matching the expression form's separator.
func TestStatementIfAcceptsThen(t *testing.T) {
	code := compileSrc(t, "if a then\n  x = 1\nend\n")
	top := code.TopLevel()
	var sawGuard bool
	for _, in := range top.Instructions {
		if in.Op == qcode.JMPIFFALSE {
			sawGuard = true
		}
	}
	assert.True(t, sawGuard)
}

func TestPublicMultipleNames(t *testing.T) {
	code := compileSrc(t, "public a, b\n")
	top := code.TopLevel()
	var setPublic int
	for _, in := range top.Instructions {
		if in.Op == qcode.SETPUBLIC {
			setPublic++
		}
	}
	assert.Equal(t, 2, setPublic)
}

func TestPublicInitializerSingleNameOnly(t *testing.T) {
	_, err := parseErr(t, "public a, b = 1\n")
	assert.Error(t, err)
}

func TestPublicOnLocalIsError(t *testing.T) {
	_, err := parseErr(t, "x = 1\npublic x\n")
	assert.Error(t, err)
}

func TestOptionalParamBeforeRequiredIsError(t *testing.T) {
	_, err := parseErr(t, "f = function(a = 1, b)\nend\n")
	assert.Error(t, err)
}

// `{ function name() ... end }` is sugar for `{ name: function() ... end }`.
func TestNamedFunctionInTableLiteral(t *testing.T) {
	code := compileSrc(t, "t = { function m() return 1 end }\n")
	require.Len(t, code.Functions, 2)
	top := code.TopLevel()
	var sawNewDict bool
	for _, in := range top.Instructions {
		if in.Op == qcode.NEWDICT {
			sawNewDict = true
		}
	}
	assert.True(t, sawNewDict)
}

func TestUnnamedFunctionInTableLiteralIsError(t *testing.T) {
	_, err := parseErr(t, "t = { function() return 1 end }\n")
	assert.Error(t, err)
}

func TestStrayEndIsError(t *testing.T) {
	_, err := parseErr(t, "end\n")
	assert.Error(t, err)
}

// A plain assignment introduces a local; only the `public` statement makes
// a name public.
func TestAssignmentToUndeclaredMakesLocal(t *testing.T) {
	code := compileSrc(t, "x = 1\n")
	top := code.TopLevel()
	assert.Equal(t, uint32(1), top.LocalCount)
	for _, in := range top.Instructions {
		assert.NotEqual(t, qcode.SETPUBLIC, in.Op)
	}
}

// S2 prerequisite: a statement-form function's name is visible inside its
// own body, so a self-call resolves as a closure binding of the enclosing
// slot rather than a public lookup.
func TestFunctionStatementSelfReference(t *testing.T) {
	code := compileSrc(t, "function f(n)\n  return f(n)\nend\n")
	require.Len(t, code.Functions, 2)
	top, fn := code.TopLevel(), code.Functions[1]
	assert.Equal(t, uint32(1), top.ExhaleCount)
	assert.Equal(t, uint32(1), fn.InhaleCount)
	var sawGetBind, sawGetPublic bool
	for _, in := range fn.Instructions {
		switch in.Op {
		case qcode.GETBIND:
			sawGetBind = true
		case qcode.GETPUBLIC:
			sawGetPublic = true
		}
	}
	assert.True(t, sawGetBind, "self-reference must read the bound slot")
	assert.False(t, sawGetPublic, "self-reference must not fall back to a public lookup")
}
