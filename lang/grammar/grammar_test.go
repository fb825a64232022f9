// Package grammar pins down edge values in the encodings other packages
// build on: VLQ/CLQ boundary widths and the Q-operand tagged-union's Kind
// coverage. It exists for the same reason the teacher keeps a dedicated
// regression package alongside its main test suites: these are the values
// most likely to silently break in a one-line refactor (an off-by-one in a
// width boundary, a Kind added without updating String/IsLiteral/etc.)
// without any single package-level test catching it directly.
package grammar_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/vlq"
)

// allKinds lists every qcode.Kind, in declaration order, so the exhaustive
// checks below fail loudly the moment a new Kind is added without updating
// them.
var allKinds = []qcode.Kind{
	qcode.None,
	qcode.Temp, qcode.Local, qcode.Exhale, qcode.Inhale,
	qcode.Public, qcode.Identifier, qcode.StrConst, qcode.StrIdent,
	qcode.IntConst, qcode.FloatConst, qcode.NullConst, qcode.TrueConst, qcode.FalseConst,
	qcode.Label, qcode.Stack, qcode.FuncRef, qcode.UImm, qcode.WithSink,
	qcode.AttrSlot, qcode.IndexSlot, qcode.CallResult, qcode.Bindable,
}

// TestOperandKindsAreMutuallyExclusive pins the three classification
// predicates (IsRegisterLike, IsLiteral, IsCompileTimeOnly) so that no Kind
// is ever double-counted: the lowerer's R/L-form opcode selection (§4.7)
// depends on exactly one view applying per operand.
func TestOperandKindsAreMutuallyExclusive(t *testing.T) {
	for _, k := range allKinds {
		o := qcode.Operand{Kind: k}
		flags := 0
		if o.IsRegisterLike() {
			flags++
		}
		if o.IsLiteral() {
			flags++
		}
		if o.IsCompileTimeOnly() {
			flags++
		}
		assert.LessOrEqual(t, flags, 1, "kind %v satisfies more than one operand classification", k)
	}
}

// TestOperandStringIsExhaustive catches a Kind added to the const block
// without a matching case in Operand.String: the fallback "<invalid
// operand>" would otherwise pass through silently into disassembler output.
func TestOperandStringIsExhaustive(t *testing.T) {
	for _, k := range allKinds {
		o := qcode.Operand{Kind: k}
		assert.NotEqual(t, "<invalid operand>", o.String(), "kind %v has no String case", k)
	}
}

// TestBindableCarriesDepth and TestStackFromEndEdge pin the two Kinds whose
// payload is more than a bare Index: a regression here would silently
// corrupt closure-capture hop counts or ellipsis-unpack "from the end"
// reads (§4.2, §4.3) while every other field still round-trips fine.
func TestBindableCarriesDepth(t *testing.T) {
	o := qcode.BindableOperand(7, 0)
	assert.Equal(t, uint32(0), o.Depth, "zero hop count (directly enclosing frame) must be distinguishable from unset")
	assert.Contains(t, o.String(), "@0")

	o = qcode.BindableOperand(7, math.MaxUint32)
	assert.Equal(t, uint32(math.MaxUint32), o.Depth)
}

func TestStackFromEndEdge(t *testing.T) {
	base := qcode.StackOperand(0, false)
	top := qcode.StackOperand(0, true)
	assert.NotEqual(t, base.String(), top.String(), "index 0 from the base and from the end must render distinctly")
}

// NoName and NoParent are both ^uint32(0): a function at index 0 (a
// perfectly legal ParentIndex) must never collide with the sentinel.
func TestParentSentinelDoesNotAliasIndexZero(t *testing.T) {
	assert.NotEqual(t, uint32(0), qcode.NoParent)
	assert.Equal(t, qcode.NoParent, qcode.NoName)
}

// TestSizeBoundaries pins the exact byte counts at which VLQ-size grows
// (§3 "VLQ-size"): 127 is the last single-byte value; from 128 on a header
// byte is followed by the value's big-endian bytes, so 128 takes 2 bytes and
// 16383 and 16384 (two value bytes each) take 3.
func TestSizeBoundaries(t *testing.T) {
	cases := []struct {
		v    uint64
		want int
	}{
		{0, 1}, {127, 1}, {128, 2}, {16383, 3}, {16384, 3},
	}
	for _, c := range cases {
		enc := vlq.EncodeSize(nil, c.v)
		assert.Len(t, enc, c.want, "v=%d", c.v)
		got, n := vlq.DecodeSize(enc)
		require.Equal(t, len(enc), n)
		assert.Equal(t, c.v, got)
	}
}

// TestIntSignBoundaries pins VLQ-int's narrower first group (6 data bits,
// one of the 7 reserved for the sign flag per §3 "VLQ-int"): 63/-64 are the
// largest magnitudes that still fit in one byte.
func TestIntSignBoundaries(t *testing.T) {
	for _, v := range []int64{63, -64, 64, -65} {
		enc := vlq.EncodeInt(nil, v)
		got, n := vlq.DecodeInt(enc)
		require.Equal(t, len(enc), n, "v=%d", v)
		assert.Equal(t, v, got)
	}
	assert.Len(t, vlq.EncodeInt(nil, 63), 1)
	assert.Len(t, vlq.EncodeInt(nil, -64), 1)
	assert.Greater(t, len(vlq.EncodeInt(nil, 64)), 1)
	assert.Greater(t, len(vlq.EncodeInt(nil, -65)), 1)
}

// TestConstWidthBoundaries pins CLQ's four fixed widths (§4.7 "Jump width"):
// the lowerer picks the narrowest width that fits every jump target in a
// function, so getting a boundary off by one byte here would corrupt
// reachability for every jump past it.
func TestConstWidthBoundaries(t *testing.T) {
	cases := []struct {
		v    uint32
		want int
	}{
		{0xff, 1}, {0x100, 2},
		{0xffff, 2}, {0x10000, 3},
		{0xffffff, 3}, {0x1000000, 4},
		{math.MaxUint32, 4},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, vlq.WidthFor(c.v), "v=%d", c.v)
		enc := vlq.EncodeConst(nil, c.v, c.want)
		got, ok := vlq.DecodeConst(enc, c.want)
		require.True(t, ok)
		assert.Equal(t, c.v, got)
	}
}
