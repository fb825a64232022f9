// Package qcode defines the three-address intermediate representation
// (§3 "Q-operand", "Q-instruction", "Q-function", "Q-code") produced by the
// parser and Q-code builder, consumed by the optimizer and the P-code
// lowerer.
//
// Per the design note on "Pointer-as-union operand", Operand is an explicit
// sum type (a Kind tag plus one value field per possible payload shape), not
// a memory-aliased union: every call site already switches on Kind, so the
// explicit form costs nothing and is safe to copy, compare and print.
package qcode

import "fmt"

// Kind identifies which alternative of the Q-operand tagged union is in use.
type Kind uint8

//nolint:revive
const (
	None Kind = iota // absent operand (e.g. unary op has no Src2)

	Temp   // temporary register, Index = register number
	Local  // local slot, Index = local number
	Exhale // exhale (captured-variable storage) slot, Index = exhale number
	Inhale // inhale (captured-variable reference) slot, Index = inhale number

	Public     // module-public slot, Index = identifier-pool ordinal
	Identifier // identifier-pool reference (e.g. attribute name), Index = ordinal
	StrConst   // string-pool reference, Index = ordinal
	StrIdent   // a string literal sourced from the identifier pool, Index = ordinal

	IntConst   // Int holds the literal value
	FloatConst // Float holds the literal value
	NullConst
	TrueConst
	FalseConst

	Label // jump label, Index = label-table index

	// Stack is a positional reference into the current frame-stack. Index
	// counts from the frame base unless FromEnd is set, in which case it
	// counts back from the frame's current top (used for ellipsis-unpack
	// "last" references, see §4.3 Multi-target assignment).
	Stack

	FuncRef // function-table index, Index = function number

	UImm // unsigned immediate (e.g. argument counts baked into an opcode)

	WithSink // with-stack sink, receives a with-scope's prior value

	// --- compile-time-only operands, never reach the lowerer ---

	AttrSlot   // pending attribute-chain slot (parser/builder internal)
	IndexSlot  // pending index-chain slot (parser/builder internal)
	CallResult // marks "the result of the call just emitted" (value-state bookkeeping)

	// Bindable is a placeholder meaning "this identifier refers to something
	// Depth enclosing-function hops away"; Index carries the identifier-pool
	// ordinal used to look the name up again in the owning book, Depth the
	// hop count. Resolved into Inhale on first reference by the binder.
	Bindable
)

// Operand is the tagged union described above.
type Operand struct {
	Kind Kind

	Index uint32 // register/slot/ordinal/label/function index, as Kind dictates
	Depth uint32 // Bindable: hop count to the owning frame

	Int   int64   // IntConst
	Float float64 // FloatConst

	FromEnd bool // Stack: Index counts from the frame's current top, not its base
}

// Operand constructors, one per Kind that needs more than Kind+Index.

func NoOperand() Operand                 { return Operand{Kind: None} }
func TempOperand(i uint32) Operand       { return Operand{Kind: Temp, Index: i} }
func LocalOperand(i uint32) Operand      { return Operand{Kind: Local, Index: i} }
func ExhaleOperand(i uint32) Operand     { return Operand{Kind: Exhale, Index: i} }
func InhaleOperand(i uint32) Operand     { return Operand{Kind: Inhale, Index: i} }
func PublicOperand(i uint32) Operand     { return Operand{Kind: Public, Index: i} }
func IdentOperand(i uint32) Operand      { return Operand{Kind: Identifier, Index: i} }
func StrOperand(i uint32) Operand        { return Operand{Kind: StrConst, Index: i} }
func StrIdentOperand(i uint32) Operand   { return Operand{Kind: StrIdent, Index: i} }
func IntOperand(v int64) Operand         { return Operand{Kind: IntConst, Int: v} }
func FloatOperand(v float64) Operand     { return Operand{Kind: FloatConst, Float: v} }
func NullOperand() Operand               { return Operand{Kind: NullConst} }
func TrueOperand() Operand               { return Operand{Kind: TrueConst} }
func FalseOperand() Operand              { return Operand{Kind: FalseConst} }
func LabelOperand(i uint32) Operand      { return Operand{Kind: Label, Index: i} }
func FuncOperand(i uint32) Operand       { return Operand{Kind: FuncRef, Index: i} }
func UImmOperand(v uint32) Operand       { return Operand{Kind: UImm, Index: v} }
func WithSinkOperand() Operand           { return Operand{Kind: WithSink} }
func BindableOperand(i, depth uint32) Operand {
	return Operand{Kind: Bindable, Index: i, Depth: depth}
}

// StackOperand returns a positional frame-stack operand; if fromEnd is true,
// i counts back from the current top of the stack instead of the base.
func StackOperand(i uint32, fromEnd bool) Operand {
	return Operand{Kind: Stack, Index: i, FromEnd: fromEnd}
}

// IsRegisterLike reports whether the operand occupies a VM register slot
// (temp/local/exhale/inhale) — the forms the P-code lowerer can place
// directly in an R-form operand position without materializing a literal.
func (o Operand) IsRegisterLike() bool {
	switch o.Kind {
	case Temp, Local, Exhale, Inhale:
		return true
	}
	return false
}

// IsLiteral reports whether the operand is a compile-time constant the
// lowerer may be able to encode as an immediate (L-form) operand.
func (o Operand) IsLiteral() bool {
	switch o.Kind {
	case IntConst, FloatConst, NullConst, TrueConst, FalseConst:
		return true
	}
	return false
}

// IsCompileTimeOnly reports whether the operand kind must never survive to
// the P-code lowerer.
func (o Operand) IsCompileTimeOnly() bool {
	switch o.Kind {
	case AttrSlot, IndexSlot, CallResult, Bindable, None:
		return true
	}
	return false
}

func (o Operand) String() string {
	switch o.Kind {
	case None:
		return "-"
	case Temp:
		return fmt.Sprintf("t%d", o.Index)
	case Local:
		return fmt.Sprintf("l%d", o.Index)
	case Exhale:
		return fmt.Sprintf("e%d", o.Index)
	case Inhale:
		return fmt.Sprintf("i%d", o.Index)
	case Public:
		return fmt.Sprintf("pub#%d", o.Index)
	case Identifier:
		return fmt.Sprintf("ident#%d", o.Index)
	case StrConst:
		return fmt.Sprintf("str#%d", o.Index)
	case StrIdent:
		return fmt.Sprintf("stridn#%d", o.Index)
	case IntConst:
		return fmt.Sprintf("int(%d)", o.Int)
	case FloatConst:
		return fmt.Sprintf("float(%g)", o.Float)
	case NullConst:
		return "null"
	case TrueConst:
		return "true"
	case FalseConst:
		return "false"
	case Label:
		return fmt.Sprintf("L%d", o.Index)
	case Stack:
		if o.FromEnd {
			return fmt.Sprintf("stk[-%d]", o.Index)
		}
		return fmt.Sprintf("stk[%d]", o.Index)
	case FuncRef:
		return fmt.Sprintf("fn#%d", o.Index)
	case UImm:
		return fmt.Sprintf("#%d", o.Index)
	case WithSink:
		return "with-sink"
	case AttrSlot:
		return "<attr-slot>"
	case IndexSlot:
		return "<index-slot>"
	case CallResult:
		return "<call-result>"
	case Bindable:
		return fmt.Sprintf("<bindable#%d@%d>", o.Index, o.Depth)
	default:
		return "<invalid operand>"
	}
}
