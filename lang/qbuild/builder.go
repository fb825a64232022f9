// Package qbuild implements the Q-code builder (§4.3): the component that
// turns a stream of parse-time "emit this operation" calls into a finished
// qcode.Func, allocating registers, tracking where the value of the
// expression just parsed currently lives, and performing the peephole
// fusions described in the emission contract. The parser (lang/parser)
// drives this package directly; there is no separate AST stage.
package qbuild

import (
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/scope"
)

// State is the expression value-state machine (§4.3): where the value of
// the expression most recently parsed currently resides.
type State uint8

//nolint:revive
const (
	StateNone State = iota
	StateHold
	StateStack
	StateFuncStack
)

// loopTarget records the break/continue labels of one enclosing loop.
type loopTarget struct {
	breakLabel    uint32
	continueLabel uint32
	withDepth     int // with-stack depth at loop entry, for WPOP emission on break/continue
}

// argExhale records that argument local argExh.local was promoted to
// exhale argExh.exhale by the binder, and so needs a prologue SBIND copying
// the incoming argument value into the exhale cell (§4.4 "Argument
// promotion").
type argExhale struct {
	local  uint32
	exhale uint32
}

// frame is the builder's state for one function body under construction.
type frame struct {
	fn   *qcode.Func
	book *scope.Book

	pending     *qcode.Instr
	pendingLine int32

	state State

	pushfDepth int
	withDepth  int

	loops []loopTarget

	// argExh accumulates, in promotion order, every argument local that the
	// binder promoted to an exhale slot while this function was open. Read
	// by CloseFunction to synthesize the SBIND prologue.
	argExh []argExhale

	// fence inhibits peephole fusion across a statement boundary: set after
	// every statement is fully emitted, cleared the moment a new pending
	// instruction is buffered.
	fence bool
}

// Builder drives construction of a whole qcode.Code: one frame per function,
// nested as the parser descends into function literals.
type Builder struct {
	Code *qcode.Code

	chain  scope.Chain
	frames []*frame

	binder *Binder
}

// New returns a Builder that will accumulate functions into a fresh Code
// whose first source line is firstLine.
func New(firstLine int32) *Builder {
	b := &Builder{Code: qcode.NewCode(firstLine)}
	b.binder = &Binder{b: b}
	return b
}

func (b *Builder) top() *frame { return b.frames[len(b.frames)-1] }

// Fn returns the qcode.Func currently under construction.
func (b *Builder) Fn() *qcode.Func { return b.top().fn }

// Book returns the scope book of the function currently under construction.
func (b *Builder) Book() *scope.Book { return b.top().book }

// State returns the current value-state.
func (b *Builder) State() State { return b.top().state }

// OpenFunction starts a new function nested in the current one (or as the
// top-level function if none is open yet) and returns its index in Code.
func (b *Builder) OpenFunction(line int32) uint32 {
	parent := qcode.NoParent
	if len(b.frames) > 0 {
		b.Flush()
		parent = uint32(len(b.Code.Functions) - 1)
	}
	fn := qcode.NewFunc(line, parent)
	idx := b.Code.AddFunc(fn)
	book := b.chain.Push()
	b.frames = append(b.frames, &frame{fn: fn, book: book})
	return idx
}

// CloseFunction finalizes the function currently under construction: it
// flushes any pending instruction, guarantees a trailing exit opcode,
// prepends the SBIND prologue for any promoted arguments (§4.4 "Argument
// promotion"), and pops the builder back to the enclosing function.
func (b *Builder) CloseFunction() *qcode.Func {
	f := b.top()
	b.Flush()
	n := len(f.fn.Instructions)
	if n == 0 || !f.fn.Instructions[n-1].Op.IsExit() || f.fn.Labels.BoundAtOrBeyond(uint32(n)) {
		f.fn.AddInstr(qcode.Instr{Op: qcode.RETNONE})
	}
	if len(f.argExh) > 0 {
		prologue := make([]qcode.Instr, len(f.argExh))
		for i, ax := range f.argExh {
			prologue[i] = qcode.Instr{
				Op:   qcode.SETBIND,
				Dst:  qcode.LocalOperand(ax.local),
				Src1: qcode.ExhaleOperand(ax.exhale),
				Line: f.fn.Line,
			}
		}
		f.fn.Instructions = append(prologue, f.fn.Instructions...)
		f.fn.Labels.ShiftAll(int32(len(prologue)))
	}
	b.chain.Pop()
	b.frames = b.frames[:len(b.frames)-1]
	return f.fn
}

// DeclareArg declares ordinal as the next positional argument: it is both a
// Local slot and counted in ArgCount, per §3's invariant that "the first
// arg_count locals are the arguments in declaration order".
func (b *Builder) DeclareArg(ordinal uint32) qcode.Operand {
	op := b.DeclareLocal(ordinal)
	b.top().fn.ArgCount++
	return op
}

// DeclareOptionalArg declares ordinal as the next positional argument and
// marks the function as having at least one optional parameter.
func (b *Builder) DeclareOptionalArg(ordinal uint32) qcode.Operand {
	op := b.DeclareArg(ordinal)
	f := b.top().fn
	f.OptionalArgCount++
	f.Flags |= qcode.FlagHasOptional
	return op
}

// DeclareVararg declares ordinal as the trailing catch-all parameter and
// marks the function as variadic.
func (b *Builder) DeclareVararg(ordinal uint32) qcode.Operand {
	op := b.DeclareArg(ordinal)
	b.top().fn.Flags |= qcode.FlagVararg
	return op
}

// AllocTemp allocates a fresh temporary register in the current function.
func (b *Builder) AllocTemp() qcode.Operand {
	return qcode.TempOperand(b.top().fn.AllocTemp())
}

// DeclareLocal allocates a local slot for ordinal and records it as Local in
// the current book.
func (b *Builder) DeclareLocal(ordinal uint32) qcode.Operand {
	f := b.top()
	idx := f.fn.AllocLocal()
	f.book.Declare(ordinal, scope.Local, idx)
	return qcode.LocalOperand(idx)
}

// DeclarePublic records ordinal as a module-public name, returning its
// operand. Public names share the identifier pool ordinal as their index:
// there is exactly one public slot per distinct public name in a program.
func (b *Builder) DeclarePublic(ordinal uint32) qcode.Operand {
	b.top().book.Declare(ordinal, scope.Public, ordinal)
	return qcode.PublicOperand(ordinal)
}

// Resolve looks up ordinal in the current book and returns the operand that
// reads it, promoting a Bindable entry to a concrete Inhale via the binding
// resolver (§4.4) on first reference. A name with no declaration anywhere
// resolves to a public access without entering the book: reading an unknown
// name is a runtime public lookup, but it must not commit the name to a
// kind, since a later plain assignment in the same function still makes it
// a local (see ResolveStore).
func (b *Builder) Resolve(ordinal uint32) qcode.Operand {
	f := b.top()
	e, ok := f.book.Lookup(ordinal)
	if !ok {
		return qcode.PublicOperand(ordinal)
	}
	switch e.Kind {
	case scope.Local:
		return qcode.LocalOperand(e.Index)
	case scope.Exhale:
		return qcode.ExhaleOperand(e.Index)
	case scope.Inhale:
		return qcode.InhaleOperand(e.Index)
	case scope.Public:
		return qcode.PublicOperand(e.Index)
	case scope.Bindable:
		return b.binder.Resolve(len(b.frames)-1, ordinal, e.Depth)
	}
	return qcode.NoOperand()
}

// ResolveStore resolves ordinal as an assignment target. Unlike Resolve, a
// name with no prior declaration is declared as a fresh local of the current
// function: plain assignment introduces locals, only the `public` statement
// introduces publics.
func (b *Builder) ResolveStore(ordinal uint32) qcode.Operand {
	if _, ok := b.top().book.Lookup(ordinal); !ok {
		return b.DeclareLocal(ordinal)
	}
	return b.Resolve(ordinal)
}

// FuncDepth reports how many functions are currently open (1 for top-level).
func (b *Builder) FuncDepth() int { return len(b.frames) }

// frameAt returns the frame opened at the given depth index (0-based from
// outermost), for use by the binder when walking outward.
func (b *Builder) frameAt(depth int) *frame { return b.frames[depth] }
