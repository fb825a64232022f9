package qcode

// FuncFlag holds the per-function bit flags referenced by §3 "Q-function"
// (the `flags` field), mirroring the UNC_FUNCTION_FLAG_* bits in
// original_source/src/udef.h.
type FuncFlag uint8

//nolint:revive
const (
	FlagVararg    FuncFlag = 1 << iota // last parameter collects extra positional args
	FlagHasOptional                    // at least one parameter has a default value
	FlagClosure                        // has at least one exhale or inhale slot
)

// Has reports whether all bits of want are set in f.
func (f FuncFlag) Has(want FuncFlag) bool { return f&want == want }

// NoParent marks a Func with no enclosing function (top-level script body).
const NoParent = ^uint32(0)

// NoName marks a Func with no identifier-pool entry for its name (anonymous
// function literal).
const NoName = ^uint32(0)

// Func is a Q-function: one compiled function body, keyed by its index into
// Code.Functions (§3 "Q-function").
type Func struct {
	Line int32

	TempCount   uint32
	LocalCount  uint32
	ExhaleCount uint32
	InhaleCount uint32

	ArgCount         uint32
	OptionalArgCount uint32

	Flags FuncFlag

	Name uint32 // identifier-pool ordinal, or NoName

	ParentIndex uint32 // index into Code.Functions, or NoParent

	Instructions []Instr

	// InhaleSources has one entry per inhale slot: the operand in the
	// *parent* function supplying the captured value at FMAKE time — either
	// an Exhale operand (parent owns the cell) or an Inhale operand (parent
	// is itself only passing through a grandparent's cell), per the
	// exhale/inhale model in §2/§4.4.
	InhaleSources []Operand

	Labels LabelTable
}

// NewFunc returns an empty Func ready for a builder to populate, parented to
// parent (use NoParent for the top-level function).
func NewFunc(line int32, parent uint32) *Func {
	return &Func{Line: line, ParentIndex: parent, Name: NoName}
}

// AddInstr appends in to the function body and returns its index.
func (f *Func) AddInstr(in Instr) uint32 {
	idx := uint32(len(f.Instructions))
	f.Instructions = append(f.Instructions, in)
	return idx
}

// AllocTemp returns the next free temporary register index.
func (f *Func) AllocTemp() uint32 {
	i := f.TempCount
	f.TempCount++
	return i
}

// AllocLocal returns the next free local slot index.
func (f *Func) AllocLocal() uint32 {
	i := f.LocalCount
	f.LocalCount++
	return i
}

// AllocExhale returns the next free exhale slot index and sets FlagClosure.
func (f *Func) AllocExhale() uint32 {
	i := f.ExhaleCount
	f.ExhaleCount++
	f.Flags |= FlagClosure
	return i
}

// AllocInhale records src (the parent-side operand backing the capture) as
// the next inhale slot and sets FlagClosure, returning the new slot's index.
func (f *Func) AllocInhale(src Operand) uint32 {
	i := f.InhaleCount
	f.InhaleCount++
	f.InhaleSources = append(f.InhaleSources, src)
	f.Flags |= FlagClosure
	return i
}
