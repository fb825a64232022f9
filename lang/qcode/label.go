package qcode

// unresolved marks a label allocated but not yet bound to an instruction
// index.
const unresolved = ^uint32(0)

// LabelTable tracks jump-target labels within one function body, resolving
// each to an instruction index before the function is handed to the
// optimizer. The builder allocates labels ahead of knowing their final
// position (e.g. the top of a loop condition emitted after its exit jump),
// then Binds them once the target instruction is emitted.
type LabelTable struct {
	targets []uint32
}

// New allocates a fresh, unbound label and returns its index.
func (lt *LabelTable) New() uint32 {
	i := uint32(len(lt.targets))
	lt.targets = append(lt.targets, unresolved)
	return i
}

// Bind records that label now targets the instruction about to be emitted at
// instrIndex.
func (lt *LabelTable) Bind(label, instrIndex uint32) {
	lt.targets[label] = instrIndex
}

// Target returns the instruction index label resolves to, and whether it has
// been bound yet.
func (lt *LabelTable) Target(label uint32) (uint32, bool) {
	t := lt.targets[label]
	return t, t != unresolved
}

// Len returns the number of labels allocated so far.
func (lt *LabelTable) Len() int { return len(lt.targets) }

// BoundAtOrBeyond reports whether any label resolves to instruction index n
// or later. A label bound just past the last instruction (e.g. the join
// label of an if whose arms both return) needs a real trailing instruction
// to land on before lowering.
func (lt *LabelTable) BoundAtOrBeyond(n uint32) bool {
	for _, t := range lt.targets {
		if t != unresolved && t >= n {
			return true
		}
	}
	return false
}

// Retarget repoints every reference to `from` so it resolves to whatever
// `to` currently resolves to — used by the jump-chain-merging optimizer pass
// to collapse `jmp L1` where L1 itself immediately `jmp L2`s.
func (lt *LabelTable) Retarget(from, to uint32) {
	lt.targets[from] = lt.targets[to]
}

// ShiftAll adds delta to every already-bound label target, used when
// instructions are prepended to a function body after some labels were
// already bound (the argument-promotion SBIND prologue, §4.4).
func (lt *LabelTable) ShiftAll(delta int32) {
	for i, t := range lt.targets {
		if t != unresolved {
			lt.targets[i] = uint32(int32(t) + delta)
		}
	}
}

// All returns every bound label's instruction index, for callers (the
// optimizer, the lowerer) that need to walk every known jump target.
func (lt *LabelTable) All() []uint32 { return lt.targets }
