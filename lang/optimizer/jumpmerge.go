package optimizer

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/rill-lang/rillc/lang/qcode"
)

// mergeJumpChains ports original_source/src/uoptim.c's mergejmps: a jump
// whose target is itself an unconditional jump is retargeted straight to
// the chain's end, so the lowerer and the VM never have to hop through an
// intermediate `jmp` just to reach the real destination. Recursion is
// bounded (256) to terminate on a pathological cycle of jumps.
//
// Because every jump operand here is a label-table indirection rather than
// a raw instruction index, the rewrite is done once per distinct label (via
// LabelTable.Retarget) instead of once per instruction; labels are visited
// in sorted order purely for determinism.
func mergeJumpChains(fn *qcode.Func) {
	labels := make(map[uint32]struct{})
	for _, instr := range fn.Instructions {
		if instr.Op.IsJump() {
			labels[instr.Dst.Index] = struct{}{}
		}
	}
	ordered := maps.Keys(labels)
	slices.Sort(ordered)
	for _, label := range ordered {
		resolveJumpChain(fn, label, 0)
	}
}

// resolveJumpChain follows label to the instruction it targets; if that
// instruction is itself an unconditional jump, it recurses into that
// jump's own label first (so the deepest link in the chain is resolved,
// and hence Retargeted, before its predecessors), then repoints label at
// whatever the next link currently resolves to.
func resolveJumpChain(fn *qcode.Func, label uint32, depth int) {
	if depth >= 256 {
		return
	}
	idx, ok := fn.Labels.Target(label)
	if !ok {
		return
	}
	instr := fn.Instructions[idx]
	if instr.Op != qcode.JMP {
		return
	}
	next := instr.Dst.Index
	resolveJumpChain(fn, next, depth+1)
	fn.Labels.Retarget(label, next)
}
