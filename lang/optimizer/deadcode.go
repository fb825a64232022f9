package optimizer

import "github.com/rill-lang/rillc/lang/qcode"

// maxDeadCodePasses bounds eliminateDeadCode's fixed-point loop (§4.6).
const maxDeadCodePasses = 8

// eliminateDeadCode ports original_source/src/uoptim.c's nodeadcode. Rather
// than the original's in-place two-pass mark/pending-restart scan, this
// computes reachability with a worklist over the function's instructions
// (fall-through plus both edges of a conditional jump, the single edge of
// an unconditional one) — a small, always-terminating rewrite of the same
// algorithm that fits a garbage-collected host better than hand-rolled
// bit flags. Instructions never reached are replaced with DELETE, which the
// lowerer skips entirely. A single reachability walk is already a complete
// fixed point, so the wrapper loop below only ever takes a second iteration
// to observe "nothing left to delete" and stop; it exists to match §4.6's
// stated fixed-point-up-to-8-iterations contract.
func eliminateDeadCode(fn *qcode.Func) {
	for pass := 0; pass < maxDeadCodePasses; pass++ {
		if !eliminateDeadCodeOnce(fn) {
			return
		}
	}
}

func eliminateDeadCodeOnce(fn *qcode.Func) (changed bool) {
	in := fn.Instructions
	n := len(in)
	if n == 0 {
		return false
	}

	reachable := make([]bool, n)
	queue := []int{0}
	reachable[0] = true
	visit := func(j int) {
		if j >= 0 && j < n && !reachable[j] {
			reachable[j] = true
			queue = append(queue, j)
		}
	}

	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		instr := in[i]

		if instr.Op.IsJump() {
			if target, ok := fn.Labels.Target(instr.Dst.Index); ok {
				visit(int(target))
			}
			if instr.Op != qcode.JMP {
				visit(i + 1) // conditional (or handler-push): fall-through survives too
			}
		} else if !instr.Op.IsExit() {
			visit(i + 1)
		}
	}

	for i := range in {
		if !reachable[i] && in[i].Op != qcode.DELETE {
			in[i].Op = qcode.DELETE
			changed = true
		}
	}
	return changed
}
