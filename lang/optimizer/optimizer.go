// Package optimizer runs the post-parse, pre-lowering passes over Q-code
// (§4.6): temp-register coalescing, tail-call rewriting, jump-chain
// merging, and dead-code elimination. Each pass is ported from
// original_source/src/uoptim.c (reducetmp, tailcalls, mergejmps,
// nodeadcode), adapted where the Go builder's instruction shapes differ
// from the C compiler's (notably: jump targets are label-table indirections
// here rather than raw instruction indices baked into the operand, and the
// calling convention threads return values through the frame stack
// explicitly rather than through a destination-typed call operand).
package optimizer

import "github.com/rill-lang/rillc/lang/qcode"

// Optimize runs all four passes, in order, over every function in code.
func Optimize(code *qcode.Code) {
	for _, fn := range code.Functions {
		coalesceTemps(fn)
		rewriteTailCalls(fn)
		mergeJumpChains(fn)
		eliminateDeadCode(fn)
	}
}
