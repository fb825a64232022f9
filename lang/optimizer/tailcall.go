package optimizer

import "github.com/rill-lang/rillc/lang/qcode"

// rewriteTailCalls ports original_source/src/uoptim.c's tailcalls, adapted
// to this compiler's calling convention: `return f(...)` lowers to
// FCALL/DCALL, a MOVE pulling the sole result off the frame stack, a POPF,
// then RETONE — rather than the original's single call instruction whose
// destination operand is directly typed as the stack. Whenever that exact
// four-instruction tail is found, the call becomes FTAIL/DTAIL and the
// MOVE/POPF/RETONE instructions are deleted; the caller's own frame is
// reused for the callee instead of being torn down and rebuilt.
func rewriteTailCalls(fn *qcode.Func) {
	in := fn.Instructions
	for i := len(in) - 1; i >= 3; i-- {
		ret := in[i]
		if ret.Op != qcode.RETONE {
			continue
		}
		pop := in[i-1]
		mov := in[i-2]
		call := in[i-3]
		if pop.Op != qcode.POPF {
			continue
		}
		if mov.Op != qcode.MOVE || mov.Src1.Kind != qcode.Stack || mov.Src1.Index != 0 {
			continue
		}
		if mov.Dst != ret.Dst {
			continue
		}
		switch call.Op {
		case qcode.FCALL:
			in[i-3].Op = qcode.FTAIL
		case qcode.DCALL:
			in[i-3].Op = qcode.DTAIL
		default:
			continue
		}
		in[i-2].Op = qcode.DELETE
		in[i-1].Op = qcode.DELETE
		in[i].Op = qcode.DELETE
	}
}
