package qbuild

import "github.com/rill-lang/rillc/lang/qcode"

// Flush appends the pending instruction (if any) to the current function's
// instruction list.
func (b *Builder) Flush() {
	f := b.top()
	if f.pending == nil {
		return
	}
	f.fn.AddInstr(*f.pending)
	f.pending = nil
}

// emit buffers in as the new pending instruction, first flushing whatever
// was pending before it (the single-instruction lookahead buffer described
// in §4.3). Callers needing fusion call tryFuse before emit.
func (b *Builder) emit(in qcode.Instr) {
	f := b.top()
	b.Flush()
	cp := in
	f.pending = &cp
	f.fence = false
}

// Emit is the general entry point used by expression/statement emission: it
// attempts to fuse in with the pending instruction, falling back to a plain
// buffered emit.
func (b *Builder) Emit(in qcode.Instr) {
	if b.tryFuse(in) {
		return
	}
	b.emit(in)
}

// tryFuse implements the narrow but high-value fusion described in §4.3:
// a pending `move dst, src` immediately followed by a request to produce
// the same value directly into a different destination collapses into one
// instruction by retargeting the pending move's destination, instead of
// emitting a second move. It declines across a statement fence.
func (b *Builder) tryFuse(in qcode.Instr) bool {
	f := b.top()
	if f.fence || f.pending == nil {
		return false
	}
	pending := f.pending
	if pending.Op == qcode.MOVE && in.Op == qcode.MOVE && in.Src1 == pending.Dst {
		pending.Dst = in.Dst
		return true
	}
	return false
}

// Fence marks a statement boundary: the pending instruction, if any, is
// flushed, the value-state machine is reset (a new statement has no "last
// expression value" to capture), and no further fusion may reach across it.
func (b *Builder) Fence() {
	b.Flush()
	b.top().fence = true
	b.SetState(StateNone)
}

// SetState sets the value-state machine to st.
func (b *Builder) SetState(st State) { b.top().state = st }

// KillValue discards whatever the current value-state was tracking, used
// when an expression's value is never consumed (bare expression statement).
func (b *Builder) KillValue() {
	b.Flush()
	b.SetState(StateNone)
}

// CaptureInto retargets the pending instruction's destination to dst when
// that pending instruction is the one that produced value (§4.3
// "Retarget"), eliding the move through a temp. It reports whether the
// retarget happened; when it did not — the value is a literal, or the
// producing instruction was already flushed past (e.g. a call's trailing
// POPF is pending instead) — the caller still owns moving value into dst.
func (b *Builder) CaptureInto(dst, value qcode.Operand) bool {
	f := b.top()
	if f.state != StateHold || f.pending == nil {
		return false
	}
	if !f.pending.Op.WritesDst() || !f.pending.Dst.IsRegisterLike() || f.pending.Dst != value {
		return false
	}
	f.pending.Dst = dst
	b.Flush()
	b.SetState(StateNone)
	return true
}

// HoldValue finalizes the pending value into its register (so the builder
// may freely emit other instructions in between) and reports whether value
// was that pending register; a false return means value was a literal or
// the hold-state was not about value at all, and the caller must
// materialize it itself.
func (b *Builder) HoldValue(value qcode.Operand) (qcode.Operand, bool) {
	f := b.top()
	if f.state != StateHold || f.pending == nil {
		return qcode.NoOperand(), false
	}
	if !f.pending.Op.WritesDst() || !f.pending.Dst.IsRegisterLike() || f.pending.Dst != value {
		return qcode.NoOperand(), false
	}
	b.Flush()
	b.SetState(StateNone)
	return value, true
}

// EmitToValue emits an operation with the given opcode/sources, targeting a
// fresh temp, and sets the value-state to hold.
func (b *Builder) EmitToValue(op qcode.Opcode, src1, src2 qcode.Operand, line int32) qcode.Operand {
	tmp := b.AllocTemp()
	b.Emit(qcode.Instr{Op: op, Dst: tmp, Src1: src1, Src2: src2, Line: line})
	b.SetState(StateHold)
	return tmp
}

// PushStack evaluates into the next frame-stack slot of the current
// (innermost) frame-stack and returns its Stack operand.
func (b *Builder) PushStack(op qcode.Opcode, src1, src2 qcode.Operand, line int32, slot uint32) qcode.Operand {
	dst := qcode.StackOperand(slot, false)
	b.Emit(qcode.Instr{Op: op, Dst: dst, Src1: src1, Src2: src2, Line: line})
	b.SetState(StateStack)
	return dst
}

// PushFrame opens a new frame-stack (§4.3 pushf) and returns its depth.
func (b *Builder) PushFrame(line int32) int {
	f := b.top()
	b.Emit(qcode.Instr{Op: qcode.PUSHF, Line: line})
	f.pushfDepth++
	return f.pushfDepth
}

// PopFrame closes the innermost frame-stack (§4.3 popf).
func (b *Builder) PopFrame(line int32) {
	f := b.top()
	b.Emit(qcode.Instr{Op: qcode.POPF, Line: line})
	f.pushfDepth--
}
