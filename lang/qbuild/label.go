package qbuild

import "github.com/rill-lang/rillc/lang/qcode"

// NewLabel allocates a fresh, unbound label in the current function.
func (b *Builder) NewLabel() uint32 {
	return b.top().fn.Labels.New()
}

// SetLabel binds label to the instruction about to be emitted next. Per
// §4.3 "Jumps and labels", this flushes the pending instruction first so the
// label always targets a real instruction boundary.
func (b *Builder) SetLabel(label uint32) {
	b.Flush()
	f := b.top()
	f.fn.Labels.Bind(label, uint32(len(f.fn.Instructions)))
	f.fence = true
}

// Jump emits an unconditional jump to label.
func (b *Builder) Jump(label uint32, line int32) {
	b.Emit(qcode.Instr{Op: qcode.JMP, Dst: qcode.LabelOperand(label), Line: line})
	b.Fence()
}

// JumpIfFalse emits a conditional jump to label when cond is falsey.
func (b *Builder) JumpIfFalse(cond qcode.Operand, label uint32, line int32) {
	b.Emit(qcode.Instr{Op: qcode.JMPIFFALSE, Dst: qcode.LabelOperand(label), Src1: cond, Line: line})
	b.Fence()
}

// JumpIfTrue emits a conditional jump to label when cond is truthy.
func (b *Builder) JumpIfTrue(cond qcode.Operand, label uint32, line int32) {
	b.Emit(qcode.Instr{Op: qcode.JMPIFTRUE, Dst: qcode.LabelOperand(label), Src1: cond, Line: line})
	b.Fence()
}

// PushLoop records the break/continue targets of a newly entered loop.
func (b *Builder) PushLoop(breakLabel, continueLabel uint32) {
	f := b.top()
	f.loops = append(f.loops, loopTarget{breakLabel: breakLabel, continueLabel: continueLabel, withDepth: f.withDepth})
}

// PopLoop discards the innermost loop's break/continue targets.
func (b *Builder) PopLoop() {
	f := b.top()
	f.loops = f.loops[:len(f.loops)-1]
}

// Break emits the with-pops and jump needed to break out of the innermost
// loop. ok is false (and nothing is emitted) if there is no enclosing loop.
func (b *Builder) Break(line int32) (ok bool) {
	f := b.top()
	if len(f.loops) == 0 {
		return false
	}
	lt := f.loops[len(f.loops)-1]
	b.emitLoopExitWPops(lt.withDepth, line)
	b.Jump(lt.breakLabel, line)
	return true
}

// Continue emits the with-pops and jump needed to continue the innermost
// loop. ok is false (and nothing is emitted) if there is no enclosing loop.
func (b *Builder) Continue(line int32) (ok bool) {
	f := b.top()
	if len(f.loops) == 0 {
		return false
	}
	lt := f.loops[len(f.loops)-1]
	b.emitLoopExitWPops(lt.withDepth, line)
	b.Jump(lt.continueLabel, line)
	return true
}

func (b *Builder) emitLoopExitWPops(targetDepth int, line int32) {
	f := b.top()
	for d := f.withDepth; d > targetDepth; d-- {
		b.Emit(qcode.Instr{Op: qcode.WPOP, Line: line})
	}
}

// EnterWith records that a with-scope was entered (for break/continue WPOP
// bookkeeping) and emits its WPUSH.
func (b *Builder) EnterWith(line int32) {
	f := b.top()
	b.Emit(qcode.Instr{Op: qcode.WPUSH, Line: line})
	f.withDepth++
}

// ExitWith emits the WPOP that closes the innermost with-scope.
func (b *Builder) ExitWith(line int32) {
	f := b.top()
	b.Emit(qcode.Instr{Op: qcode.WPOP, Line: line})
	f.withDepth--
}
