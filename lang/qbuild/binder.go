package qbuild

import (
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/scope"
)

// Binder implements the binding resolver (§4.4): when a reference reaches a
// Bindable book entry, it walks outward from the owning frame to the
// referencing frame, promoting the owner's Local to an Exhale, threading an
// Inhale through every intermediate frame, and returning the Inhale operand
// the referencing frame should compile the access as.
//
// It is a thin helper over Builder rather than a separate package: every
// step needs direct access to the frame stack (to rewrite already-emitted
// instructions in an outer, still-open frame) and to each frame's book, both
// of which only Builder exposes.
type Binder struct {
	b *Builder
}

// Resolve is called from Builder.Resolve when the innermost book holds a
// Bindable entry for ordinal at hop count depth. refDepth is the index (in
// b.frames) of the frame doing the referencing. It returns the operand the
// reference should compile to: an Inhale in the referencing frame.
func (bd *Binder) Resolve(refDepth int, ordinal uint32, depth uint32) qcode.Operand {
	ownerDepth := refDepth - int(depth)
	owner := bd.b.frameAt(ownerDepth)

	// Step 1/2: ensure the owning frame holds this name as an Exhale,
	// promoting a Local in place if this is the first capture of it.
	ownerEntry, ok := owner.book.Lookup(ordinal)
	if !ok {
		panic("qbuild: binder: owning frame lost its book entry")
	}
	var exhaleIdx uint32
	switch ownerEntry.Kind {
	case scope.Exhale:
		exhaleIdx = ownerEntry.Index
	case scope.Local:
		exhaleIdx = bd.promoteLocalToExhale(owner, ordinal, ownerEntry.Index)
	default:
		panic("qbuild: binder: owning frame entry is neither local nor exhale")
	}

	// Step 3: thread an inhale through every intermediate frame, outermost
	// (closest to owner) first, so each frame's inhale source points at the
	// correct immediately-enclosing slot.
	srcKind := scope.Exhale
	srcIdx := exhaleIdx
	for d := ownerDepth + 1; d <= refDepth; d++ {
		fr := bd.b.frameAt(d)
		entry, ok := fr.book.Lookup(ordinal)
		if !ok {
			panic("qbuild: binder: intermediate frame lost its bindable entry")
		}
		if entry.Kind == scope.Inhale {
			// Already threaded through this frame by an earlier reference;
			// keep following its source for the next hop.
			srcKind = scope.Inhale
			srcIdx = entry.Index
			continue
		}
		var srcOperand qcode.Operand
		if srcKind == scope.Exhale {
			srcOperand = qcode.ExhaleOperand(srcIdx)
		} else {
			srcOperand = qcode.InhaleOperand(srcIdx)
		}
		newIdx := fr.fn.AllocInhale(srcOperand)
		fr.book.Promote(ordinal, scope.Inhale, newIdx)
		srcKind = scope.Inhale
		srcIdx = newIdx
	}

	// Step 4: the referencing frame now owns a concrete Inhale entry.
	return qcode.InhaleOperand(srcIdx)
}

// promoteLocalToExhale reallocates local localIdx in owner as a fresh
// exhale slot, rewriting every instruction in the owner's body so far that
// reads or writes that local into a bind-get/bind-set pair around the
// original instruction, per §4.4 step 2.
//
// If the local being promoted is one of the function's arguments, its index
// is recorded in arg_exh so CloseFunction can prepend the SBIND prologue
// that copies the argument's incoming value into the new exhale cell
// (§4.4 "Argument promotion").
func (bd *Binder) promoteLocalToExhale(owner *frame, ordinal uint32, localIdx uint32) uint32 {
	exhaleIdx := owner.fn.AllocExhale()
	owner.book.Promote(ordinal, scope.Exhale, exhaleIdx)

	rewriteLocalToBind(owner.fn, localIdx, exhaleIdx)
	if owner.pending != nil {
		rewriteLocalToBindInstr(owner.fn, owner.pending, localIdx, exhaleIdx)
	}

	if localIdx < owner.fn.ArgCount {
		owner.argExh = append(owner.argExh, argExhale{local: localIdx, exhale: exhaleIdx})
	} else {
		shiftLocalsDown(owner, localIdx)
	}
	return exhaleIdx
}

// rewriteLocalToBind rewrites every already-emitted instruction in fn that
// reads or writes Local(localIdx) into a GETBIND/SETBIND pair around the
// original instruction, now referencing Exhale(exhaleIdx) instead.
//
// This walks the function body once: since the promotion happens the
// instant the binder discovers the capture, only instructions already
// emitted for this local need rewriting; every instruction emitted from
// this point forward is compiled directly against the book's new Exhale
// entry by Builder.Resolve/DeclareLocal call sites.
func rewriteLocalToBind(fn *qcode.Func, localIdx, exhaleIdx uint32) {
	local := qcode.LocalOperand(localIdx)
	out := make([]qcode.Instr, 0, len(fn.Instructions))
	for _, in := range fn.Instructions {
		out = append(out, rewriteOneInstr(fn, in, local, exhaleIdx)...)
	}
	fn.Instructions = out
}

// rewriteLocalToBindInstr rewrites the builder's still-pending (not yet
// flushed) instruction in place. Because a GETBIND/SETBIND pair requires two
// instructions, a rewrite that needs splitting first demotes the pending
// slot into the function body (as the builder's Flush would do) and leaves
// the follow-up bind-set instruction pending in its place.
func rewriteLocalToBindInstr(fn *qcode.Func, pending *qcode.Instr, localIdx, exhaleIdx uint32) {
	local := qcode.LocalOperand(localIdx)
	rewritten := rewriteOneInstr(fn, *pending, local, exhaleIdx)
	switch len(rewritten) {
	case 1:
		*pending = rewritten[0]
	default:
		for _, in := range rewritten[:len(rewritten)-1] {
			fn.AddInstr(in)
		}
		*pending = rewritten[len(rewritten)-1]
	}
}

// rewriteOneInstr expands a single instruction that reads and/or writes
// `local` into the 1-3 instruction sequence described by §4.4 step 2: a
// read becomes `GBIND tmp, exhale` followed by the original instruction with
// `local` replaced by `tmp`; a write becomes the original instruction
// (writing `tmp` instead of `local`) followed by `SBIND tmp, exhale`.
func rewriteOneInstr(fn *qcode.Func, in qcode.Instr, local qcode.Operand, exhaleIdx uint32) []qcode.Instr {
	readsLocal := in.Src1 == local || in.Src2 == local || (!in.Op.WritesDst() && in.Dst == local)
	writesLocal := in.Op.WritesDst() && in.Dst == local

	if !readsLocal && !writesLocal {
		return []qcode.Instr{in}
	}

	tmp := qcode.TempOperand(fn.AllocTemp())
	out := make([]qcode.Instr, 0, 3)

	if readsLocal {
		out = append(out, qcode.Instr{Op: qcode.GETBIND, Dst: tmp, Src1: qcode.ExhaleOperand(exhaleIdx), Line: in.Line})
		if in.Src1 == local {
			in.Src1 = tmp
		}
		if in.Src2 == local {
			in.Src2 = tmp
		}
		if !in.Op.WritesDst() && in.Dst == local {
			in.Dst = tmp
		}
	}
	if writesLocal {
		in.Dst = tmp
	}
	out = append(out, in)
	if writesLocal {
		out = append(out, qcode.Instr{Op: qcode.SETBIND, Dst: tmp, Src1: qcode.ExhaleOperand(exhaleIdx), Line: in.Line})
	}
	return out
}

// shiftLocalsDown decrements the index of every local whose index is greater
// than removedIdx, both in owner's book and in the (already-rewritten)
// instruction stream, since promoting a non-argument local to an exhale
// frees up its local slot per §4.4 step 2 ("shift down subsequent local
// indices").
func shiftLocalsDown(owner *frame, removedIdx uint32) {
	owner.fn.LocalCount--
	shiftInstrLocals(owner.fn.Instructions, removedIdx)
	if owner.pending != nil {
		shiftedPending := shiftOneInstrLocals(*owner.pending, removedIdx)
		owner.pending = &shiftedPending
	}
	owner.book.ShiftLocalsAbove(removedIdx)
}

func shiftInstrLocals(instrs []qcode.Instr, removedIdx uint32) {
	for i, in := range instrs {
		instrs[i] = shiftOneInstrLocals(in, removedIdx)
	}
}

func shiftOneInstrLocals(in qcode.Instr, removedIdx uint32) qcode.Instr {
	in.Dst = shiftOperandLocal(in.Dst, removedIdx)
	in.Src1 = shiftOperandLocal(in.Src1, removedIdx)
	in.Src2 = shiftOperandLocal(in.Src2, removedIdx)
	return in
}

func shiftOperandLocal(op qcode.Operand, removedIdx uint32) qcode.Operand {
	if op.Kind == qcode.Local && op.Index > removedIdx {
		op.Index--
	}
	return op
}
