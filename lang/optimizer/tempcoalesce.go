package optimizer

import "github.com/rill-lang/rillc/lang/qcode"

// coalesceTemps ports original_source/src/uoptim.c's reducetmp: temps whose
// live ranges never overlap are assigned the same physical register, so the
// function's temp count shrinks to the peak number simultaneously live.
// Temp 0 is never remapped (§4.6).
func coalesceTemps(fn *qcode.Func) {
	if fn.TempCount < 2 {
		return
	}
	in := fn.Instructions
	n := len(in)

	// assigned[origIdx-1] is the physical register currently backing
	// original temp origIdx (1-based; temp 0 is excluded and untouched).
	// Physical register r is written back as temp r+1, so no coalesced temp
	// lands on temp 0.
	assigned := make([]uint32, fn.TempCount-1)
	// lastRead[reg] is the instruction index the physical register at reg
	// (0-based) stays live until.
	lastRead := make([]uint32, fn.TempCount-1)
	var nextReg uint32

	for i := 0; i < n; i++ {
		instr := &in[i]
		fields := qcode.OperandFields(instr.Op)

		if !instr.Op.WritesDst() {
			// store-like: Dst is itself read, not written.
			if instr.Dst.Kind == qcode.Temp && instr.Dst.Index > 0 {
				instr.Dst.Index = assigned[instr.Dst.Index-1] + 1
			}
		} else if instr.Dst.Kind == qcode.Temp && instr.Dst.Index > 0 {
			origIdx := instr.Dst.Index
			remap := true
			if fields > 1 && instr.Src1.Kind == qcode.Temp && instr.Src1.Index == origIdx {
				remap = false
			}
			if fields > 2 && instr.Src2.Kind == qcode.Temp && instr.Src2.Index == origIdx {
				remap = false
			}
			reg := assignRegister(fn, in, n, i, lastRead, &nextReg, remap, assigned[origIdx-1])
			assigned[origIdx-1] = reg
			instr.Dst.Index = reg + 1
		}

		if fields > 1 && instr.Src1.Kind == qcode.Temp && instr.Src1.Index > 0 {
			instr.Src1.Index = assigned[instr.Src1.Index-1] + 1
		}
		if fields > 2 && instr.Src2.Kind == qcode.Temp && instr.Src2.Index > 0 {
			instr.Src2.Index = assigned[instr.Src2.Index-1] + 1
		}
	}

	fn.TempCount = nextReg + 1
}

// assignRegister finds (or reuses) a physical register for a write at
// instruction index writeAt, scanning forward to compute how long the write
// stays live, and records that extent in lastRead. remap=false keeps the
// register already backing this original temp (a self-referential update
// like `add t3, t3, 1` never needs a fresh slot).
func assignRegister(fn *qcode.Func, in []qcode.Instr, n, writeAt int, lastRead []uint32, nextReg *uint32, remap bool, prev uint32) uint32 {
	var reg uint32
	if remap {
		reg = *nextReg
		for r := uint32(0); r < *nextReg; r++ {
			if uint32(writeAt) > lastRead[r] {
				reg = r
				break
			}
		}
		if reg == *nextReg {
			*nextReg++
		}
	} else {
		reg = prev
	}

	// Later instructions still carry original temp indices, so the scan
	// looks for the original temp this write defines.
	orig := in[writeAt].Dst.Index
	live := uint32(writeAt)
	fence := uint32(writeAt)
	for i := writeAt + 1; i < n; i++ {
		instr := in[i]
		fields := qcode.OperandFields(instr.Op)
		writes := instr.Op.WritesDst()
		if !writes {
			if instr.Dst.Kind == qcode.Temp && instr.Dst.Index == orig {
				live = uint32(i)
			}
		}
		if fields > 1 && instr.Src1.Kind == qcode.Temp && instr.Src1.Index == orig {
			live = uint32(i)
		}
		if fields > 2 && instr.Src2.Kind == qcode.Temp && instr.Src2.Index == orig {
			live = uint32(i)
		}
		// A backward jump landing inside the already-scanned range means
		// execution may loop back and read reg again, so the live range
		// must extend at least to this jump.
		if instr.Op.IsJump() {
			if target, ok := fn.Labels.Target(instr.Dst.Index); ok && target < uint32(i) && target >= fence {
				live = uint32(i)
			}
		}
		if writes && instr.Dst.Kind == qcode.Temp && instr.Dst.Index == orig {
			break
		}
	}
	lastRead[reg] = live
	return reg
}
