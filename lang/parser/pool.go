package parser

import (
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/token"
	"github.com/rill-lang/rillc/lang/vlq"
)

// finalizePools implements the string-pool half of §3 "Identifier and
// string pools": every StrConst operand reachable from code is marked used
// (UsedInMain for function 0, UsedInNested otherwise), the pool is
// compacted, and every StrConst operand is rewritten to its post-compaction
// offset before the pool's bytes are serialized into code.StringPoolBytes.
//
// The identifier pool (identPool) is left untouched at this stage: Public,
// Identifier and StrIdent operands keep referencing their original
// identifier-pool ordinals, since the identifier and string pools are only
// merged into one shared pool at P-code lowering time (§4.7 "Pool
// emission"), grounded on original_source's single-pass-then-lower pool
// design.
func finalizePools(code *qcode.Code, identPool, strPool *token.Pool) {
	for i, fn := range code.Functions {
		bits := token.UsedInMain
		if i != 0 {
			bits = token.UsedInNested
		}
		markPoolUsage(fn, strPool, bits)
	}

	kept, remap := strPool.Compact()
	for _, fn := range code.Functions {
		remapStrOperands(fn, remap)
	}
	code.StringPoolBytes = encodeStringPool(kept)
}

func markPoolUsage(fn *qcode.Func, strPool *token.Pool, bits token.PoolStatus) {
	mark := func(op qcode.Operand) {
		if op.Kind == qcode.StrConst {
			strPool.MarkUsed(op.Index, bits)
		}
	}
	for _, in := range fn.Instructions {
		mark(in.Dst)
		mark(in.Src1)
		mark(in.Src2)
	}
}

func remapStrOperands(fn *qcode.Func, remap []uint32) {
	fix := func(op *qcode.Operand) {
		if op.Kind == qcode.StrConst {
			op.Index = remap[op.Index]
		}
	}
	for i := range fn.Instructions {
		in := &fn.Instructions[i]
		fix(&in.Dst)
		fix(&in.Src1)
		fix(&in.Src2)
	}
}

// encodeStringPool serializes entries as a sequence of VLQ-size-prefixed
// UTF-8 byte strings, one per kept entry in order, matching the pool layout
// the P-code lowerer expects to re-merge at §4.7 "Pool emission".
func encodeStringPool(entries []string) []byte {
	var out []byte
	for _, s := range entries {
		out = vlq.EncodeSize(out, uint64(len(s)))
		out = append(out, s...)
	}
	return out
}
