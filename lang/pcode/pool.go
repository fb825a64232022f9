package pcode

import (
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/vlq"
)

// mergedPool is the result of §4.7's "Pool emission"/"Deletion of unused
// literals": one flat list of strings backing both StrConst operands (the
// string pool, already compacted by the parser at finalizePools time) and
// Identifier/Public/StrIdent operands (the identifier pool, compacted here
// for the first time, since only after the optimizer's dead-code pass do we
// know which identifier references actually survived).
type mergedPool struct {
	entries []string

	// identRemap[oldOrdinal] is the merged-pool offset a surviving
	// identifier-pool entry was assigned, or identDropped if it was never
	// marked used by any surviving instruction or function name.
	identRemap []uint32
}

const identDropped = ^uint32(0)

func (m *mergedPool) remapIdent(oldOrdinal uint32) uint32 {
	if int(oldOrdinal) >= len(m.identRemap) {
		return identDropped
	}
	return m.identRemap[oldOrdinal]
}

// buildPool decodes code's already-compacted string pool, walks every
// surviving (non-DELETE) instruction plus every function's Name to mark
// identifier-pool usage, compacts the identifier pool, and appends it after
// the string pool entries so every merged-pool offset is stable once
// computed.
func buildPool(code *qcode.Code) *mergedPool {
	strEntries := decodeStringPool(code.StringPoolBytes)

	ip := code.IdentPool
	used := make([]bool, len(ip.Entries))
	markIdent := func(op qcode.Operand) {
		switch op.Kind {
		case qcode.Identifier, qcode.Public, qcode.StrIdent:
			if int(op.Index) < len(used) {
				used[op.Index] = true
			}
		}
	}
	for _, fn := range code.Functions {
		if fn.Name != qcode.NoName && int(fn.Name) < len(used) {
			used[fn.Name] = true
		}
		for _, in := range fn.Instructions {
			if in.Op == qcode.DELETE {
				continue
			}
			markIdent(in.Dst)
			markIdent(in.Src1)
			markIdent(in.Src2)
		}
	}

	remap := make([]uint32, len(ip.Entries))
	entries := append([]string(nil), strEntries...)
	for i, isUsed := range used {
		if !isUsed {
			remap[i] = identDropped
			continue
		}
		remap[i] = uint32(len(entries))
		entries = append(entries, ip.Entries[i])
	}

	return &mergedPool{entries: entries, identRemap: remap}
}

// decodeStringPool reverses parser.encodeStringPool's VLQ-size-length-
// prefixed encoding.
func decodeStringPool(b []byte) []string {
	var out []string
	for len(b) > 0 {
		n, k := vlq.DecodeSize(b)
		if k == 0 {
			break
		}
		b = b[k:]
		if uint64(len(b)) < n {
			break
		}
		out = append(out, string(b[:n]))
		b = b[n:]
	}
	return out
}

// encode serializes the merged pool as a VLQ-size count followed by each
// entry VLQ-size-length-prefixed; parser.encodeStringPool prefixes its
// entries the same way but writes no leading count.
func (m *mergedPool) encode() []byte {
	var out []byte
	out = vlq.EncodeSize(out, uint64(len(m.entries)))
	for _, s := range m.entries {
		out = vlq.EncodeSize(out, uint64(len(s)))
		out = append(out, s...)
	}
	return out
}

// decodePool is encode's inverse, used by Disassemble.
func decodePool(b []byte) (entries []string, rest []byte) {
	count, k := vlq.DecodeSize(b)
	b = b[k:]
	entries = make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		n, k := vlq.DecodeSize(b)
		b = b[k:]
		entries = append(entries, string(b[:n]))
		b = b[n:]
	}
	return entries, b
}
