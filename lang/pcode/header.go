package pcode

import "github.com/rill-lang/rillc/lang/vlq"

// encodeData serializes the version byte, merged pool, and function-header
// table into Program.Data (§4.7 "Layout"). The exact shape here is this
// package's own implementation decision (spec §4.7 leaves it open beyond
// "deterministic and round-trips with the VM's loader"); decodeData is its
// exact inverse and is what Disassemble relies on.
func encodeData(pool *mergedPool, headers []FuncHeader) []byte {
	out := []byte{Version}
	out = append(out, pool.encode()...)
	out = vlq.EncodeSize(out, uint64(len(headers)))
	for _, h := range headers {
		out = encodeHeader(out, h)
	}
	return out
}

func encodeHeader(out []byte, h FuncHeader) []byte {
	out = vlq.EncodeSize(out, uint64(h.ArgCount))
	out = vlq.EncodeSize(out, uint64(h.OptionalArgCount))
	out = vlq.EncodeSize(out, uint64(h.TempCount))
	out = vlq.EncodeSize(out, uint64(h.LocalCount))
	out = vlq.EncodeSize(out, uint64(h.ExhaleCount))
	out = vlq.EncodeSize(out, uint64(h.InhaleCount))
	out = append(out, h.Flags)
	out = encodeOptionalOffset(out, h.NamePoolOffset, NoName)
	out = encodeOptionalOffset(out, h.ParentIndex, NoParent)
	out = vlq.EncodeSize(out, uint64(h.EntryOffset))
	out = vlq.EncodeSize(out, uint64(h.Length))
	out = vlq.EncodeSize(out, uint64(len(h.InhaleSources)))
	for _, src := range h.InhaleSources {
		out = append(out, byte(src.Kind))
		out = vlq.EncodeSize(out, uint64(src.Index))
	}
	return out
}

func encodeOptionalOffset(out []byte, v, sentinel uint32) []byte {
	if v == sentinel {
		return append(out, 0)
	}
	out = append(out, 1)
	return vlq.EncodeSize(out, uint64(v))
}

// decodeData is encodeData's inverse.
func decodeData(data []byte) (pool []string, headers []FuncHeader, ok bool) {
	if len(data) == 0 || data[0] != Version {
		return nil, nil, false
	}
	rest := data[1:]
	pool, rest = decodePool(rest)

	count, k := vlq.DecodeSize(rest)
	rest = rest[k:]
	headers = make([]FuncHeader, 0, count)
	for i := uint64(0); i < count; i++ {
		var h FuncHeader
		h, rest, ok = decodeHeader(rest)
		if !ok {
			return nil, nil, false
		}
		headers = append(headers, h)
	}
	return pool, headers, true
}

func decodeHeader(b []byte) (h FuncHeader, rest []byte, ok bool) {
	var v uint64
	var k int

	v, k = vlq.DecodeSize(b)
	h.ArgCount = uint32(v)
	b = b[k:]
	v, k = vlq.DecodeSize(b)
	h.OptionalArgCount = uint32(v)
	b = b[k:]
	v, k = vlq.DecodeSize(b)
	h.TempCount = uint32(v)
	b = b[k:]
	v, k = vlq.DecodeSize(b)
	h.LocalCount = uint32(v)
	b = b[k:]
	v, k = vlq.DecodeSize(b)
	h.ExhaleCount = uint32(v)
	b = b[k:]
	v, k = vlq.DecodeSize(b)
	h.InhaleCount = uint32(v)
	b = b[k:]

	if len(b) == 0 {
		return h, nil, false
	}
	h.Flags = b[0]
	b = b[1:]

	h.NamePoolOffset, b, ok = decodeOptionalOffset(b, NoName)
	if !ok {
		return h, nil, false
	}
	h.ParentIndex, b, ok = decodeOptionalOffset(b, NoParent)
	if !ok {
		return h, nil, false
	}

	v, k = vlq.DecodeSize(b)
	h.EntryOffset = uint32(v)
	b = b[k:]
	v, k = vlq.DecodeSize(b)
	h.Length = uint32(v)
	b = b[k:]

	v, k = vlq.DecodeSize(b)
	b = b[k:]
	h.InhaleSources = make([]InhaleSource, 0, v)
	for i := uint64(0); i < v; i++ {
		if len(b) == 0 {
			return h, nil, false
		}
		kind := SourceKind(b[0])
		b = b[1:]
		idx, k2 := vlq.DecodeSize(b)
		b = b[k2:]
		h.InhaleSources = append(h.InhaleSources, InhaleSource{Kind: kind, Index: uint32(idx)})
	}
	return h, b, true
}

func decodeOptionalOffset(b []byte, sentinel uint32) (v uint32, rest []byte, ok bool) {
	if len(b) == 0 {
		return 0, nil, false
	}
	has := b[0]
	b = b[1:]
	if has == 0 {
		return sentinel, b, true
	}
	n, k := vlq.DecodeSize(b)
	return uint32(n), b[k:], true
}
