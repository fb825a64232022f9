package pcode

import (
	"fmt"
	"io"
	"math"

	"github.com/rill-lang/rillc/lang/vlq"
)

// regSpaceNames mirrors encodeReg's tag byte (0=temp,1=local,2=exhale,
// 3=inhale).
var regSpaceNames = [...]string{"t", "l", "e", "i"}

// fieldKind names one operand slot's fixed encoding shape. Every Q-code
// opcode routes a given operand position through the same qcode.Operand.Kind
// on every instance the qbuild package ever emits (an attribute name is
// always Identifier, an index is always register-like, and so on), so the
// shape below is a property of the opcode, not of any one instruction: this
// is what lets Disassemble decode a function without also carrying qcode's
// type information.
type fieldKind int

const (
	fkReg fieldKind = iota
	fkPool
	fkFunc
	fkStack
	fkUImm
)

// directShapes gives the fixed operand shape of every Op that lowerSimple
// produces, in Dst, Src1, Src2 order, mirroring lowerSimple's use of
// encodeGeneric for each qcode opcode it handles.
var directShapes = map[Op][]fieldKind{
	XPOP:      {},
	GETATTR:   {fkReg, fkReg, fkPool},
	SETATTR:   {fkReg, fkPool, fkReg},
	DELATTR:   {fkReg, fkPool},
	GETINDEX:  {fkReg, fkReg, fkReg},
	SETINDEX:  {fkReg, fkReg, fkReg},
	DELINDEX:  {fkReg, fkReg},
	GETPUBLIC: {fkReg, fkPool},
	SETPUBLIC: {fkPool, fkReg},
	DELPUBLIC: {fkPool},
	GETBIND:   {fkReg, fkReg},
	SETBIND:   {fkReg, fkReg},
	PUSHF:     {},
	POPF:      {},
	SPREAD:    {fkReg},
	ASSERTEQ:  {fkUImm},
	ASSERTGE:  {fkUImm},
	STKGET:    {fkReg, fkStack},
	STKPUT:    {fkStack, fkReg},
	NEWLIST:   {fkReg, fkUImm},
	NEWDICT:   {fkReg, fkUImm},
	MLISTP:    {fkReg, fkUImm, fkUImm},
	ITERINIT:  {fkReg},
	ITERNEXT:  {fkReg, fkReg},
	FMAKE:     {fkReg, fkFunc},
	FBIND:     {fkReg, fkReg, fkReg},
	FCALL:     {fkReg},
	FTAIL:     {fkReg},
	DCALL:     {fkReg},
	DTAIL:     {fkReg},
	WPUSH:     {},
	WPOP:      {},
	WPUSHVAL:  {fkReg},
	RETNONE:   {},
	RETONE:    {fkReg},
	RETSTK:    {},
}

const (
	unaryBase   = MOVE_R
	unaryCount  = LNOT_L - MOVE_R + 1
	binaryBase  = ADD_RR
	binaryCount = CLT_LL - ADD_RR + 1
)

// Disassemble writes a human-readable listing of prog to w: the merged pool,
// then each function's header and instructions, one per line. It is this
// package's own loader, kept single and parameterized by its output sink in
// place of the original having three near-identical dump routines.
func Disassemble(prog *Program, w io.Writer) error {
	pool, headers, ok := decodeData(prog.Data)
	if !ok {
		return fmt.Errorf("pcode: malformed data section")
	}

	fmt.Fprintf(w, "pool (%d entries):\n", len(pool))
	for i, s := range pool {
		fmt.Fprintf(w, "  [%d] %q\n", i, s)
	}

	for fi, h := range headers {
		fmt.Fprintf(w, "\nfunction %d:", fi)
		if h.NamePoolOffset != NoName && int(h.NamePoolOffset) < len(pool) {
			fmt.Fprintf(w, " %q", pool[h.NamePoolOffset])
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  args=%d optional=%d temps=%d locals=%d exhale=%d inhale=%d flags=%#x\n",
			h.ArgCount, h.OptionalArgCount, h.TempCount, h.LocalCount, h.ExhaleCount, h.InhaleCount, h.Flags)
		if h.ParentIndex != NoParent {
			fmt.Fprintf(w, "  parent=%d\n", h.ParentIndex)
		}
		for i, src := range h.InhaleSources {
			kind := "exhale"
			if src.Kind == SourceInhale {
				kind = "inhale"
			}
			fmt.Fprintf(w, "  inhale[%d] <- %s(%d)\n", i, kind, src.Index)
		}

		if int(h.EntryOffset+h.Length) > len(prog.Code) {
			return fmt.Errorf("pcode: function %d: code range out of bounds", fi)
		}
		body := prog.Code[h.EntryOffset : h.EntryOffset+h.Length]
		if err := disassembleFunc(w, body, pool); err != nil {
			return fmt.Errorf("pcode: function %d: %w", fi, err)
		}
	}
	return nil
}

func disassembleFunc(w io.Writer, body []byte, pool []string) error {
	if len(body) < 2 || Op(body[0]) != DEL {
		return fmt.Errorf("missing jump-width marker")
	}
	width := int(body[1])
	b := body[2:]
	off := uint32(2)

	for len(b) > 0 {
		op := Op(b[0])
		start := off
		b = b[1:]
		off++

		desc, n, err := decodeInstr(op, b, width, pool)
		if err != nil {
			return fmt.Errorf("at offset %d: %w", start, err)
		}
		fmt.Fprintf(w, "  %04d  %-12s %s\n", start, op, desc)
		b = b[n:]
		off += uint32(n)
	}
	return nil
}

// decodeInstr decodes op's operands starting at b (just past the opcode
// byte) and returns a human-readable rendering plus the number of bytes
// consumed.
func decodeInstr(op Op, b []byte, width int, pool []string) (desc string, n int, err error) {
	switch {
	case op == NOP:
		return "", 0, nil
	case op >= unaryBase && op < unaryBase+unaryCount:
		idx := op - unaryBase
		isL := idx%2 == 1
		return decodeUnary(b, isL)
	case op >= binaryBase && op < binaryBase+binaryCount:
		idx := op - binaryBase
		variant := idx % 4
		return decodeBinary(b, variant == 2 || variant == 3, variant == 1 || variant == 3)
	case op == JMP || op == XPUSH:
		return decodeJumpOnly(b, width)
	case op == JMPIFTRUE || op == JMPIFFALSE:
		return decodeCondJump(b, width)
	case op == LDINT:
		return decodeLdInt(b)
	case op == LDFLT:
		return decodeLdFlt(b)
	case op == LDSTR:
		return decodeLdStr(b, pool)
	case op == LDNUL, op == LDBLT, op == LDBLF:
		return decodeLdSingleton(b)
	}
	shape, ok := directShapes[op]
	if !ok {
		return "", 0, fmt.Errorf("unknown opcode %s", op)
	}
	return decodeShape(b, shape, pool)
}

func decodeReg(b []byte) (string, int, error) {
	if len(b) < 1+RegWidth {
		return "", 0, fmt.Errorf("truncated register operand")
	}
	space := b[0]
	idx, ok := vlq.DecodeConst(b[1:1+RegWidth], RegWidth)
	if !ok || int(space) >= len(regSpaceNames) {
		return "", 0, fmt.Errorf("malformed register operand")
	}
	return fmt.Sprintf("%s%d", regSpaceNames[space], idx), 1 + RegWidth, nil
}

func decodeLForm(b []byte) (string, int, error) {
	if len(b) < 3 {
		return "", 0, fmt.Errorf("truncated literal operand")
	}
	switch b[0] {
	case 0:
		v := int16(uint16(b[1]) | uint16(b[2])<<8)
		return fmt.Sprintf("#%d", v), 3, nil
	case 1:
		return "#null", 3, nil
	case 2:
		return "#true", 3, nil
	case 3:
		return "#false", 3, nil
	}
	return "", 0, fmt.Errorf("malformed literal operand tag %d", b[0])
}

func decodeRegOrL(b []byte, isL bool) (string, int, error) {
	if isL {
		return decodeLForm(b)
	}
	return decodeReg(b)
}

func decodeUnary(b []byte, isL bool) (string, int, error) {
	dst, n1, err := decodeReg(b)
	if err != nil {
		return "", 0, err
	}
	src, n2, err := decodeRegOrL(b[n1:], isL)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%s, %s", dst, src), n1 + n2, nil
}

func decodeBinary(b []byte, src1IsL, src2IsL bool) (string, int, error) {
	dst, n1, err := decodeReg(b)
	if err != nil {
		return "", 0, err
	}
	src1, n2, err := decodeRegOrL(b[n1:], src1IsL)
	if err != nil {
		return "", 0, err
	}
	src2, n3, err := decodeRegOrL(b[n1+n2:], src2IsL)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%s, %s, %s", dst, src1, src2), n1 + n2 + n3, nil
}

func decodeJumpTarget(b []byte, width int) (string, int, error) {
	v, ok := vlq.DecodeConst(b, width)
	if !ok {
		return "", 0, fmt.Errorf("truncated jump target")
	}
	return fmt.Sprintf("-> %04d", v), width, nil
}

func decodeJumpOnly(b []byte, width int) (string, int, error) {
	return decodeJumpTarget(b, width)
}

func decodeCondJump(b []byte, width int) (string, int, error) {
	cond, n1, err := decodeReg(b)
	if err != nil {
		return "", 0, err
	}
	tgt, n2, err := decodeJumpTarget(b[n1:], width)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%s, %s", cond, tgt), n1 + n2, nil
}

func decodeLdInt(b []byte) (string, int, error) {
	dst, n1, err := decodeReg(b)
	if err != nil {
		return "", 0, err
	}
	v, n2 := vlq.DecodeInt(b[n1:])
	if n2 == 0 {
		return "", 0, fmt.Errorf("truncated int literal")
	}
	return fmt.Sprintf("%s, %d", dst, v), n1 + n2, nil
}

func decodeLdFlt(b []byte) (string, int, error) {
	dst, n1, err := decodeReg(b)
	if err != nil {
		return "", 0, err
	}
	if len(b[n1:]) < 8 {
		return "", 0, fmt.Errorf("truncated float literal")
	}
	var bits uint64
	for i := 7; i >= 0; i-- {
		bits = bits<<8 | uint64(b[n1+i])
	}
	return fmt.Sprintf("%s, %g", dst, math.Float64frombits(bits)), n1 + 8, nil
}

func decodeLdStr(b []byte, pool []string) (string, int, error) {
	dst, n1, err := decodeReg(b)
	if err != nil {
		return "", 0, err
	}
	idx, n2 := vlq.DecodeSize(b[n1:])
	if n2 == 0 {
		return "", 0, fmt.Errorf("truncated string/identifier literal")
	}
	val := "?"
	if int(idx) < len(pool) {
		val = pool[idx]
	}
	return fmt.Sprintf("%s, %q", dst, val), n1 + n2, nil
}

func decodeLdSingleton(b []byte) (string, int, error) {
	dst, n1, err := decodeReg(b)
	if err != nil {
		return "", 0, err
	}
	return dst, n1, nil
}

func decodeShape(b []byte, shape []fieldKind, pool []string) (string, int, error) {
	var parts []string
	total := 0
	for _, k := range shape {
		var s string
		var n int
		var err error
		switch k {
		case fkReg:
			s, n, err = decodeReg(b)
		case fkPool:
			var idx uint64
			idx, n = vlq.DecodeSize(b)
			if n == 0 {
				err = fmt.Errorf("truncated pool reference")
			} else {
				name := "?"
				if int(idx) < len(pool) {
					name = pool[idx]
				}
				s = fmt.Sprintf("%q", name)
			}
		case fkFunc:
			var idx uint64
			idx, n = vlq.DecodeSize(b)
			if n == 0 {
				err = fmt.Errorf("truncated function reference")
			} else {
				s = fmt.Sprintf("func#%d", idx)
			}
		case fkUImm:
			var v uint64
			v, n = vlq.DecodeSize(b)
			if n == 0 {
				err = fmt.Errorf("truncated immediate")
			} else {
				s = fmt.Sprintf("%d", v)
			}
		case fkStack:
			if len(b) < 1 {
				err = fmt.Errorf("truncated stack reference")
				break
			}
			fromEnd := b[0] != 0
			var idx uint64
			idx, n = vlq.DecodeSize(b[1:])
			n++
			if n == 1 {
				err = fmt.Errorf("truncated stack reference")
			} else if fromEnd {
				s = fmt.Sprintf("stack[-%d]", idx)
			} else {
				s = fmt.Sprintf("stack[%d]", idx)
			}
		}
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, s)
		b = b[n:]
		total += n
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out, total, nil
}
