package pcode

import (
	"fmt"
	"math"

	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/vlq"
)

// formR and formL identify which side of an R/L-polymorphic slot an operand
// lowered to; used as an index into the RR/RL/LR/LL quartets below.
const (
	formR = 0
	formL = 1
)

// binaryQuartets maps each binary arithmetic/comparison Q-opcode to its four
// concrete Op variants, ordered RR, RL, LR, LL to match formR/formL*2+formR/
// formL indexing in lowerBinary.
var binaryQuartets = map[qcode.Opcode][4]Op{
	qcode.ADD:    {ADD_RR, ADD_RL, ADD_LR, ADD_LL},
	qcode.SUB:    {SUB_RR, SUB_RL, SUB_LR, SUB_LL},
	qcode.MUL:    {MUL_RR, MUL_RL, MUL_LR, MUL_LL},
	qcode.DIV:    {DIV_RR, DIV_RL, DIV_LR, DIV_LL},
	qcode.IDIV:   {IDIV_RR, IDIV_RL, IDIV_LR, IDIV_LL},
	qcode.MOD:    {MOD_RR, MOD_RL, MOD_LR, MOD_LL},
	qcode.SHL:    {SHL_RR, SHL_RL, SHL_LR, SHL_LL},
	qcode.SHR:    {SHR_RR, SHR_RL, SHR_LR, SHR_LL},
	qcode.AND:    {AND_RR, AND_RL, AND_LR, AND_LL},
	qcode.OR:     {OR_RR, OR_RL, OR_LR, OR_LL},
	qcode.XOR:    {XOR_RR, XOR_RL, XOR_LR, XOR_LL},
	qcode.CONCAT: {CONCAT_RR, CONCAT_RL, CONCAT_LR, CONCAT_LL},
	qcode.CEQ:    {CEQ_RR, CEQ_RL, CEQ_LR, CEQ_LL},
	qcode.CLT:    {CLT_RR, CLT_RL, CLT_LR, CLT_LL},
}

// directOps maps every Q-code opcode that lowers to exactly one Op (no
// polymorphic source operand, or whose operands are all pool/stack/register
// references already unambiguous in shape) straight across.
var directOps = map[qcode.Opcode]Op{
	qcode.XPOP:       XPOP,
	qcode.GETATTR:    GETATTR,
	qcode.SETATTR:    SETATTR,
	qcode.DELATTR:    DELATTR,
	qcode.GETINDEX:   GETINDEX,
	qcode.SETINDEX:   SETINDEX,
	qcode.DELINDEX:   DELINDEX,
	qcode.GETPUBLIC:  GETPUBLIC,
	qcode.SETPUBLIC:  SETPUBLIC,
	qcode.DELPUBLIC:  DELPUBLIC,
	qcode.GETBIND:    GETBIND,
	qcode.SETBIND:    SETBIND,
	qcode.PUSHF:      PUSHF,
	qcode.POPF:       POPF,
	qcode.SPREAD:     SPREAD,
	qcode.ASSERTEQ:   ASSERTEQ,
	qcode.ASSERTGE:   ASSERTGE,
	qcode.NEWLIST:    NEWLIST,
	qcode.NEWDICT:    NEWDICT,
	qcode.MLISTP:     MLISTP,
	qcode.ITERINIT:   ITERINIT,
	qcode.ITERNEXT:   ITERNEXT,
	qcode.FMAKE:      FMAKE,
	qcode.FBIND:      FBIND,
	qcode.FCALL:      FCALL,
	qcode.FTAIL:      FTAIL,
	qcode.DCALL:      DCALL,
	qcode.DTAIL:      DTAIL,
	qcode.WPUSH:      WPUSH,
	qcode.WPOP:       WPOP,
	qcode.WPUSHVAL:   WPUSHVAL,
	qcode.RETNONE:    RETNONE,
	qcode.RETONE:     RETONE,
	qcode.RETSTK:     RETSTK,
}

// loweredInstr is one emitted bytecode instruction before its final byte
// offset is known: every operand except a jump target is already fully
// encoded, since only a jump's width depends on the function-wide layout
// pass below.
type loweredInstr struct {
	op      Op
	payload []byte // everything after the opcode byte, for non-jump ops

	isJump    bool
	jumpLabel uint32 // valid only when isJump
}

// size returns in's encoded length given the function's chosen jump width:
// the opcode byte, any non-jump operand payload (a conditional jump's
// condition register, XPUSH's nothing), and for a jump the CLQ(width)
// target appended last.
func (in loweredInstr) size(width int) int {
	n := 1 + len(in.payload)
	if in.isJump {
		n += width
	}
	return n
}

// funcLowerCtx holds the per-function state threaded through lowering:
// which merged pool offsets back each identifier reference, and how many
// synthetic temps have been introduced to materialize literals that don't
// fit an L-form operand.
type funcLowerCtx struct {
	fn        *qcode.Func
	pool      *mergedPool
	extraTemp uint32
}

func (c *funcLowerCtx) allocTemp() uint32 {
	t := c.fn.TempCount + c.extraTemp
	c.extraTemp++
	return t
}

// Option configures a single Lower call; see WithInitialJumpWidth.
type Option func(*lowerOptions)

type lowerOptions struct {
	initialWidth int
}

// WithInitialJumpWidth overrides the lowerer's starting guess for each
// function's jump width (normally 1 byte, per §4.7 "Jump width"'s
// convergence loop). Wired to RILLC_MAXJUMPWIDTH by the CLI so the
// convergence loop's later iterations can be exercised without needing a
// function large enough to need them naturally.
func WithInitialJumpWidth(w int) Option {
	return func(o *lowerOptions) { o.initialWidth = w }
}

// Lower converts code (already parsed and optimized) into its final
// bytecode Program (§4.7).
func Lower(code *qcode.Code, opts ...Option) (*Program, error) {
	var o lowerOptions
	o.initialWidth = 1
	for _, opt := range opts {
		opt(&o)
	}
	if o.initialWidth < 1 || o.initialWidth > 4 {
		o.initialWidth = 1
	}

	pool := buildPool(code)

	headers := make([]FuncHeader, len(code.Functions))
	var codeBytes []byte
	for i, fn := range code.Functions {
		fnCode, header, err := lowerFuncSafe(fn, pool, o.initialWidth)
		if err != nil {
			return nil, fmt.Errorf("pcode: function %d: %w", i, err)
		}
		header.ParentIndex = NoParent
		if fn.ParentIndex != qcode.NoParent {
			header.ParentIndex = fn.ParentIndex
		}
		header.NamePoolOffset = NoName
		if fn.Name != qcode.NoName {
			header.NamePoolOffset = pool.remapIdent(fn.Name)
		}
		header.EntryOffset = uint32(len(codeBytes))
		header.Length = uint32(len(fnCode))
		headers[i] = header
		codeBytes = append(codeBytes, fnCode...)
	}

	data := encodeData(pool, headers)
	return &Program{Code: codeBytes, Data: data}, nil
}

// lowerFuncSafe recovers a register-overflow or other internal-invariant
// panic from lowerFunc into an ordinary error, per §7's "Internal" error
// kind: these are not expected to fire, so a release build reports an
// opaque error rather than crashing the whole compilation.
func lowerFuncSafe(fn *qcode.Func, pool *mergedPool, initialWidth int) (code []byte, header FuncHeader, err error) {
	defer func() {
		if r := recover(); r != nil {
			code, header, err = nil, FuncHeader{}, fmt.Errorf("pcode: internal error: %v", r)
		}
	}()
	return lowerFunc(fn, pool, initialWidth)
}

// lowerFunc lowers one Q-function to its bytecode, including the leading
// DEL width marker (§4.7 "Jump width").
func lowerFunc(fn *qcode.Func, pool *mergedPool, initialWidth int) ([]byte, FuncHeader, error) {
	ctx := &funcLowerCtx{fn: fn, pool: pool}

	oldToFirstNew := make([]int, len(fn.Instructions))
	var flat []loweredInstr
	for i, in := range fn.Instructions {
		if in.Op == qcode.DELETE {
			oldToFirstNew[i] = -1
			continue
		}
		oldToFirstNew[i] = len(flat)
		flat = append(flat, ctx.lowerInstr(in)...)
	}

	width, offsets, total, err := layout(flat, initialWidth)
	if err != nil {
		return nil, FuncHeader{}, err
	}

	out := make([]byte, 0, total+2)
	out = append(out, byte(DEL), byte(width))
	for _, in := range flat {
		out = append(out, byte(in.op))
		out = append(out, in.payload...)
		if in.isJump {
			target, err := resolveJumpTarget(fn, in.jumpLabel, oldToFirstNew, offsets, total)
			if err != nil {
				return nil, FuncHeader{}, err
			}
			out = vlq.EncodeConst(out, target, width)
		}
	}

	header := FuncHeader{
		ArgCount:         fn.ArgCount,
		OptionalArgCount: fn.OptionalArgCount,
		TempCount:        fn.TempCount + ctx.extraTemp,
		LocalCount:       fn.LocalCount,
		ExhaleCount:      fn.ExhaleCount,
		InhaleCount:      fn.InhaleCount,
		Flags:            uint8(fn.Flags),
		InhaleSources:    lowerInhaleSources(fn),
	}
	return out, header, nil
}

func lowerInhaleSources(fn *qcode.Func) []InhaleSource {
	out := make([]InhaleSource, len(fn.InhaleSources))
	for i, src := range fn.InhaleSources {
		kind := SourceExhale
		if src.Kind == qcode.Inhale {
			kind = SourceInhale
		}
		out[i] = InhaleSource{Kind: kind, Index: src.Index}
	}
	return out
}

// layout computes the function's jump width and the byte offset of each
// lowered instruction, converging per §4.7 "Jump width" from initialWidth:
// the smallest w ∈ {initialWidth..4} whose CLQ covers every jump target (an
// absolute byte offset within the function's own code, prologue included,
// since the DEL marker precedes instruction 0).
func layout(flat []loweredInstr, initialWidth int) (width int, offsets []uint32, total uint32, err error) {
	width = initialWidth
	for iter := 0; iter < 4; iter++ {
		offsets = make([]uint32, len(flat))
		off := uint32(2) // DEL marker: opcode byte + width byte
		for i, in := range flat {
			offsets[i] = off
			off += uint32(in.size(width))
		}
		total = off
		need := vlq.WidthFor(total)
		if need <= width {
			return width, offsets, total, nil
		}
		width = need
	}
	return 0, nil, 0, fmt.Errorf("pcode: function too large to encode a jump width")
}

// resolveJumpTarget follows a Q-code label to the byte offset of the first
// lowered instruction standing in for the original Q-instruction it was
// bound to.
func resolveJumpTarget(fn *qcode.Func, label uint32, oldToFirstNew []int, offsets []uint32, total uint32) (uint32, error) {
	oldIdx, ok := fn.Labels.Target(label)
	if !ok {
		return 0, fmt.Errorf("unresolved label %d", label)
	}
	if int(oldIdx) >= len(oldToFirstNew) {
		return 0, fmt.Errorf("label %d targets instruction %d past the function end", label, oldIdx)
	}
	newIdx := oldToFirstNew[oldIdx]
	if newIdx < 0 {
		return 0, fmt.Errorf("label %d targets a deleted instruction", label)
	}
	if newIdx >= len(offsets) {
		// Target is the function's trailing exit point (one past the last
		// live instruction): the function's total encoded length.
		return total, nil // unreachable in practice: CloseFunction always emits a trailing exit
	}
	return offsets[newIdx], nil
}

// lowerInstr dispatches one Q-instruction to its concrete bytecode form(s).
func (c *funcLowerCtx) lowerInstr(in qcode.Instr) []loweredInstr {
	switch in.Op {
	case qcode.NOP:
		return []loweredInstr{{op: NOP}}
	case qcode.MOVE:
		if in.Dst.Kind == qcode.Stack || in.Src1.Kind == qcode.Stack {
			return c.lowerStackMove(in)
		}
		return c.lowerUnary(MOVE_R, MOVE_L, in)
	case qcode.UPLUS:
		return c.lowerUnary(UPLUS_R, UPLUS_L, in)
	case qcode.UMINUS:
		return c.lowerUnary(UMINUS_R, UMINUS_L, in)
	case qcode.BNOT:
		return c.lowerUnary(BNOT_R, BNOT_L, in)
	case qcode.LNOT:
		return c.lowerUnary(LNOT_R, LNOT_L, in)
	case qcode.JMP:
		return c.lowerControlFlow(JMP, in)
	case qcode.JMPIFTRUE:
		return c.lowerControlFlow(JMPIFTRUE, in)
	case qcode.JMPIFFALSE:
		return c.lowerControlFlow(JMPIFFALSE, in)
	case qcode.XPUSH:
		return c.lowerControlFlow(XPUSH, in)
	}
	if quartet, ok := binaryQuartets[in.Op]; ok {
		return c.lowerBinary(quartet, in)
	}
	if direct, ok := directOps[in.Op]; ok {
		return c.lowerSimple(direct, in)
	}
	panic(fmt.Sprintf("pcode: unhandled qcode opcode %s", in.Op))
}

func (c *funcLowerCtx) lowerUnary(baseR, baseL Op, in qcode.Instr) []loweredInstr {
	form, srcBytes, pre := c.srcForm(in.Src1)
	op := baseR
	if form == formL {
		op = baseL
	}
	dstBytes, dstPre := c.encodeGeneric(in.Dst)
	out := append(append([]loweredInstr{}, dstPre...), pre...)
	payload := append(append([]byte{}, dstBytes...), srcBytes...)
	return append(out, loweredInstr{op: op, payload: payload})
}

func (c *funcLowerCtx) lowerBinary(quartet [4]Op, in qcode.Instr) []loweredInstr {
	f1, b1, pre1 := c.srcForm(in.Src1)
	f2, b2, pre2 := c.srcForm(in.Src2)
	op := quartet[f1*2+f2]
	dstBytes, dstPre := c.encodeGeneric(in.Dst)

	out := append(append([]loweredInstr{}, dstPre...), pre1...)
	out = append(out, pre2...)
	payload := append(append(append([]byte{}, dstBytes...), b1...), b2...)
	return append(out, loweredInstr{op: op, payload: payload})
}

// lowerStackMove routes a MOVE touching a frame-stack slot to its dedicated
// STKGET/STKPUT form: stack slots are not registers, so they cannot ride the
// MOVE_R/MOVE_L encoding. A non-register value being pushed is materialized
// into a temp first, the same way encodeGeneric treats any other
// literal-in-a-fixed-slot position.
func (c *funcLowerCtx) lowerStackMove(in qcode.Instr) []loweredInstr {
	if in.Src1.Kind == qcode.Stack {
		dstBytes, pre := c.encodeGeneric(in.Dst)
		srcBytes, _ := c.encodeGeneric(in.Src1)
		payload := append(append([]byte{}, dstBytes...), srcBytes...)
		return append(pre, loweredInstr{op: STKGET, payload: payload})
	}
	var pre []loweredInstr
	src := in.Src1
	if !src.IsRegisterLike() {
		tmp := c.allocTemp()
		pre = append(pre, c.materialize(src, tmp))
		src = qcode.TempOperand(tmp)
	}
	dstBytes, _ := c.encodeGeneric(in.Dst)
	payload := append(append([]byte{}, dstBytes...), encodeReg(src)...)
	return append(pre, loweredInstr{op: STKPUT, payload: payload})
}

func (c *funcLowerCtx) lowerControlFlow(op Op, in qcode.Instr) []loweredInstr {
	var pre []loweredInstr
	var payload []byte
	if in.Src1.Kind != qcode.None {
		b, p := c.encodeGeneric(in.Src1)
		pre = append(pre, p...)
		payload = append(payload, b...)
	}
	out := append([]loweredInstr{}, pre...)
	return append(out, loweredInstr{op: op, payload: payload, isJump: true, jumpLabel: in.Dst.Index})
}

func (c *funcLowerCtx) lowerSimple(op Op, in qcode.Instr) []loweredInstr {
	n := qcode.OperandFields(in.Op)
	var pre []loweredInstr
	var payload []byte
	add := func(o qcode.Operand) {
		b, p := c.encodeGeneric(o)
		pre = append(pre, p...)
		payload = append(payload, b...)
	}
	if n >= 1 {
		add(in.Dst)
	}
	if n >= 2 {
		add(in.Src1)
	}
	if n >= 3 {
		add(in.Src2)
	}
	out := append([]loweredInstr{}, pre...)
	return append(out, loweredInstr{op: op, payload: payload})
}

// srcForm encodes a single R/L-polymorphic source operand: register-like
// operands and literals that fit an L-form encode inline; anything else
// (float, string, identifier/public references, oversized ints) is
// materialized into a fresh temp first.
func (c *funcLowerCtx) srcForm(src qcode.Operand) (form int, bytes []byte, pre []loweredInstr) {
	if src.IsRegisterLike() {
		return formR, encodeReg(src), nil
	}
	if b, ok := literalLForm(src); ok {
		return formL, b, nil
	}
	tmp := c.allocTemp()
	ld := c.materialize(src, tmp)
	return formR, encodeReg(qcode.TempOperand(tmp)), []loweredInstr{ld}
}

// encodeGeneric encodes any operand that isn't part of an R/L-polymorphic
// slot: registers and pool/stack/function/immediate references pass
// straight through in their own fixed shape; any literal is always
// materialized into a register first, since §4.7 scopes the inline-literal
// optimization to binary arithmetic/comparison forms only.
func (c *funcLowerCtx) encodeGeneric(op qcode.Operand) (bytes []byte, pre []loweredInstr) {
	switch op.Kind {
	case qcode.None, qcode.WithSink:
		return nil, nil
	case qcode.Temp, qcode.Local, qcode.Exhale, qcode.Inhale:
		return encodeReg(op), nil
	case qcode.Identifier, qcode.Public, qcode.StrIdent:
		idx := c.pool.remapIdent(op.Index)
		return vlq.EncodeSize(nil, uint64(idx)), nil
	case qcode.StrConst:
		return vlq.EncodeSize(nil, uint64(op.Index)), nil
	case qcode.FuncRef:
		return vlq.EncodeSize(nil, uint64(op.Index)), nil
	case qcode.UImm:
		return vlq.EncodeSize(nil, uint64(op.Index)), nil
	case qcode.Stack:
		tag := byte(0)
		if op.FromEnd {
			tag = 1
		}
		return append([]byte{tag}, vlq.EncodeSize(nil, uint64(op.Index))...), nil
	default:
		tmp := c.allocTemp()
		ld := c.materialize(op, tmp)
		return encodeReg(qcode.TempOperand(tmp)), []loweredInstr{ld}
	}
}

// materialize emits the LD* instruction that loads op's compile-time-known
// value into register tmp.
func (c *funcLowerCtx) materialize(op qcode.Operand, tmp uint32) loweredInstr {
	dst := encodeReg(qcode.TempOperand(tmp))
	switch op.Kind {
	case qcode.IntConst:
		payload := append(append([]byte{}, dst...), vlq.EncodeInt(nil, op.Int)...)
		return loweredInstr{op: LDINT, payload: payload}
	case qcode.FloatConst:
		payload := append(append([]byte{}, dst...), encodeFloat64(op.Float)...)
		return loweredInstr{op: LDFLT, payload: payload}
	case qcode.StrConst:
		payload := append(append([]byte{}, dst...), vlq.EncodeSize(nil, uint64(op.Index))...)
		return loweredInstr{op: LDSTR, payload: payload}
	case qcode.Identifier, qcode.Public, qcode.StrIdent:
		idx := c.pool.remapIdent(op.Index)
		payload := append(append([]byte{}, dst...), vlq.EncodeSize(nil, uint64(idx))...)
		return loweredInstr{op: LDSTR, payload: payload}
	case qcode.NullConst:
		return loweredInstr{op: LDNUL, payload: dst}
	case qcode.TrueConst:
		return loweredInstr{op: LDBLT, payload: dst}
	case qcode.FalseConst:
		return loweredInstr{op: LDBLF, payload: dst}
	default:
		panic(fmt.Sprintf("pcode: cannot materialize operand kind %v", op.Kind))
	}
}

// literalLForm reports whether op can be encoded directly as a binary op's
// L-form operand (a tag byte plus a 2-byte payload): only small integers
// and the three singleton constants qualify — floats and strings always
// materialize (§4.7's "does not fit into 16 bits" is read, for a float or a
// pool reference, as "never fits").
func literalLForm(op qcode.Operand) ([]byte, bool) {
	switch op.Kind {
	case qcode.IntConst:
		if op.Int >= math.MinInt16 && op.Int <= math.MaxInt16 {
			return append([]byte{0}, int16Bytes(int16(op.Int))...), true
		}
	case qcode.NullConst:
		return []byte{1, 0, 0}, true
	case qcode.TrueConst:
		return []byte{2, 0, 0}, true
	case qcode.FalseConst:
		return []byte{3, 0, 0}, true
	}
	return nil, false
}

func int16Bytes(v int16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

func encodeFloat64(v float64) []byte {
	bits := math.Float64bits(v)
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(bits >> (8 * uint(i)))
	}
	return out
}

// encodeReg encodes a register-like operand as a one-byte space tag
// (temp/local/exhale/inhale) followed by a RegWidth-byte CLQ index.
func encodeReg(op qcode.Operand) []byte {
	var space byte
	switch op.Kind {
	case qcode.Temp:
		space = 0
	case qcode.Local:
		space = 1
	case qcode.Exhale:
		space = 2
	case qcode.Inhale:
		space = 3
	default:
		panic(fmt.Sprintf("pcode: encodeReg on non-register operand %v", op.Kind))
	}
	buf := []byte{space}
	return vlq.EncodeConst(buf, op.Index, RegWidth)
}
