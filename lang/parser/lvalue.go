package parser

import (
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/token"
)

// lvKind classifies what parseLvalue found at the end of a postfix chain.
type lvKind int

const (
	lvIdent lvKind = iota // a bare name, resolved through the scope book
	lvAttr                // obj.attr
	lvIndex               // obj[expr]
	lvValue               // a chain that ended in a call: a value, never assignable
)

// lvalue is a deferred assignment target (or, for lvValue, a plain value):
// parsePostfix-equivalent chain-walking stops one step early so the caller
// can decide whether the last step is a read (Load) or a write (Store).
type lvalue struct {
	kind     lvKind
	ordinal  uint32
	obj      qcode.Operand
	key      qcode.Operand
	ellipsis bool
	line     int32
}

func isChainStart(t token.Tag) bool {
	switch t {
	case token.DOT, token.LBRACK, token.LPAREN, token.SAFEDOT, token.ARROW:
		return true
	}
	return false
}

// parseLvalue parses one assignment target (or, if the chain turns out to
// end in a call, a bare value) per §4.3's description of assignment targets:
// a name, or a chain of attribute/index steps ending in one.
func (p *parser) parseLvalue() lvalue {
	ell := false
	if p.tok == token.ELLIPSIS {
		p.advance()
		ell = true
	}
	line := p.line()

	var v qcode.Operand
	switch p.tok {
	case token.IDENT:
		ord := p.identOrdinal()
		if !isChainStart(p.tok) {
			return lvalue{kind: lvIdent, ordinal: ord, ellipsis: ell, line: line}
		}
		v = p.loadValue(p.b.Resolve(ord), line)
	case token.LPAREN:
		p.advance()
		v = p.parseExpr()
		p.expect(token.RPAREN)
	default:
		p.errorExpected(token.IDENT)
	}

	for {
		switch p.tok {
		case token.DOT:
			p.advance()
			ord := p.identOrdinal()
			if !isChainStart(p.tok) {
				return lvalue{kind: lvAttr, obj: v, key: qcode.IdentOperand(ord), ellipsis: ell, line: line}
			}
			v = p.b.EmitToValue(qcode.GETATTR, v, qcode.IdentOperand(ord), line)
		case token.LBRACK:
			p.advance()
			idx := p.parseExpr()
			p.expect(token.RBRACK)
			if !isChainStart(p.tok) {
				return lvalue{kind: lvIndex, obj: v, key: idx, ellipsis: ell, line: line}
			}
			v = p.b.EmitToValue(qcode.GETINDEX, v, idx, line)
		case token.LPAREN:
			v = p.parseCall(v, p.line())
		case token.SAFEDOT:
			p.advance()
			ord := p.identOrdinal()
			v = p.parseSafeAttr(v, ord, line)
		case token.ARROW:
			p.advance()
			ord := p.identOrdinal()
			method := p.b.EmitToValue(qcode.GETATTR, v, qcode.IdentOperand(ord), line)
			v = p.b.EmitToValue(qcode.FBIND, method, v, line)
		default:
			return lvalue{kind: lvValue, obj: v, ellipsis: ell, line: line}
		}
	}
}

// Load reads the target's current value.
func (t lvalue) Load(p *parser) qcode.Operand {
	switch t.kind {
	case lvIdent:
		return p.loadValue(p.b.Resolve(t.ordinal), t.line)
	case lvAttr:
		return p.b.EmitToValue(qcode.GETATTR, t.obj, t.key, t.line)
	case lvIndex:
		return p.b.EmitToValue(qcode.GETINDEX, t.obj, t.key, t.line)
	default:
		return t.obj
	}
}

// Store writes value into the target unconditionally (no retarget
// optimization); used by multi-target assignment where value is already a
// materialized temp.
func (t lvalue) Store(p *parser, value qcode.Operand) {
	switch t.kind {
	case lvIdent:
		dst := p.b.ResolveStore(t.ordinal)
		switch dst.Kind {
		case qcode.Public:
			p.b.Emit(qcode.Instr{Op: qcode.SETPUBLIC, Dst: dst, Src1: value, Line: t.line})
			return
		case qcode.Exhale, qcode.Inhale:
			v := value
			if !v.IsRegisterLike() {
				tmp := p.b.AllocTemp()
				p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: tmp, Src1: value, Line: t.line})
				v = tmp
			}
			p.b.Emit(qcode.Instr{Op: qcode.SETBIND, Dst: v, Src1: dst, Line: t.line})
			return
		}
		p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: dst, Src1: value, Line: t.line})
	case lvAttr:
		p.b.Emit(qcode.Instr{Op: qcode.SETATTR, Dst: t.obj, Src1: t.key, Src2: value, Line: t.line})
	case lvIndex:
		p.b.Emit(qcode.Instr{Op: qcode.SETINDEX, Dst: t.obj, Src1: t.key, Src2: value, Line: t.line})
	}
}

// StoreResult is Store, but for a register-like identifier target it prefers
// retargeting the pending instruction's destination (via Capture) over a
// separate move, when value is still the live pending value (§4.3
// "Assignment semantics").
func (t lvalue) StoreResult(p *parser, value qcode.Operand) {
	if t.kind == lvIdent {
		dst := p.b.ResolveStore(t.ordinal)
		if dst.Kind == qcode.Local || dst.Kind == qcode.Temp {
			if p.b.CaptureInto(dst, value) {
				return
			}
			p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: dst, Src1: value, Line: t.line})
			return
		}
	}
	t.Store(p, value)
}
