package parser

import (
	"github.com/rill-lang/rillc/lang/qbuild"
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/token"
)

// precedence levels for the binary operator table, lowest to highest,
// mirroring the grouping the original language's operators fall into (logical,
// relational, bitwise, shift, concat, additive, multiplicative).
const (
	precOr = iota + 1
	precAnd
	precRel
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precConcat
	precAdd
	precMul
)

type binOpInfo struct {
	prec       int
	op         qcode.Opcode
	rightAssoc bool
}

var binOps = map[token.Tag]binOpInfo{
	token.OR:         {prec: precOr},
	token.AND:        {prec: precAnd},
	token.EQ:         {prec: precRel, op: qcode.CEQ},
	token.NE:         {prec: precRel, op: qcode.CEQ},
	token.LT:         {prec: precRel, op: qcode.CLT},
	token.LE:         {prec: precRel, op: qcode.CLT},
	token.GT:         {prec: precRel, op: qcode.CLT},
	token.GE:         {prec: precRel, op: qcode.CLT},
	token.PIPE:       {prec: precBitOr, op: qcode.OR},
	token.CARET:      {prec: precBitXor, op: qcode.XOR},
	token.AMP:        {prec: precBitAnd, op: qcode.AND},
	token.SHL:        {prec: precShift, op: qcode.SHL},
	token.SHR:        {prec: precShift, op: qcode.SHR},
	token.CONCAT:     {prec: precConcat, op: qcode.CONCAT, rightAssoc: true},
	token.PLUS:       {prec: precAdd, op: qcode.ADD},
	token.MINUS:      {prec: precAdd, op: qcode.SUB},
	token.STAR:       {prec: precMul, op: qcode.MUL},
	token.SLASH:      {prec: precMul, op: qcode.DIV},
	token.SLASHSLASH: {prec: precMul, op: qcode.IDIV},
	token.PERCENT:    {prec: precMul, op: qcode.MOD},
}

// parseExpr parses a full expression at the lowest precedence (§4.5
// "Expression grammar").
func (p *parser) parseExpr() qcode.Operand {
	p.enter()
	defer p.leave()
	return p.parseBinExpr(1)
}

func (p *parser) parseBinExpr(minPrec int) qcode.Operand {
	left := p.parseUnary()
	for {
		info, ok := binOps[p.tok]
		if !ok || info.prec < minPrec {
			return left
		}
		opTok := p.tok
		line := p.line()
		p.advance()
		nextMin := info.prec + 1
		if info.rightAssoc {
			nextMin = info.prec
		}
		switch {
		case opTok == token.AND:
			left = p.parseLogicalAnd(left, nextMin, line)
		case opTok == token.OR:
			left = p.parseLogicalOr(left, nextMin, line)
		case opTok.IsRelational():
			left = p.parseRelChain(left, opTok, nextMin, line)
		default:
			right := p.parseBinExpr(nextMin)
			left = p.emitBinOp(opTok, left, right, line)
		}
	}
}

// parseRelChain implements §4.5's "relational operators are collected at one
// precedence level and emitted as an AND-chain": `a < b < c` compiles as
// `a < b and b < c` with `b` evaluated exactly once, not as `(a < b) < c`.
// left and the first operator/line have already been consumed by the caller.
// Each further link is parsed only after the previous comparison's
// short-circuit jump is in place, so — exactly as with a genuine `and`
// chain — an operand past a link that already failed is never evaluated.
func (p *parser) parseRelChain(left qcode.Operand, firstOp token.Tag, nextMin int, firstLine int32) qcode.Operand {
	mid := p.parseBinExpr(nextMin)
	r := p.b.AllocTemp()
	first := p.emitBinOp(firstOp, left, mid, firstLine)
	p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: r, Src1: first, Line: firstLine})
	end := p.b.NewLabel()
	p.b.JumpIfFalse(r, end, firstLine)
	for p.tok.IsRelational() {
		opTok := p.tok
		line := p.line()
		p.advance()
		right := p.parseBinExpr(binOps[opTok].prec + 1)
		cmp := p.emitBinOp(opTok, mid, right, line)
		p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: r, Src1: cmp, Line: line})
		p.b.JumpIfFalse(r, end, line)
		mid = right
	}
	p.b.SetLabel(end)
	p.b.SetState(qbuild.StateNone)
	return r
}

// emitBinOp lowers a single relational/arithmetic/bitwise operator, expanding
// NE/LE/GT/GE in terms of CEQ/CLT per the opcode set's comparison design.
func (p *parser) emitBinOp(opTok token.Tag, left, right qcode.Operand, line int32) qcode.Operand {
	switch opTok {
	case token.NE:
		return p.b.UnaryOp(qcode.LNOT, p.b.BinaryOp(qcode.CEQ, left, right, line), line)
	case token.GT:
		return p.b.BinaryOp(qcode.CLT, right, left, line)
	case token.LE:
		return p.b.UnaryOp(qcode.LNOT, p.b.BinaryOp(qcode.CLT, right, left, line), line)
	case token.GE:
		return p.b.UnaryOp(qcode.LNOT, p.b.BinaryOp(qcode.CLT, left, right, line), line)
	}
	return p.b.BinaryOp(binOps[opTok].op, left, right, line)
}

// parseLogicalAnd/Or implement short-circuit evaluation: the result lives in
// a dedicated register so the right side can be skipped entirely without
// disturbing the value already produced by the left side.
func (p *parser) parseLogicalAnd(left qcode.Operand, nextMin int, line int32) qcode.Operand {
	r := p.b.AllocTemp()
	p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: r, Src1: left, Line: line})
	end := p.b.NewLabel()
	p.b.JumpIfFalse(r, end, line)
	right := p.parseBinExpr(nextMin)
	p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: r, Src1: right, Line: line})
	p.b.SetLabel(end)
	p.b.SetState(qbuild.StateNone)
	return r
}

func (p *parser) parseLogicalOr(left qcode.Operand, nextMin int, line int32) qcode.Operand {
	r := p.b.AllocTemp()
	p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: r, Src1: left, Line: line})
	end := p.b.NewLabel()
	p.b.JumpIfTrue(r, end, line)
	right := p.parseBinExpr(nextMin)
	p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: r, Src1: right, Line: line})
	p.b.SetLabel(end)
	p.b.SetState(qbuild.StateNone)
	return r
}

func (p *parser) parseUnary() qcode.Operand {
	line := p.line()
	switch p.tok {
	case token.NOT:
		p.advance()
		return p.b.UnaryOp(qcode.LNOT, p.parseUnary(), line)
	case token.MINUS:
		p.advance()
		return p.b.UnaryOp(qcode.UMINUS, p.parseUnary(), line)
	case token.PLUS:
		p.advance()
		return p.b.UnaryOp(qcode.UPLUS, p.parseUnary(), line)
	case token.TILDE:
		p.advance()
		return p.b.UnaryOp(qcode.BNOT, p.parseUnary(), line)
	}
	return p.parsePostfix()
}

// loadValue turns a resolved identifier operand into a usable value,
// materializing a GETPUBLIC for public slots and a GETBIND (the cell
// dereference) for exhale/inhale slots; temps and locals are usable as-is.
func (p *parser) loadValue(op qcode.Operand, line int32) qcode.Operand {
	switch op.Kind {
	case qcode.Public:
		return p.b.EmitToValue(qcode.GETPUBLIC, op, qcode.NoOperand(), line)
	case qcode.Exhale, qcode.Inhale:
		return p.b.EmitToValue(qcode.GETBIND, op, qcode.NoOperand(), line)
	}
	return op
}

// parsePostfix parses a primary expression followed by any run of call,
// index, attribute, safe-attribute and method-bind suffixes.
func (p *parser) parsePostfix() qcode.Operand {
	v := p.parsePrimary()
	for {
		line := p.line()
		switch p.tok {
		case token.LPAREN:
			v = p.parseCall(v, line)
		case token.DOT:
			p.advance()
			ord := p.identOrdinal()
			v = p.b.EmitToValue(qcode.GETATTR, v, qcode.IdentOperand(ord), line)
		case token.SAFEDOT:
			p.advance()
			ord := p.identOrdinal()
			v = p.parseSafeAttr(v, ord, line)
		case token.LBRACK:
			p.advance()
			idx := p.parseExpr()
			p.expect(token.RBRACK)
			v = p.b.EmitToValue(qcode.GETINDEX, v, idx, line)
		case token.ARROW:
			p.advance()
			ord := p.identOrdinal()
			method := p.b.EmitToValue(qcode.GETATTR, v, qcode.IdentOperand(ord), line)
			v = p.b.EmitToValue(qcode.FBIND, method, v, line)
		default:
			return v
		}
	}
}

// parseSafeAttr lowers `obj?.attr`: if obj is null, the whole chain short
// circuits to null without evaluating the attribute access.
func (p *parser) parseSafeAttr(obj qcode.Operand, ord uint32, line int32) qcode.Operand {
	r := p.b.AllocTemp()
	p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: r, Src1: qcode.NullOperand(), Line: line})
	isNull := p.b.BinaryOp(qcode.CEQ, obj, qcode.NullOperand(), line)
	end := p.b.NewLabel()
	p.b.JumpIfTrue(isNull, end, line)
	val := p.b.EmitToValue(qcode.GETATTR, obj, qcode.IdentOperand(ord), line)
	p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: r, Src1: val, Line: line})
	p.b.SetLabel(end)
	p.b.SetState(qbuild.StateNone)
	return r
}

// parseCallArgs parses a call's argument list and emits the FCALL/DCALL
// itself, leaving the callee's frame-stack open with its return values on
// it. Callers decide how to drain that frame: parseCall collapses it to one
// value for ordinary expression contexts, parseCallOpen leaves it for the
// caller to read back multiple values from (§4.3 multi-target assignment).
func (p *parser) parseCallArgs(callee qcode.Operand, line int32) {
	p.advance() // consume '('
	p.b.PushFrame(line)
	slot := uint32(0)
	spread := false
	if p.tok != token.RPAREN {
		for {
			if p.tok == token.ELLIPSIS {
				p.advance()
				it := p.parseExpr()
				p.b.Emit(qcode.Instr{Op: qcode.SPREAD, Dst: it, Line: p.line()})
				spread = true
			} else {
				arg := p.parseExpr()
				p.b.PushStack(qcode.MOVE, arg, qcode.NoOperand(), p.line(), slot)
				slot++
			}
			if !p.accept(token.COMMA) {
				break
			}
			p.skipNewlines()
		}
	}
	p.expect(token.RPAREN)
	callOp := qcode.FCALL
	if spread {
		callOp = qcode.DCALL
	}
	p.b.Emit(qcode.Instr{Op: callOp, Dst: callee, Line: line})
}

// parseCall lowers a call suffix: parseCallArgs pushes a frame-stack,
// evaluates each argument (spreading any `...expr` argument with SPREAD) and
// issues the call; parseCall then reads back the first result into a fresh
// temp and pops the frame.
func (p *parser) parseCall(callee qcode.Operand, line int32) qcode.Operand {
	p.parseCallArgs(callee, line)
	result := p.b.AllocTemp()
	p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: result, Src1: qcode.StackOperand(0, false), Line: line})
	p.b.SetState(qbuild.StateHold)
	p.b.PopFrame(line)
	return result
}

// parseCallOpen parses a call exactly like parseCall, but leaves its
// frame-stack open (value-state FuncStack) instead of collapsing it to a
// single value. Used only where the grammar guarantees this call is in tail
// position with nothing consuming just its first return value (see
// rhsIsBareCall/parsePostfixForMultiReturn in stmt.go's multi-target
// assignment path); the caller is responsible for the matching PopFrame.
func (p *parser) parseCallOpen(callee qcode.Operand, line int32) {
	p.parseCallArgs(callee, line)
	p.b.SetState(qbuild.StateFuncStack)
}

// peekAfterCall returns the tag of the token following the call whose
// opening '(' is the current token, without consuming anything. Used to
// decide whether that call is the last suffix in a postfix chain.
func (p *parser) peekAfterCall() token.Tag {
	depth := 0
	for i := 0; ; i++ {
		switch p.peek(i) {
		case token.END:
			return token.END
		case token.LPAREN:
			depth++
		case token.RPAREN:
			depth--
			if depth == 0 {
				return p.peek(i + 1)
			}
		}
	}
}

// rhsIsBareCall reports whether the upcoming expression, starting at the
// current token, is syntactically a single postfix chain ending in a call
// with nothing following before the statement end. This is
// the only shape §4.3 allows multiple return values to be read back from
// directly, instead of collapsing the call to its first result.
func (p *parser) rhsIsBareCall() bool {
	switch p.tok {
	case token.IDENT, token.LPAREN:
	default:
		return false
	}
	return p.lastPostfixIsCall()
}

// lastPostfixIsCall scans the upcoming postfix chain by token tag only,
// reporting whether it ends in a call. It mirrors parsePostfix's suffix
// grammar exactly but never consumes any tokens.
func (p *parser) lastPostfixIsCall() bool {
	idx := 0
	switch p.peek(idx) {
	case token.IDENT:
		idx++
	case token.LPAREN:
		idx++
		depth := 1
		for depth > 0 {
			switch p.peek(idx) {
			case token.END:
				return false
			case token.LPAREN:
				depth++
			case token.RPAREN:
				depth--
			}
			idx++
		}
	default:
		return false
	}
	lastWasCall := false
	for {
		switch p.peek(idx) {
		case token.DOT, token.SAFEDOT, token.ARROW:
			idx++
			if p.peek(idx) != token.IDENT {
				return false
			}
			idx++
			lastWasCall = false
		case token.LBRACK:
			idx++
			depth := 1
			for depth > 0 {
				switch p.peek(idx) {
				case token.END:
					return false
				case token.LBRACK:
					depth++
				case token.RBRACK:
					depth--
				}
				idx++
			}
			lastWasCall = false
		case token.LPAREN:
			idx++
			depth := 1
			for depth > 0 {
				switch p.peek(idx) {
				case token.END:
					return false
				case token.LPAREN:
					depth++
				case token.RPAREN:
					depth--
				}
				idx++
			}
			lastWasCall = true
		default:
			if !lastWasCall {
				return false
			}
			switch p.peek(idx) {
			case token.NEWLINE, token.SEMI, token.END, token.END_KW,
				token.ELSE, token.ELSEIF, token.CATCH:
				return true
			default:
				return false
			}
		}
	}
}

// parsePostfixForMultiReturn parses a postfix chain already confirmed by
// rhsIsBareCall to end in a tail call, leaving that call's return values on
// an open frame-stack (via parseCallOpen) instead of collapsing to one
// value.
func (p *parser) parsePostfixForMultiReturn() {
	v := p.parsePrimary()
	for {
		line := p.line()
		switch p.tok {
		case token.LPAREN:
			if isChainStart(p.peekAfterCall()) {
				v = p.parseCall(v, line)
				continue
			}
			p.parseCallOpen(v, line)
			return
		case token.DOT:
			p.advance()
			ord := p.identOrdinal()
			v = p.b.EmitToValue(qcode.GETATTR, v, qcode.IdentOperand(ord), line)
		case token.SAFEDOT:
			p.advance()
			ord := p.identOrdinal()
			v = p.parseSafeAttr(v, ord, line)
		case token.LBRACK:
			p.advance()
			idx := p.parseExpr()
			p.expect(token.RBRACK)
			v = p.b.EmitToValue(qcode.GETINDEX, v, idx, line)
		case token.ARROW:
			p.advance()
			ord := p.identOrdinal()
			method := p.b.EmitToValue(qcode.GETATTR, v, qcode.IdentOperand(ord), line)
			v = p.b.EmitToValue(qcode.FBIND, method, v, line)
		default:
			// unreachable: rhsIsBareCall guarantees the chain ends in a call.
			return
		}
	}
}

func (p *parser) parsePrimary() qcode.Operand {
	line := p.line()
	switch p.tok {
	case token.INT:
		v := p.val.Int
		p.advance()
		return qcode.IntOperand(v)
	case token.FLOAT:
		v := p.val.Float
		p.advance()
		return qcode.FloatOperand(v)
	case token.STRING:
		ord := p.val.StrOrdinal
		p.advance()
		return qcode.StrOperand(ord)
	case token.TRUE:
		p.advance()
		return qcode.TrueOperand()
	case token.FALSE:
		p.advance()
		return qcode.FalseOperand()
	case token.NULL:
		p.advance()
		return qcode.NullOperand()
	case token.IDENT:
		ord := p.identOrdinal()
		return p.loadValue(p.b.Resolve(ord), line)
	case token.LPAREN:
		p.advance()
		v := p.parseExpr()
		p.expect(token.RPAREN)
		return v
	case token.LBRACK:
		return p.parseListLiteral()
	case token.LBRACE:
		return p.parseDictLiteral()
	case token.FUNCTION:
		return p.parseFunctionLiteral()
	case token.IF:
		return p.parseIfExpr()
	}
	p.errorExpected(token.IDENT)
	return qcode.NoOperand()
}

// parseIfExpr parses the expression form `if cond then expr (elseif cond
// then expr)* else expr end`. Unlike the statement form, the arms are
// single expressions separated by a mandatory `then`, the whole form yields
// a value, and the `else` arm is mandatory (there is no value to produce
// when every condition is false).
func (p *parser) parseIfExpr() qcode.Operand {
	line := p.line()
	p.expect(token.IF)
	r := p.b.AllocTemp()
	end := p.b.NewLabel()
	p.parseIfExprArm(r, end, line)
	p.expect(token.END_KW)
	p.b.SetLabel(end)
	// The selected value is already in r; drop any hold-state left behind
	// by the last arm so a later Capture doesn't look for a pending
	// instruction that was flushed at the join label.
	p.b.SetState(qbuild.StateNone)
	return r
}

func (p *parser) parseIfExprArm(r qcode.Operand, end uint32, line int32) {
	p.enter()
	defer p.leave()
	cond := p.parseExpr()
	next := p.b.NewLabel()
	p.b.JumpIfFalse(cond, next, line)
	p.expect(token.THEN)
	v := p.parseExpr()
	p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: r, Src1: v, Line: p.line()})
	p.b.Jump(end, p.line())
	p.b.SetLabel(next)
	switch p.tok {
	case token.ELSEIF:
		p.advance()
		p.parseIfExprArm(r, end, p.line())
	case token.ELSE:
		p.advance()
		v := p.parseExpr()
		p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: r, Src1: v, Line: p.line()})
	default:
		p.error("inline if requires an else arm")
	}
}

// parseListLiteral lowers `[e1, e2, ...]` into a NEWLIST plus one PushStack
// per element (§4.3 "list/dict construction").
func (p *parser) parseListLiteral() qcode.Operand {
	line := p.line()
	p.expect(token.LBRACK)
	p.b.PushFrame(line)
	slot := uint32(0)
	for p.tok != token.RBRACK {
		if p.tok == token.ELLIPSIS {
			p.advance()
			it := p.parseExpr()
			p.b.Emit(qcode.Instr{Op: qcode.SPREAD, Dst: it, Line: p.line()})
		} else {
			el := p.parseExpr()
			p.b.PushStack(qcode.MOVE, el, qcode.NoOperand(), p.line(), slot)
			slot++
		}
		if !p.accept(token.COMMA) {
			break
		}
		p.skipNewlines()
	}
	p.expect(token.RBRACK)
	result := p.b.EmitToValue(qcode.NEWLIST, qcode.UImmOperand(slot), qcode.NoOperand(), line)
	p.b.PopFrame(line)
	return result
}

// parseDictLiteral lowers `{k1: v1, k2: v2, ...}`; keys are either bare
// identifiers (used as string keys) or bracketed expressions.
func (p *parser) parseDictLiteral() qcode.Operand {
	line := p.line()
	p.expect(token.LBRACE)
	p.b.PushFrame(line)
	slot := uint32(0)
	for {
		p.skipNewlines()
		if p.tok == token.RBRACE {
			break
		}
		var key qcode.Operand
		var val qcode.Operand
		switch p.tok {
		case token.LBRACK:
			p.advance()
			key = p.parseExpr()
			p.expect(token.RBRACK)
			p.expect(token.COLON)
			val = p.parseExpr()
		case token.FUNCTION:
			// `{ function name(...) ... end }` is sugar for
			// `{ name: function(...) ... end }`; the name is mandatory
			// since it is the only thing that can serve as the key.
			fline := p.line()
			p.advance()
			if p.tok != token.IDENT {
				p.error("a function in a table literal must be named")
			}
			key = qcode.StrIdentOperand(p.identOrdinal())
			val = p.parseFunctionRest(fline)
		default:
			ord := p.identOrdinal()
			key = qcode.StrIdentOperand(ord)
			p.expect(token.COLON)
			val = p.parseExpr()
		}
		p.b.PushStack(qcode.MOVE, key, qcode.NoOperand(), p.line(), slot)
		slot++
		p.b.PushStack(qcode.MOVE, val, qcode.NoOperand(), p.line(), slot)
		slot++
		p.skipNewlines()
		if !p.accept(token.COMMA) {
			break
		}
		p.skipNewlines()
	}
	p.expect(token.RBRACE)
	result := p.b.EmitToValue(qcode.NEWDICT, qcode.UImmOperand(slot), qcode.NoOperand(), line)
	p.b.PopFrame(line)
	return result
}

// paramKind classifies one parameter parsed by parseParamSpecs, before the
// callee function's own frame exists to declare it in.
type paramKind int

const (
	paramRequired paramKind = iota
	paramOptional
	paramVararg
)

// paramSpec is one parameter parsed (in the parent's frame) ahead of
// OpenFunction, carrying just enough to declare it once the child frame is
// open; an optional parameter's default value has already been evaluated
// and pushed to the parent's frame-stack by the time this is recorded.
type paramSpec struct {
	kind    paramKind
	ordinal uint32
}

// parseFunctionLiteral parses `function(params) body end`. Per §4.3,
// "Optional arg defaults are evaluated in the parent at the function-make
// site and pushed to the frame-stack; the FMAKE opcode consumes them" — so
// the parameter list's default-value expressions are parsed and pushed
// *before* OpenFunction, while the builder is still in the enclosing
// function, and only the parameter declarations themselves happen inside
// the new frame.
func (p *parser) parseFunctionLiteral() qcode.Operand {
	line := p.line()
	p.expect(token.FUNCTION)
	return p.parseFunctionRest(line)
}

// parseFunctionRest parses everything after the `function` keyword (and the
// optional statement-form name): parameter list, body, `end`. The statement
// and `public function` forms consume the name themselves and join here.
func (p *parser) parseFunctionRest(line int32) qcode.Operand {
	p.expect(token.LPAREN)
	params, frameOpen := p.parseParamSpecs(line)
	idx := p.b.OpenFunction(line)
	p.declareParams(params)
	p.expect(token.RPAREN)
	p.skipNewlines()
	p.parseBlock(token.END_KW)
	p.expect(token.END_KW)
	p.b.CloseFunction()
	result := p.b.EmitToValue(qcode.FMAKE, qcode.FuncOperand(idx), qcode.NoOperand(), line)
	if frameOpen {
		p.b.PopFrame(line)
	}
	return result
}

// parseParamSpecs parses the parameter list's grammar shape (plain name,
// `=default` optional, or a leading `...` vararg collector — per
// lang/parser/lvalue.go's parseLvalue and original_source/src/uparse.c:4253,
// the vararg marker is an ellipsis *prefix*, checked before the name is
// consumed) while still in the enclosing function, evaluating each optional
// parameter's default expression there and pushing it onto a frame-stack
// opened on the first one encountered. It returns the declared parameter
// order and whether a frame-stack was opened (so the caller knows whether to
// pop it after FMAKE).
func (p *parser) parseParamSpecs(line int32) ([]paramSpec, bool) {
	var params []paramSpec
	frameOpen := false
	sawOptional := false
	slot := uint32(0)
	for p.tok == token.IDENT || p.tok == token.ELLIPSIS {
		if p.tok == token.ELLIPSIS {
			p.advance()
			ord := p.identOrdinal()
			params = append(params, paramSpec{kind: paramVararg, ordinal: ord})
			break // the vararg collector must be the last parameter
		}
		ord := p.identOrdinal()
		if p.tok == token.ASSIGN {
			p.advance()
			if !frameOpen {
				p.b.PushFrame(line)
				frameOpen = true
			}
			def := p.parseExpr()
			p.b.PushStack(qcode.MOVE, def, qcode.NoOperand(), p.line(), slot)
			slot++
			sawOptional = true
			params = append(params, paramSpec{kind: paramOptional, ordinal: ord})
		} else {
			if sawOptional {
				p.error("required parameter follows an optional parameter")
			}
			params = append(params, paramSpec{kind: paramRequired, ordinal: ord})
		}
		if !p.accept(token.COMMA) {
			break
		}
	}
	return params, frameOpen
}

// declareParams declares each parsed parameter in the just-opened function,
// in order, so arg_count/optional_arg_count/vararg flags match the
// declaration order the defaults were pushed in.
func (p *parser) declareParams(params []paramSpec) {
	for _, ps := range params {
		switch ps.kind {
		case paramVararg:
			p.b.DeclareVararg(ps.ordinal)
		case paramOptional:
			p.b.DeclareOptionalArg(ps.ordinal)
		default:
			p.b.DeclareArg(ps.ordinal)
		}
	}
}
