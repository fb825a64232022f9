package parser

import (
	"github.com/rill-lang/rillc/lang/qbuild"
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/scope"
	"github.com/rill-lang/rillc/lang/token"
)

// parseStmt dispatches on the current token to one statement form (§4.5
// "Statement grammar").
func (p *parser) parseStmt() {
	switch p.tok {
	case token.IF:
		p.parseIf()
	case token.WHILE:
		p.parseWhile()
	case token.FOR:
		p.parseFor()
	case token.FUNCTION:
		p.parseFunctionStmt()
	case token.PUBLIC:
		p.parsePublic()
	case token.DELETE:
		p.parseDelete()
	case token.RETURN:
		p.parseReturn()
	case token.BREAK:
		p.parseBreak()
	case token.CONTINUE:
		p.parseContinue()
	case token.TRY:
		p.parseTry()
	case token.WITH:
		p.parseWith()
	case token.DO:
		p.parseDo()
	case token.END_KW, token.ELSE, token.ELSEIF, token.CATCH:
		p.error("stray " + p.tok.String())
	default:
		p.parseAssignOrExprStmt()
	}
}

func (p *parser) parseDo() {
	p.advance()
	p.skipNewlines()
	p.parseBlock(token.END_KW)
	p.expect(token.END_KW)
}

// parseIf parses `if cond block (elseif cond block)* (else block)? end`.
func (p *parser) parseIf() {
	p.advance()
	line := p.line()
	end := p.b.NewLabel()
	p.parseIfBranch(end, line)
	p.expect(token.END_KW)
	p.b.SetLabel(end)
}

func (p *parser) parseIfBranch(end uint32, line int32) {
	cond := p.parseExpr()
	p.accept(token.THEN)
	p.skipNewlines()
	next := p.b.NewLabel()
	p.b.JumpIfFalse(cond, next, line)
	p.parseBlock(token.ELSEIF, token.ELSE, token.END_KW)
	p.b.Jump(end, p.line())
	p.b.SetLabel(next)
	switch p.tok {
	case token.ELSEIF:
		p.advance()
		p.parseIfBranch(end, p.line())
	case token.ELSE:
		p.advance()
		p.skipNewlines()
		p.parseBlock(token.END_KW)
	}
}

// parseWhile parses `while cond block end`.
func (p *parser) parseWhile() {
	p.advance()
	line := p.line()
	top := p.b.NewLabel()
	end := p.b.NewLabel()
	p.b.SetLabel(top)
	cond := p.parseExpr()
	p.skipNewlines()
	p.b.JumpIfFalse(cond, end, line)
	p.b.PushLoop(end, top)
	p.parseBlock(token.END_KW)
	p.b.PopLoop()
	p.expect(token.END_KW)
	p.b.Jump(top, p.line())
	p.b.SetLabel(end)
}

// parseFor parses both for-loop forms: the numeric `for i = start, <relop>
// stop[, step] ... end` and the iterator `for v1[, v2] in expr ... end`.
func (p *parser) parseFor() {
	p.advance()
	line := p.line()
	first := p.identOrdinal()
	if p.tok == token.ASSIGN {
		p.parseNumericFor(first, line)
		return
	}
	p.parseIteratorFor(first, line)
}

// parseNumericFor parses `for i = start, cond-op end [, step] ... end` (§4.3):
// the comparison operator is mandatory and taken from the same relational
// token set `a < b` uses (eq, ne, lt, le, gt, ge), mirroring
// original_source/src/uparse.c's eatforblk, which rejects a numeric for
// missing its relop with SYNTAX_NOFOROP rather than defaulting one in.
func (p *parser) parseNumericFor(ordinal uint32, line int32) {
	p.expect(token.ASSIGN)
	start := p.parseExpr()
	i := p.b.DeclareLocal(ordinal)
	if !p.b.CaptureInto(i, start) {
		p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: i, Src1: start, Line: line})
	}
	p.expect(token.COMMA)
	if !p.tok.IsRelational() {
		p.error("for loop needs a comparison operator before its end value")
	}
	relOp := p.tok
	p.advance()
	stop := p.forceTemp(p.parseExpr(), p.line())
	step := qcode.IntOperand(1)
	if p.accept(token.COMMA) {
		step = p.forceTemp(p.parseExpr(), p.line())
	}
	p.skipNewlines()

	top := p.b.NewLabel()
	cont := p.b.NewLabel()
	end := p.b.NewLabel()
	p.b.SetLabel(top)
	cond := p.emitBinOp(relOp, i, stop, line)
	p.b.JumpIfFalse(cond, end, line)
	p.b.PushLoop(end, cont)
	p.parseBlock(token.END_KW)
	p.b.PopLoop()
	p.expect(token.END_KW)
	p.b.SetLabel(cont)
	inc := p.b.BinaryOp(qcode.ADD, i, step, p.line())
	if !p.b.CaptureInto(i, inc) {
		p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: i, Src1: inc, Line: p.line()})
	}
	p.b.Jump(top, p.line())
	p.b.SetLabel(end)
}

func (p *parser) parseIteratorFor(first uint32, line int32) {
	loopVars := []uint32{first}
	for p.accept(token.COMMA) {
		loopVars = append(loopVars, p.identOrdinal())
	}
	p.expect(token.IN)
	iterable := p.forceTemp(p.parseExpr(), p.line())
	p.skipNewlines()

	p.b.PushFrame(line)
	p.b.Emit(qcode.Instr{Op: qcode.ITERINIT, Dst: iterable, Line: line})
	top := p.b.NewLabel()
	cont := p.b.NewLabel()
	end := p.b.NewLabel()
	p.b.SetLabel(top)
	hasMore := p.b.AllocTemp()
	p.b.Emit(qcode.Instr{Op: qcode.ITERNEXT, Dst: hasMore, Src1: iterable, Line: line})
	p.b.JumpIfFalse(hasMore, end, line)
	for i, ord := range loopVars {
		lv := p.b.DeclareLocal(ord)
		p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: lv, Src1: qcode.StackOperand(uint32(i), false), Line: line})
	}
	p.b.PushLoop(end, cont)
	p.parseBlock(token.END_KW)
	p.b.PopLoop()
	p.expect(token.END_KW)
	p.b.SetLabel(cont)
	p.b.Jump(top, p.line())
	p.b.SetLabel(end)
	p.b.PopFrame(line)
}

// parseTry parses `try block catch [name] block end`.
func (p *parser) parseTry() {
	p.advance()
	line := p.line()
	handler := p.b.NewLabel()
	end := p.b.NewLabel()
	p.b.Emit(qcode.Instr{Op: qcode.XPUSH, Dst: qcode.LabelOperand(handler), Line: line})
	p.skipNewlines()
	p.parseBlock(token.CATCH)
	p.b.Emit(qcode.Instr{Op: qcode.XPOP, Line: p.line()})
	p.b.Jump(end, p.line())

	p.expect(token.CATCH)
	p.b.SetLabel(handler)
	if p.tok == token.IDENT {
		ord := p.identOrdinal()
		errLocal := p.b.DeclareLocal(ord)
		p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: errLocal, Src1: qcode.StackOperand(0, false), Line: p.line()})
	}
	p.skipNewlines()
	p.parseBlock(token.END_KW)
	p.expect(token.END_KW)
	p.b.SetLabel(end)
}

// parseWith parses `with expr [name] block end`, entering and exiting the
// runtime's with-scope (resource management) protocol.
func (p *parser) parseWith() {
	p.advance()
	line := p.line()
	val := p.parseExpr()
	p.b.Emit(qcode.Instr{Op: qcode.WPUSHVAL, Dst: val, Line: line})
	if p.tok == token.IDENT {
		ord := p.identOrdinal()
		lv := p.b.DeclareLocal(ord)
		p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: lv, Src1: qcode.WithSinkOperand(), Line: line})
	}
	p.b.EnterWith(line)
	p.skipNewlines()
	p.parseBlock(token.END_KW)
	p.expect(token.END_KW)
	p.b.ExitWith(p.line())
}

// parseFunctionStmt parses `function name(...) ... end`, resolving name the
// way an assignment target is resolved (an existing binding in the scope book
// is reused; an unknown name becomes a new local) and binding it to the
// produced closure.
func (p *parser) parseFunctionStmt() {
	line := p.line()
	p.advance()
	ord := p.identOrdinal()
	// Declare the name before the body is parsed so the function can refer
	// to itself; a self-reference from inside the body captures the slot as
	// a binding the same way any other upvalue does.
	p.b.ResolveStore(ord)
	fn := p.parseFunctionRest(line)
	lvalue{kind: lvIdent, ordinal: ord, line: line}.StoreResult(p, fn)
}

// parsePublic parses `public name[, name...] [= expr]` (a module-level public
// declaration; an initializer is accepted only with a single name) or
// `public function name(...) ... end`.
func (p *parser) parsePublic() {
	p.advance()
	line := p.line()
	if p.tok == token.FUNCTION {
		p.advance()
		dst := p.b.DeclarePublic(p.publicName())
		fn := p.parseFunctionRest(line)
		p.b.Emit(qcode.Instr{Op: qcode.SETPUBLIC, Dst: dst, Src1: fn, Line: line})
		return
	}
	ords := []uint32{p.publicName()}
	for p.accept(token.COMMA) {
		ords = append(ords, p.publicName())
	}
	if p.tok == token.ASSIGN {
		if len(ords) > 1 {
			p.error("public with an initializer takes a single name")
		}
		p.advance()
		dst := p.b.DeclarePublic(ords[0])
		val := p.parseExpr()
		p.b.Emit(qcode.Instr{Op: qcode.SETPUBLIC, Dst: dst, Src1: val, Line: line})
		return
	}
	for _, ord := range ords {
		dst := p.b.DeclarePublic(ord)
		p.b.Emit(qcode.Instr{Op: qcode.SETPUBLIC, Dst: dst, Src1: qcode.NullOperand(), Line: line})
	}
}

// publicName consumes one name in a `public` statement, rejecting a name
// that is already a local (or captured local) of the current function.
func (p *parser) publicName() uint32 {
	ord := p.identOrdinal()
	if e, ok := p.b.Book().Lookup(ord); ok {
		switch e.Kind {
		case scope.Local, scope.Exhale, scope.Inhale:
			p.error("cannot declare a local name public")
		}
	}
	return ord
}

// parseDelete parses `delete target`, lowering to DELATTR/DELINDEX/DELPUBLIC
// depending on the target's shape.
func (p *parser) parseDelete() {
	p.advance()
	line := p.line()
	t := p.parseLvalue()
	switch t.kind {
	case lvAttr:
		p.b.Emit(qcode.Instr{Op: qcode.DELATTR, Dst: t.obj, Src1: t.key, Line: line})
	case lvIndex:
		p.b.Emit(qcode.Instr{Op: qcode.DELINDEX, Dst: t.obj, Src1: t.key, Line: line})
	case lvIdent:
		dst := p.b.Resolve(t.ordinal)
		if dst.Kind != qcode.Public {
			p.error("delete target must be an attribute, index or public name")
		}
		p.b.Emit(qcode.Instr{Op: qcode.DELPUBLIC, Dst: dst, Line: line})
	default:
		p.error("invalid delete target")
	}
}

// parseReturn parses `return`, `return expr`, or `return e1, e2, ...`.
func (p *parser) parseReturn() {
	p.advance()
	line := p.line()
	if isStmtEnd(p.tok) {
		p.b.Emit(qcode.Instr{Op: qcode.RETNONE, Line: line})
		return
	}
	first := p.parseExpr()
	if p.tok != token.COMMA {
		p.b.Emit(qcode.Instr{Op: qcode.RETONE, Dst: first, Line: line})
		return
	}
	p.b.PushFrame(line)
	p.b.PushStack(qcode.MOVE, first, qcode.NoOperand(), line, 0)
	slot := uint32(1)
	for p.accept(token.COMMA) {
		p.skipNewlines()
		v := p.parseExpr()
		p.b.PushStack(qcode.MOVE, v, qcode.NoOperand(), p.line(), slot)
		slot++
	}
	p.b.Emit(qcode.Instr{Op: qcode.RETSTK, Line: p.line()})
}

func isStmtEnd(t token.Tag) bool {
	switch t {
	case token.NEWLINE, token.SEMI, token.END, token.END_KW, token.ELSE, token.ELSEIF, token.CATCH:
		return true
	}
	return false
}

func (p *parser) parseBreak() {
	line := p.line()
	p.advance()
	if !p.b.Break(line) {
		p.error("break outside of a loop")
	}
}

func (p *parser) parseContinue() {
	line := p.line()
	p.advance()
	if !p.b.Continue(line) {
		p.error("continue outside of a loop")
	}
}

// parseAssignOrExprStmt parses the general statement form: one or more
// comma-separated assignment targets followed by `=`/a compound-assignment
// operator and right-hand-side expressions, or, failing that, a single bare
// expression statement.
func (p *parser) parseAssignOrExprStmt() {
	line := p.line()
	first := p.parseLvalue()
	targets := []lvalue{first}
	for p.tok == token.COMMA {
		p.advance()
		p.skipNewlines()
		targets = append(targets, p.parseLvalue())
	}

	switch {
	case p.tok == token.ASSIGN:
		p.advance()
		p.skipNewlines()
		p.parseAssignment(targets, line)
	case p.tok.IsAssignOp():
		if len(targets) != 1 || targets[0].ellipsis || targets[0].kind == lvValue {
			p.error("compound assignment requires a single assignable target")
		}
		opTok := p.tok
		p.advance()
		p.skipNewlines()
		p.parseCompoundAssign(targets[0], opTok, line)
	default:
		if len(targets) != 1 {
			p.error("expected assignment")
		}
		v := targets[0].Load(p)
		if p.extendMode && p.b.FuncDepth() == 1 {
			p.b.PushStack(qcode.MOVE, v, qcode.NoOperand(), line, 0)
			p.b.SetState(qbuild.StateStack)
		} else {
			p.b.KillValue()
		}
	}
}

// parseAssignment parses the right-hand side of `=` and distributes its
// values across targets, either via the single-target retarget optimization
// or the general multi-target/ellipsis path.
func (p *parser) parseAssignment(targets []lvalue, line int32) {
	for _, t := range targets {
		if t.kind == lvValue {
			p.error("invalid assignment target")
		}
	}
	if (len(targets) > 1 || targets[0].ellipsis) && p.rhsIsBareCall() {
		p.parseMultiReturnAssign(targets, line)
		return
	}
	first := p.parseExpr()
	if len(targets) == 1 && !targets[0].ellipsis && p.tok != token.COMMA {
		targets[0].StoreResult(p, first)
		return
	}
	vals := []qcode.Operand{p.forceTemp(first, line)}
	for p.accept(token.COMMA) {
		p.skipNewlines()
		v := p.parseExpr()
		vals = append(vals, p.forceTemp(v, p.line()))
	}
	p.parseMultiAssign(targets, vals, line)
}

// parseMultiReturnAssign handles `targets... = <call>` where the call is the
// sole right-hand side expression, confirmed by rhsIsBareCall to be in tail
// position: instead of collapsing the call's result to one value, it reads
// back as many return values as the targets need directly off the call's
// still-open frame-stack, guarded by a runtime stack-count assertion (§4.3,
// §8 "assigning from a tuple of exactly three values ... fails with a
// runtime stack-count assertion").
func (p *parser) parseMultiReturnAssign(targets []lvalue, line int32) {
	p.parsePostfixForMultiReturn()

	ellIdx := -1
	for i, t := range targets {
		if t.ellipsis {
			if ellIdx >= 0 {
				p.error("at most one ellipsis target is allowed")
			}
			ellIdx = i
		}
	}

	if ellIdx < 0 {
		p.b.Emit(qcode.Instr{Op: qcode.ASSERTEQ, Dst: qcode.UImmOperand(uint32(len(targets))), Line: line})
		for i, t := range targets {
			tmp := p.b.AllocTemp()
			p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: tmp, Src1: qcode.StackOperand(uint32(i), false), Line: line})
			t.StoreResult(p, tmp)
		}
		p.b.PopFrame(line)
		return
	}

	before := ellIdx
	after := len(targets) - ellIdx - 1
	p.b.Emit(qcode.Instr{Op: qcode.ASSERTGE, Dst: qcode.UImmOperand(uint32(before + after)), Line: line})
	for i := 0; i < before; i++ {
		tmp := p.b.AllocTemp()
		p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: tmp, Src1: qcode.StackOperand(uint32(i), false), Line: line})
		targets[i].StoreResult(p, tmp)
	}
	listVal := p.b.EmitToValue(qcode.MLISTP, qcode.UImmOperand(uint32(before)), qcode.UImmOperand(uint32(after)), line)
	targets[ellIdx].StoreResult(p, listVal)
	for i := 0; i < after; i++ {
		tmp := p.b.AllocTemp()
		p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: tmp, Src1: qcode.StackOperand(uint32(after-1-i), true), Line: line})
		targets[ellIdx+1+i].StoreResult(p, tmp)
	}
	p.b.PopFrame(line)
}

// parseMultiAssign implements §4.3 "Multi-target assignment": values are
// zipped across targets in order, with at most one ellipsis-marked target
// collecting every value not claimed by a plain target into a new list.
func (p *parser) parseMultiAssign(targets []lvalue, vals []qcode.Operand, line int32) {
	ellIdx := -1
	for i, t := range targets {
		if t.ellipsis {
			if ellIdx >= 0 {
				p.error("at most one ellipsis target is allowed")
			}
			ellIdx = i
		}
	}
	if ellIdx < 0 {
		if len(targets) != len(vals) {
			p.error("assignment count mismatch")
		}
		for i, t := range targets {
			t.StoreResult(p, vals[i])
		}
		return
	}
	before := ellIdx
	after := len(targets) - ellIdx - 1
	if len(vals) < before+after {
		p.error("not enough values for ellipsis assignment")
	}
	for i := 0; i < before; i++ {
		targets[i].StoreResult(p, vals[i])
	}
	restCount := len(vals) - before - after
	p.b.PushFrame(line)
	for i := 0; i < restCount; i++ {
		p.b.PushStack(qcode.MOVE, vals[before+i], qcode.NoOperand(), line, uint32(i))
	}
	listVal := p.b.EmitToValue(qcode.MLISTP, qcode.UImmOperand(0), qcode.UImmOperand(0), line)
	p.b.PopFrame(line)
	targets[ellIdx].StoreResult(p, listVal)
	for i := 0; i < after; i++ {
		targets[ellIdx+1+i].StoreResult(p, vals[before+restCount+i])
	}
}

var compoundOps = map[token.Tag]qcode.Opcode{
	token.PLUS_ASSIGN:       qcode.ADD,
	token.MINUS_ASSIGN:      qcode.SUB,
	token.STAR_ASSIGN:       qcode.MUL,
	token.SLASH_ASSIGN:      qcode.DIV,
	token.SLASHSLASH_ASSIGN: qcode.IDIV,
	token.PERCENT_ASSIGN:    qcode.MOD,
	token.AMP_ASSIGN:        qcode.AND,
	token.PIPE_ASSIGN:       qcode.OR,
	token.CARET_ASSIGN:      qcode.XOR,
	token.SHL_ASSIGN:        qcode.SHL,
	token.SHR_ASSIGN:        qcode.SHR,
	token.CONCAT_ASSIGN:     qcode.CONCAT,
}

func (p *parser) parseCompoundAssign(t lvalue, opTok token.Tag, line int32) {
	cur := t.Load(p)
	rhs := p.parseExpr()
	result := p.b.BinaryOp(compoundOps[opTok], cur, rhs, line)
	t.StoreResult(p, result)
}

// forceTemp materializes v into a fresh temp register immediately (used
// whenever a value must survive past further instruction emission, e.g. the
// values of a multi-target assignment's right-hand side, which must all be
// evaluated before any target is stored to).
func (p *parser) forceTemp(v qcode.Operand, line int32) qcode.Operand {
	if held, ok := p.b.HoldValue(v); ok {
		return held
	}
	tmp := p.b.AllocTemp()
	p.b.Emit(qcode.Instr{Op: qcode.MOVE, Dst: tmp, Src1: v, Line: line})
	return tmp
}
