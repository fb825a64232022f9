// Package parser implements the recursive-descent parser (§4.5): it walks
// the lexer's token stream directly and drives lang/qbuild to emit Q-code,
// with no separate AST stage in between — the parser *is* the Q-code
// builder's only caller, per the architecture note in SPEC_FULL.md §5.
package parser

import (
	"context"
	"fmt"

	"github.com/rill-lang/rillc/lang/qbuild"
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/scanner"
	"github.com/rill-lang/rillc/lang/token"
)

// maxNestingDepth bounds recursive-descent nesting (expression precedence
// recursion, nested blocks, nested function literals): past this, the
// parser reports the "Syntax-too-deep" error kind (§7) rather than blowing
// the Go call stack.
const maxNestingDepth = 200

// errPanicMode unwinds the recursive descent back to Compile on the first
// error, per §4.5/§7: the parser reports a single error and stops, it does
// not attempt syntactic error recovery.
var errPanicMode = fmt.Errorf("parser: panic mode")

// parser holds all state for compiling one token stream into one qcode.Code.
type parser struct {
	file *token.File

	toks []scanner.TokenAndValue
	pos  int

	tok token.Tag
	val token.Value

	b *qbuild.Builder

	strPool   *token.Pool
	identPool *token.Pool

	errors token.ErrorList
	depth  int

	// extendMode mirrors §4.5's "bare expression ... on the top level,
	// results are left on the frame-stack when the compiler is in 'extend'
	// mode, else discarded" — set when compiling a REPL-style chunk whose
	// final value should be observable by the embedder.
	extendMode bool
}

// Compile parses lex (one file's already-scanned token stream) into a
// qcode.Code. file is used only for error position reporting. The returned
// error, when non-nil, is a token.ErrorList (holding exactly one entry,
// since the parser stops at the first error per §7).
func Compile(file *token.File, lex scanner.LexOut) (*qcode.Code, error) {
	return compile(file, lex, false)
}

// CompileExtend is Compile with "extend" mode enabled (§4.5): a bare
// top-level expression statement's value is left on the frame-stack instead
// of discarded, for REPL-style embedding.
func CompileExtend(file *token.File, lex scanner.LexOut) (*qcode.Code, error) {
	return compile(file, lex, true)
}

func compile(file *token.File, lex scanner.LexOut, extend bool) (code *qcode.Code, err error) {
	p := &parser{
		file:       file,
		toks:       lex.Tokens,
		strPool:    &lex.StringPool,
		identPool:  &lex.IdentPool,
		extendMode: extend,
	}
	p.advance()

	defer func() {
		if r := recover(); r != nil {
			if r != errPanicMode {
				panic(r)
			}
		}
		p.errors.Sort()
		if e := p.errors.Err(); e != nil {
			code, err = nil, e
			return
		}
	}()

	p.b = qbuild.New(lex.FirstLine)
	p.b.OpenFunction(lex.FirstLine)
	p.parseChunk()
	p.b.CloseFunction()

	out := p.b.Code
	finalizePools(out, p.identPool, p.strPool)
	out.IdentPool = *p.identPool
	return out, nil
}

// CompileFiles scans and compiles every file, returning one qcode.Code per
// input file (a nil entry for any file that failed) and an aggregate error
// if any file failed. It is the entry point cmd/rillc's "compile" and
// "disasm" commands drive.
func CompileFiles(ctx context.Context, files ...string) (*token.FileSet, []*qcode.Code, error) {
	fs, lexOuts, serr := scanner.ScanFiles(ctx, files...)
	if serr != nil {
		return fs, nil, serr
	}

	var el token.ErrorList
	out := make([]*qcode.Code, len(lexOuts))
	for i, lex := range lexOuts {
		f := fs.FileAt(i)
		c, err := Compile(f, lex)
		if err != nil {
			if list, ok := err.(token.ErrorList); ok {
				el = append(el, list...)
			} else {
				el.Add(token.Position{Filename: files[i]}.Std(), err.Error())
			}
			continue
		}
		out[i] = c
	}
	el.Sort()
	return fs, out, el.Err()
}

func (p *parser) advance() {
	if p.pos < len(p.toks) {
		tv := p.toks[p.pos]
		p.tok, p.val = tv.Tag, tv.Value
		p.pos++
		return
	}
	p.tok = token.END
}

// peek returns the tag of the token n positions ahead of the current one
// (peek(1) is the token right after the current one) without consuming
// anything.
func (p *parser) peek(n int) token.Tag {
	i := p.pos - 1 + n
	if i < 0 || i >= len(p.toks) {
		return token.END
	}
	return p.toks[i].Tag
}

func (p *parser) enter() {
	p.depth++
	if p.depth > maxNestingDepth {
		p.error("expression or block nested too deeply")
	}
}

func (p *parser) leave() { p.depth-- }

// expect consumes the current token if it matches want, otherwise records a
// syntax error and unwinds via errPanicMode.
func (p *parser) expect(want token.Tag) token.Value {
	if p.tok != want {
		p.errorExpected(want)
	}
	v := p.val
	p.advance()
	return v
}

func (p *parser) accept(want token.Tag) bool {
	if p.tok == want {
		p.advance()
		return true
	}
	return false
}

func (p *parser) line() int32 {
	l, _ := p.val.Pos.LineCol()
	return int32(l)
}

func (p *parser) error(msg string) {
	pos := p.file.Position(p.val.Pos)
	p.errors.Add(pos.Std(), msg)
	panic(errPanicMode)
}

func (p *parser) errorExpected(want token.Tag) {
	p.error(fmt.Sprintf("expected %s, found %s", want, p.tok))
}

// skipNewlines consumes any run of statement-separator tokens (NEWLINE or
// SEMI).
func (p *parser) skipNewlines() {
	for p.tok == token.NEWLINE || p.tok == token.SEMI {
		p.advance()
	}
}

// identOrdinal consumes an IDENT token and returns its identifier-pool
// ordinal.
func (p *parser) identOrdinal() uint32 {
	v := p.expect(token.IDENT)
	return v.StrOrdinal
}
