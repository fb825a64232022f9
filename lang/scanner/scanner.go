// Some of the scanner package is adapted from the Go source code:
// https://cs.opensource.google/go/go/+/refs/tags/go1.22.1:src/go/scanner/scanner.go
//
// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scanner implements the lexer that turns Rill source text into the
// LexOut token stream consumed by lang/parser. The lexer sits outside the
// compilation pipeline's hard boundary (the pipeline consumes an already
// materialized LexOut), but it is kept here, in the pipeline's idiom, so the
// CLI has a concrete producer to drive.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rill-lang/rillc/lang/token"
)

type (
	Error     = token.Error
	ErrorList = token.ErrorList
)

var PrintError = token.PrintError

// TokenAndValue combines the token tag with its decoded payload.
type TokenAndValue struct {
	Tag   token.Tag
	Value token.Value
}

// LexOut is the lexer's complete output for one source file (§3, §6): the
// token stream plus the identifier and string pools it references by
// ordinal. This is the boundary object the rest of the pipeline (parser
// onward) consumes; nothing downstream re-reads source bytes.
type LexOut struct {
	Tokens     []TokenAndValue
	StringPool token.Pool
	IdentPool  token.Pool
	FirstLine  int32
}

// ScanFiles tokenizes the given source files and returns the file set, one
// LexOut per file (in input order), and any error encountered. The returned
// error, when non-nil, is an ErrorList.
func ScanFiles(ctx context.Context, files ...string) (*token.FileSet, []LexOut, error) {
	if len(files) == 0 {
		return nil, nil, nil
	}

	var (
		s  Scanner
		el ErrorList
	)

	fs := token.NewFileSet()
	outs := make([]LexOut, len(files))
	for i, file := range files {
		b, err := os.ReadFile(file)
		if err != nil {
			el.Add(token.Position{Filename: file}.Std(), err.Error())
			continue
		}

		fsf := fs.AddFile(file, -1, len(b))
		s.Init(fsf, b, func(pos token.Position, msg string) { el.Add(pos.Std(), msg) })
		out := LexOut{FirstLine: 1}
		var tokVal token.Value
		for {
			tag := s.Scan(&tokVal)
			out.Tokens = append(out.Tokens, TokenAndValue{Tag: tag, Value: tokVal})
			if tag == token.END {
				break
			}
		}
		out.StringPool = s.strPool
		out.IdentPool = s.identPool
		outs[i] = out
	}
	el.Sort()
	return fs, outs, el.Err()
}

// ScanSource tokenizes a single in-memory source (no filesystem access),
// returning a one-file FileSet alongside its LexOut for callers — mainly
// tests — that already have source bytes rather than a path.
func ScanSource(ctx context.Context, name string, src []byte) (*token.FileSet, []LexOut, error) {
	var (
		s  Scanner
		el ErrorList
	)

	fs := token.NewFileSet()
	f := fs.AddFile(name, -1, len(src))
	s.Init(f, src, func(pos token.Position, msg string) { el.Add(pos.Std(), msg) })

	out := LexOut{FirstLine: 1}
	var tokVal token.Value
	for {
		tag := s.Scan(&tokVal)
		out.Tokens = append(out.Tokens, TokenAndValue{Tag: tag, Value: tokVal})
		if tag == token.END {
			break
		}
	}
	out.StringPool = s.strPool
	out.IdentPool = s.identPool

	el.Sort()
	return fs, []LexOut{out}, el.Err()
}

// Scanner tokenizes one source file for the parser to consume.
type Scanner struct {
	// immutable state after Init
	file *token.File
	src  []byte
	err  func(pos token.Position, msg string)

	// pools being built as the file is scanned
	strPool   token.Pool
	identPool token.Pool
	identOf   map[string]uint32 // dedup identifiers within this file

	// mutable scanning state
	sb               strings.Builder
	pendingSurrogate rune
	invalidByte      byte
	cur              rune
	off              int
	roff             int

	// newline-insertion state (§3 "statement-sensitive newline"): whether the
	// most recently scanned token is one after which a physical newline ends
	// a statement, mirroring go/scanner's automatic semicolon insertion.
	insertNewline bool
}

var (
	bom      = [2]byte{0xFE, 0xFF}
	hashBang = [2]byte{'#', '!'}
)

// Init initializes the scanner to tokenize a new file. It panics if the file
// size does not match len(src).
func (s *Scanner) Init(file *token.File, src []byte, errHandler func(token.Position, string)) {
	if file.Size() != len(src) {
		panic(fmt.Sprintf("file size (%d) does not match src len (%d)", file.Size(), len(src)))
	}

	s.file = file
	s.src = src
	s.err = errHandler
	s.strPool = token.Pool{}
	s.identPool = token.Pool{}
	s.identOf = make(map[string]uint32)

	s.sb.Reset()
	s.pendingSurrogate = 0
	s.invalidByte = 0
	s.cur = ' '
	s.off = 0
	s.roff = 0
	s.insertNewline = false

	if len(src) >= len(bom) && bytes.Equal(src[:len(bom)], bom[:]) {
		s.off += len(bom)
		s.roff += len(bom)
	}
	if len(src)-s.roff >= len(hashBang) && bytes.Equal(src[s.roff:s.roff+len(hashBang)], hashBang[:]) {
		for s.cur != '\n' && s.cur != -1 {
			s.advance()
		}
	}
	s.advance()
}

// StringPoolEntry returns the decoded string literal at ordinal ord, scanned
// so far. Exposed mainly for tests; callers normally consume the pool via
// the LexOut returned by ScanFiles once scanning completes.
func (s *Scanner) StringPoolEntry(ord uint32) string {
	if int(ord) >= len(s.strPool.Entries) {
		return ""
	}
	return s.strPool.Entries[ord]
}

func (s *Scanner) peek() byte {
	if s.roff < len(s.src) {
		return s.src[s.roff]
	}
	return 0
}

func (s *Scanner) advance() {
	if s.roff >= len(s.src) {
		s.off = len(s.src)
		if s.cur == '\n' {
			s.file.AddLine(s.off)
		}
		s.cur = -1
		return
	}

	s.off = s.roff
	if s.cur == '\n' {
		s.file.AddLine(s.off)
	}

	s.invalidByte = 0
	r, w := rune(s.src[s.roff]), 1
	if r >= utf8.RuneSelf {
		r, w = utf8.DecodeRune(s.src[s.roff:])
		if r == utf8.RuneError && w == 1 {
			s.error(s.off, "illegal UTF-8 encoding")
			s.invalidByte = s.src[s.roff]
		}
	}
	s.roff += w
	s.cur = r
}

func (s *Scanner) error(off int, msg string) {
	if s.err != nil {
		s.err(s.file.Position(s.file.Pos(off)), msg)
	}
}

func (s *Scanner) errorf(off int, format string, args ...any) {
	s.error(off, fmt.Sprintf(format, args...))
}

func (s *Scanner) advanceIf(matches ...byte) bool {
	if bytes.ContainsRune(matches, s.cur) {
		s.advance()
		return true
	}
	return false
}

// internIdent interns lit in the identifier pool, deduplicating within the
// file (the parser/builder rely on stable ordinals for scope-book keys).
func (s *Scanner) internIdent(lit string) uint32 {
	if ord, ok := s.identOf[lit]; ok {
		return ord
	}
	ord := s.identPool.Intern(lit)
	s.identOf[lit] = ord
	return ord
}

// Scan returns the next token's tag and fills tokVal with its payload.
func (s *Scanner) Scan(tokVal *token.Value) (tag token.Tag) {
	newline := s.skipWhitespaceAndComments()
	if newline && s.insertNewline {
		s.insertNewline = false
		*tokVal = token.Value{Pos: s.file.Pos(s.off)}
		return token.NEWLINE
	}

	pos := s.file.Pos(s.off)
	start := s.off
	insertAfter := false

	switch cur := s.cur; {
	case isLetter(cur):
		lit := s.ident()
		if kw, ok := token.Keywords[lit]; ok {
			tag = kw
			insertAfter = kw == token.BREAK || kw == token.CONTINUE || kw == token.RETURN ||
				kw == token.TRUE || kw == token.FALSE || kw == token.NULL || kw == token.END_KW
		} else {
			tag = token.IDENT
			insertAfter = true
		}
		*tokVal = token.Value{Pos: pos}
		if tag == token.IDENT {
			tokVal.StrOrdinal = s.internIdent(lit)
		}

	case isDecimal(cur) || cur == '.' && isDecimal(rune(s.peek())):
		var base int
		var lit string
		tag, base, lit = s.number()
		*tokVal = token.Value{Pos: pos}
		insertAfter = true
		if tag == token.INT {
			v, err := numberToInt(lit, base)
			if err != nil && errors.Is(err, strconv.ErrRange) {
				s.error(start, "integer literal value out of range")
			}
			tokVal.Int = v
		} else if tag == token.FLOAT {
			v, err := numberToFloat(lit)
			if err != nil && errors.Is(err, strconv.ErrRange) {
				s.error(start, "float literal value out of range")
			}
			tokVal.Float = v
		}

	default:
		s.advance() // always make progress
		switch cur {
		case '=':
			tag = token.ASSIGN
			if s.advanceIf('=') {
				tag = token.EQ
			}
			*tokVal = token.Value{Pos: pos}

		case '"', '\'':
			tag = token.STRING
			val := s.shortString(cur)
			*tokVal = token.Value{Pos: pos, StrOrdinal: s.strPool.Intern(val)}
			insertAfter = true

		case '[':
			tag = token.LBRACK
			*tokVal = token.Value{Pos: pos}

		case '(', ')', ',', '{', '}', ']', ';':
			tag = lookupPunct(string(cur))
			*tokVal = token.Value{Pos: pos}
			insertAfter = cur == ')' || cur == ']' || cur == '}'

		case '?':
			tag = token.QUESTION
			if s.advanceIf('.') {
				tag = token.SAFEDOT
			}
			*tokVal = token.Value{Pos: pos}

		case '+', '*', '%', '^', '&', '|':
			if s.advanceIf('=') {
				tag = lookupPunct(string(s.src[start:s.off]))
			} else {
				tag = lookupPunct(string(cur))
			}
			*tokVal = token.Value{Pos: pos}

		case '~':
			tag = token.TILDE
			*tokVal = token.Value{Pos: pos}

		case '-':
			tag = token.MINUS
			if s.advanceIf('=') {
				tag = token.MINUS_ASSIGN
			} else if s.advanceIf('>') {
				tag = token.ARROW
			}
			*tokVal = token.Value{Pos: pos}

		case '/':
			tag = token.SLASH
			if s.advanceIf('/') {
				tag = token.SLASHSLASH
				if s.advanceIf('=') {
					tag = token.SLASHSLASH_ASSIGN
				}
			} else if s.advanceIf('=') {
				tag = token.SLASH_ASSIGN
			}
			*tokVal = token.Value{Pos: pos}

		case '<':
			tag = token.LT
			if s.advanceIf('<') {
				tag = token.SHL
				if s.advanceIf('=') {
					tag = token.SHL_ASSIGN
				}
			} else if s.advanceIf('=') {
				tag = token.LE
			}
			*tokVal = token.Value{Pos: pos}

		case '>':
			tag = token.GT
			if s.advanceIf('>') {
				tag = token.SHR
				if s.advanceIf('=') {
					tag = token.SHR_ASSIGN
				}
			} else if s.advanceIf('=') {
				tag = token.GE
			}
			*tokVal = token.Value{Pos: pos}

		case '!':
			tag = token.NE
			if !s.advanceIf('=') {
				s.error(start, "illegal character '!', did you mean 'not'?")
				tag = token.ILLEGAL
			}
			*tokVal = token.Value{Pos: pos}

		case ':':
			tag = token.COLON
			*tokVal = token.Value{Pos: pos}

		case '.':
			tag = token.DOT
			if s.advanceIf('.') {
				if s.advanceIf('.') {
					tag = token.ELLIPSIS
				} else {
					tag = token.CONCAT
					if s.advanceIf('=') {
						tag = token.CONCAT_ASSIGN
					}
				}
			}
			*tokVal = token.Value{Pos: pos}

		case '#':
			s.error(start, "illegal character '#'")
			tag = token.ILLEGAL
			*tokVal = token.Value{Pos: pos}

		case -1:
			tag = token.END
			insertAfter = false
			*tokVal = token.Value{Pos: pos}

		default:
			if cur == utf8.RuneError && s.invalidByte > 0 {
				cur = rune(s.invalidByte)
				s.invalidByte = 0
			}
			s.errorf(start, "illegal character %#U", cur)
			tag = token.ILLEGAL
			*tokVal = token.Value{Pos: pos}
		}
	}

	s.insertNewline = insertAfter
	return tag
}

func lookupPunct(s string) token.Tag {
	switch s {
	case "(":
		return token.LPAREN
	case ")":
		return token.RPAREN
	case ",":
		return token.COMMA
	case "{":
		return token.LBRACE
	case "}":
		return token.RBRACE
	case "]":
		return token.RBRACK
	case ";":
		return token.SEMI
	case "+":
		return token.PLUS
	case "+=":
		return token.PLUS_ASSIGN
	case "*":
		return token.STAR
	case "*=":
		return token.STAR_ASSIGN
	case "%":
		return token.PERCENT
	case "%=":
		return token.PERCENT_ASSIGN
	case "^":
		return token.CARET
	case "^=":
		return token.CARET_ASSIGN
	case "&":
		return token.AMP
	case "&=":
		return token.AMP_ASSIGN
	case "|":
		return token.PIPE
	case "|=":
		return token.PIPE_ASSIGN
	}
	return token.ILLEGAL
}

func (s *Scanner) ident() string {
	start := s.off
	for isLetter(s.cur) || isDigit(s.cur) {
		s.advance()
	}
	return string(s.src[start:s.off])
}

// skipWhitespaceAndComments consumes whitespace and `--` line comments,
// reporting whether a newline was crossed (candidate for NEWLINE insertion).
func (s *Scanner) skipWhitespaceAndComments() (sawNewline bool) {
	for {
		switch {
		case s.cur == '\n':
			sawNewline = true
			s.advance()
		case isWhitespace(s.cur):
			s.advance()
		case s.cur == '-' && s.peek() == '-':
			s.advance()
			s.advance()
			for s.cur != '\n' && s.cur != -1 {
				s.advance()
			}
		default:
			return sawNewline
		}
	}
}

func isWhitespace(rn rune) bool {
	return rn == ' ' || rn == '\t' || rn == '\r'
}

func isLetter(rn rune) bool {
	return 'a' <= rn && rn <= 'z' ||
		'A' <= rn && rn <= 'Z' ||
		rn == '_' ||
		rn >= utf8.RuneSelf && unicode.IsLetter(rn)
}

func isDigit(rn rune) bool {
	return '0' <= rn && rn <= '9' ||
		rn >= utf8.RuneSelf && unicode.IsDigit(rn)
}
