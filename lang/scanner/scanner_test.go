package scanner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rill-lang/rillc/lang/scanner"
	"github.com/rill-lang/rillc/lang/token"
)

func scanAll(t *testing.T, src string) ([]scanner.TokenAndValue, []string) {
	t.Helper()
	fs := token.NewFileSet()
	f := fs.AddFile("test.rill", -1, len(src))

	var (
		s    scanner.Scanner
		errs []string
	)
	s.Init(f, []byte(src), func(pos token.Position, msg string) {
		errs = append(errs, pos.String()+": "+msg)
	})

	var toks []scanner.TokenAndValue
	var v token.Value
	for {
		tag := s.Scan(&v)
		toks = append(toks, scanner.TokenAndValue{Tag: tag, Value: v})
		if tag == token.END {
			break
		}
	}
	return toks, errs
}

func tags(toks []scanner.TokenAndValue) []token.Tag {
	out := make([]token.Tag, len(toks))
	for i, tv := range toks {
		out[i] = tv.Tag
	}
	return out
}

func TestScanPunctuationAndOperators(t *testing.T) {
	toks, errs := scanAll(t, "a += 1 <= 2 .. 3")
	assert.Empty(t, errs)
	assert.Equal(t, []token.Tag{
		token.IDENT, token.PLUS_ASSIGN, token.INT, token.LE, token.INT,
		token.CONCAT, token.INT, token.END,
	}, tags(toks))
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	toks, errs := scanAll(t, "function foo() return x end")
	assert.Empty(t, errs)
	assert.Equal(t, []token.Tag{
		token.FUNCTION, token.IDENT, token.LPAREN, token.RPAREN,
		token.RETURN, token.IDENT, token.END_KW, token.END,
	}, tags(toks))
}

func TestScanIntAndFloatLiterals(t *testing.T) {
	toks, errs := scanAll(t, "1 0x1F 3.14 1e10")
	require.Empty(t, errs)
	require.Len(t, toks, 5)
	assert.Equal(t, token.INT, toks[0].Tag)
	assert.Equal(t, int64(1), toks[0].Value.Int)
	assert.Equal(t, token.INT, toks[1].Tag)
	assert.Equal(t, int64(31), toks[1].Value.Int)
	assert.Equal(t, token.FLOAT, toks[2].Tag)
	assert.InDelta(t, 3.14, toks[2].Value.Float, 1e-9)
	assert.Equal(t, token.FLOAT, toks[3].Tag)
}

func TestScanStringLiteralEscapes(t *testing.T) {
	fs := token.NewFileSet()
	src := `"a\nb" 'c'`
	f := fs.AddFile("t.rill", -1, len(src))
	var s scanner.Scanner
	s.Init(f, []byte(src), nil)

	var v token.Value
	tag := s.Scan(&v)
	require.Equal(t, token.STRING, tag)
	assert.Equal(t, "a\nb", s.StringPoolEntry(v.StrOrdinal))

	tag = s.Scan(&v)
	require.Equal(t, token.STRING, tag)
	assert.Equal(t, "c", s.StringPoolEntry(v.StrOrdinal))
}

func TestScanStringPoolInterning(t *testing.T) {
	fs := token.NewFileSet()
	src := `"hi" "hi" "bye"`
	f := fs.AddFile("t.rill", -1, len(src))
	var s scanner.Scanner
	s.Init(f, []byte(src), nil)

	var v token.Value
	var ords []uint32
	for {
		tag := s.Scan(&v)
		if tag == token.STRING {
			ords = append(ords, v.StrOrdinal)
		}
		if tag == token.END {
			break
		}
	}
	require.Len(t, ords, 3)
	assert.NotEqual(t, ords[0], ords[2])
}

func TestScanIdentifierDedup(t *testing.T) {
	toks, errs := scanAll(t, "x x y")
	require.Empty(t, errs)
	require.Len(t, toks, 4)
	assert.Equal(t, toks[0].Value.StrOrdinal, toks[1].Value.StrOrdinal)
	assert.NotEqual(t, toks[0].Value.StrOrdinal, toks[2].Value.StrOrdinal)
}

func TestScanNewlineInsertion(t *testing.T) {
	toks, errs := scanAll(t, "return x\nreturn y")
	assert.Empty(t, errs)
	assert.Equal(t, []token.Tag{
		token.RETURN, token.IDENT, token.NEWLINE,
		token.RETURN, token.IDENT, token.END,
	}, tags(toks))
}

func TestScanNoNewlineAfterOperator(t *testing.T) {
	toks, errs := scanAll(t, "x +\n1")
	assert.Empty(t, errs)
	assert.Equal(t, []token.Tag{token.IDENT, token.PLUS, token.INT, token.END}, tags(toks))
}

func TestScanIllegalCharacter(t *testing.T) {
	_, errs := scanAll(t, "a $ b")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "illegal character")
}

func TestScanUnterminatedString(t *testing.T) {
	_, errs := scanAll(t, `"unterminated`)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "not terminated")
}

func TestScanLineComment(t *testing.T) {
	toks, errs := scanAll(t, "x -- a comment\ny")
	assert.Empty(t, errs)
	assert.Equal(t, []token.Tag{token.IDENT, token.NEWLINE, token.IDENT, token.END}, tags(toks))
}
