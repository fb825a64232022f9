package scanner

import (
	"fmt"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// shortString scans a single-quoted or double-quoted string literal and
// returns its decoded value. Rill has no long-bracket string literal form
// (unlike the Lua-family scanners this package borrows escape handling
// from): `[` always opens a list literal.
func (s *Scanner) shortString(opening rune) (decoded string) {
	startOff := s.off - 1
	s.sb.Reset()
	s.pendingSurrogate = 0

	var skipws bool
	for {
		cur := s.cur
		if (cur == '\n' && !skipws) || cur < 0 {
			s.error(startOff, "string literal not terminated")
			break
		}
		s.advance()
		if cur == opening {
			break
		}
		if cur == '\\' {
			skipws = s.escape()
		} else if !skipws || !isWhitespace(cur) {
			skipws = false
			s.writeStringLitRune(cur)
		}
	}
	if s.pendingSurrogate != 0 {
		s.sb.WriteRune(utf8.RuneError)
	}
	return s.sb.String()
}

var simpleEscapes = [...]byte{
	'a':  '\a',
	'b':  '\b',
	'f':  '\f',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'v':  '\v',
	'\\': '\\',
	'/':  '/',
	'\'': '\'',
	'"':  '"',
	'\n': '\n',
}

// escape parses an escape sequence, leading backslash already consumed. If
// the escape is \z, it returns true for skipws: subsequent whitespace in the
// string literal should be skipped.
func (s *Scanner) escape() (skipws bool) {
	startOff := s.off - 1

	if cur := s.cur; s.advanceIf('a', 'b', 'f', 'n', 'r', 't', 'v', 'z', '\\', '/', '"', '\'', '\n') {
		if cur != 'z' {
			s.writeStringLitRune(rune(simpleEscapes[cur]))
		}
		return cur == 'z'
	}

	illegalOrIncomplete := func() {
		pos := s.off
		msg := fmt.Sprintf("illegal character %#U in escape sequence", s.cur)
		if s.cur < 0 {
			msg = "escape sequence not terminated"
			pos = startOff
		}
		s.error(pos, msg)
	}

	var max, rn uint32
	if isDecimal(s.cur) {
		max = 255
		rn = uint32(digitVal(s.cur))
		s.advance()
		if isDecimal(s.cur) {
			rn = rn*10 + uint32(digitVal(s.cur))
			s.advance()
			if isDecimal(s.cur) {
				rn = rn*10 + uint32(digitVal(s.cur))
				s.advance()
			}
		}
	} else if s.advanceIf('x') {
		max = 255
		for i := 0; i < 2; i++ {
			if !isHexadecimal(s.cur) {
				illegalOrIncomplete()
				return false
			}
			rn = rn*16 + uint32(digitVal(s.cur))
			s.advance()
		}
	} else if s.advanceIf('u') {
		max = unicode.MaxRune
		if s.advanceIf('{') {
			var count int
			for isHexadecimal(s.cur) {
				rn = rn*16 + uint32(digitVal(s.cur))
				s.advance()
				count++
			}
			if !s.advanceIf('}') {
				illegalOrIncomplete()
				return false
			}
			if count > 8 {
				s.error(startOff, "escape sequence has too many hexadecimal digits")
				return false
			}
		} else {
			for i := 0; i < 4; i++ {
				if !isHexadecimal(s.cur) {
					illegalOrIncomplete()
					return false
				}
				rn = rn*16 + uint32(digitVal(s.cur))
				s.advance()
			}
		}
	} else {
		msg := "unknown escape sequence"
		if s.cur < 0 {
			msg = "escape sequence not terminated"
		}
		s.error(startOff, msg)
		return false
	}

	if rn > max {
		msg := "escape sequence is invalid Unicode code point"
		if max == 255 {
			msg = "escape sequence is invalid byte value"
		}
		s.error(startOff, msg)
		return false
	}
	if utf16.IsSurrogate(rune(rn)) {
		s.writeStringLitSurrogate(rune(rn))
		return false
	}
	s.writeStringLitRune(rune(rn))
	return false
}

func (s *Scanner) writeStringLitRune(rn rune) {
	if s.pendingSurrogate != 0 {
		s.sb.WriteRune(utf8.RuneError)
		s.pendingSurrogate = 0
	}
	s.sb.WriteRune(rn)
}

func (s *Scanner) writeStringLitSurrogate(rn rune) {
	if s.pendingSurrogate == 0 {
		s.pendingSurrogate = rn
	} else {
		s.sb.WriteRune(utf16.DecodeRune(s.pendingSurrogate, rn))
		s.pendingSurrogate = 0
	}
}

func digitVal(rn rune) int {
	switch {
	case '0' <= rn && rn <= '9':
		return int(rn - '0')
	case 'a' <= rn && rn <= 'f':
		return int(rn - 'a' + 10)
	case 'A' <= rn && rn <= 'F':
		return int(rn - 'A' + 10)
	}
	return 16
}
