package parser

import "github.com/rill-lang/rillc/lang/token"

// parseChunk parses the whole token stream as the top-level function body.
func (p *parser) parseChunk() {
	p.parseBlock()
}

// parseBlock parses statements until it sees the end of the stream or one of
// terms (a block terminator the caller will consume itself, e.g. END_KW,
// ELSE, ELSEIF, CATCH). It never consumes a terminator token.
func (p *parser) parseBlock(terms ...token.Tag) {
	p.enter()
	defer p.leave()
	for {
		p.skipNewlines()
		if p.tok == token.END || isOneOf(p.tok, terms) {
			return
		}
		p.parseStmt()
		p.b.Fence()
	}
}

func isOneOf(t token.Tag, set []token.Tag) bool {
	for _, s := range set {
		if t == s {
			return true
		}
	}
	return false
}
