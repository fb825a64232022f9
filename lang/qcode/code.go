package qcode

import "github.com/rill-lang/rillc/lang/token"

// Code is the complete Q-code output for one compiled source file (§3
// "Q-code"): every function, in declaration order (function 0 is always the
// top-level script body), plus the raw bytes backing the string pool
// referenced by StrConst operands.
type Code struct {
	FirstLine int32

	Functions []*Func

	// StringPoolBytes holds the compacted string-pool contents as produced by
	// token.Pool.Compact: StrConst.Index is an index into this pool after
	// compaction, not into the scanner's original (pre-compaction) pool.
	StringPoolBytes []byte

	// IdentPool is the lexer's identifier pool, carried through unmodified
	// (Public/Identifier/StrIdent operands still reference it by its
	// original, pre-compaction ordinal): per §4.7 "Pool emission", the
	// identifier pool is only compacted and merged with the string pool at
	// P-code lowering time, once the optimizer has had its chance to drop
	// the instructions that were its only remaining users.
	IdentPool token.Pool
}

// NewCode returns an empty Code with firstLine recorded and no functions.
func NewCode(firstLine int32) *Code {
	return &Code{FirstLine: firstLine}
}

// AddFunc appends fn to the function table and returns its index.
func (c *Code) AddFunc(fn *Func) uint32 {
	idx := uint32(len(c.Functions))
	c.Functions = append(c.Functions, fn)
	return idx
}

// TopLevel returns the top-level (script body) function, function 0.
func (c *Code) TopLevel() *Func {
	if len(c.Functions) == 0 {
		return nil
	}
	return c.Functions[0]
}
