// Package pcode implements the P-code lowerer (§4.7): it converts an
// optimized qcode.Code into the final bytecode Program, choosing concrete
// opcode variants for polymorphic Q-code operations, selecting each
// function's jump width, and merging the string and identifier pools into
// one compact, length-prefixed pool. It also provides the single
// disassembler the spec's design notes ask for in place of the original's
// three duplicated ones (Disassemble, parameterized by its output sink).
package pcode

import "fmt"

// Op is a final, concrete bytecode opcode. Where a Q-code opcode has a
// polymorphic operand (register or literal), Op carries one variant per
// combination actually needed: unary/move forms get an R/L pair, binary
// arithmetic and comparison forms get the full RR/RL/LR/LL quartet (§4.7
// "Opcode selection"). Every other Q-code opcode lowers to exactly one Op,
// since §4.7 scopes the RR/RL/LR/LL expansion to binary operations only;
// any other operand that isn't already register-like or pool-indexed is
// materialized into a register ahead of the instruction (see lower.go).
type Op uint8

//nolint:revive
const (
	NOP Op = iota

	MOVE_R
	MOVE_L

	UPLUS_R
	UPLUS_L
	UMINUS_R
	UMINUS_L
	BNOT_R
	BNOT_L
	LNOT_R
	LNOT_L

	ADD_RR
	ADD_RL
	ADD_LR
	ADD_LL
	SUB_RR
	SUB_RL
	SUB_LR
	SUB_LL
	MUL_RR
	MUL_RL
	MUL_LR
	MUL_LL
	DIV_RR
	DIV_RL
	DIV_LR
	DIV_LL
	IDIV_RR
	IDIV_RL
	IDIV_LR
	IDIV_LL
	MOD_RR
	MOD_RL
	MOD_LR
	MOD_LL
	SHL_RR
	SHL_RL
	SHL_LR
	SHL_LL
	SHR_RR
	SHR_RL
	SHR_LR
	SHR_LL
	AND_RR
	AND_RL
	AND_LR
	AND_LL
	OR_RR
	OR_RL
	OR_LR
	OR_LL
	XOR_RR
	XOR_RL
	XOR_LR
	XOR_LL
	CONCAT_RR
	CONCAT_RL
	CONCAT_LR
	CONCAT_LL
	CEQ_RR
	CEQ_RL
	CEQ_LR
	CEQ_LL
	CLT_RR
	CLT_RL
	CLT_LR
	CLT_LL

	JMP
	JMPIFTRUE
	JMPIFFALSE
	XPUSH
	XPOP

	GETATTR
	SETATTR
	DELATTR
	GETINDEX
	SETINDEX
	DELINDEX
	GETPUBLIC
	SETPUBLIC
	DELPUBLIC

	GETBIND
	SETBIND

	PUSHF
	POPF
	SPREAD
	ASSERTEQ
	ASSERTGE
	STKGET
	STKPUT

	NEWLIST
	NEWDICT
	MLISTP

	ITERINIT
	ITERNEXT

	FMAKE
	FBIND
	FCALL
	FTAIL
	DCALL
	DTAIL

	WPUSH
	WPOP
	WPUSHVAL

	RETNONE
	RETONE
	RETSTK

	// materialization opcodes: load a literal that didn't fit an L-form
	// operand into a fresh register ahead of the instruction that needs it
	// (§4.7 "Opcode selection").
	LDINT
	LDFLT
	LDSTR
	LDNUL
	LDBLT
	LDBLF

	// DEL is the synthetic per-function prologue marker recording the
	// function's chosen jump width (§4.7 "Jump width"); the lowerer always
	// emits exactly one as the first thing in a function's code, and the
	// disassembler/resolver read it before decoding any jump.
	DEL

	opMax
)

var opNames = [...]string{
	NOP:        "nop",
	MOVE_R:     "move.r",
	MOVE_L:     "move.l",
	UPLUS_R:    "uplus.r",
	UPLUS_L:    "uplus.l",
	UMINUS_R:   "uminus.r",
	UMINUS_L:   "uminus.l",
	BNOT_R:     "bnot.r",
	BNOT_L:     "bnot.l",
	LNOT_R:     "lnot.r",
	LNOT_L:     "lnot.l",
	ADD_RR:     "add.rr", ADD_RL: "add.rl", ADD_LR: "add.lr", ADD_LL: "add.ll",
	SUB_RR: "sub.rr", SUB_RL: "sub.rl", SUB_LR: "sub.lr", SUB_LL: "sub.ll",
	MUL_RR: "mul.rr", MUL_RL: "mul.rl", MUL_LR: "mul.lr", MUL_LL: "mul.ll",
	DIV_RR: "div.rr", DIV_RL: "div.rl", DIV_LR: "div.lr", DIV_LL: "div.ll",
	IDIV_RR: "idiv.rr", IDIV_RL: "idiv.rl", IDIV_LR: "idiv.lr", IDIV_LL: "idiv.ll",
	MOD_RR: "mod.rr", MOD_RL: "mod.rl", MOD_LR: "mod.lr", MOD_LL: "mod.ll",
	SHL_RR: "shl.rr", SHL_RL: "shl.rl", SHL_LR: "shl.lr", SHL_LL: "shl.ll",
	SHR_RR: "shr.rr", SHR_RL: "shr.rl", SHR_LR: "shr.lr", SHR_LL: "shr.ll",
	AND_RR: "and.rr", AND_RL: "and.rl", AND_LR: "and.lr", AND_LL: "and.ll",
	OR_RR: "or.rr", OR_RL: "or.rl", OR_LR: "or.lr", OR_LL: "or.ll",
	XOR_RR: "xor.rr", XOR_RL: "xor.rl", XOR_LR: "xor.lr", XOR_LL: "xor.ll",
	CONCAT_RR: "concat.rr", CONCAT_RL: "concat.rl", CONCAT_LR: "concat.lr", CONCAT_LL: "concat.ll",
	CEQ_RR: "ceq.rr", CEQ_RL: "ceq.rl", CEQ_LR: "ceq.lr", CEQ_LL: "ceq.ll",
	CLT_RR: "clt.rr", CLT_RL: "clt.rl", CLT_LR: "clt.lr", CLT_LL: "clt.ll",

	JMP:        "jmp",
	JMPIFTRUE:  "jmpiftrue",
	JMPIFFALSE: "jmpiffalse",
	XPUSH:      "xpush",
	XPOP:       "xpop",

	GETATTR:   "getattr",
	SETATTR:   "setattr",
	DELATTR:   "delattr",
	GETINDEX:  "getindex",
	SETINDEX:  "setindex",
	DELINDEX:  "delindex",
	GETPUBLIC: "getpublic",
	SETPUBLIC: "setpublic",
	DELPUBLIC: "delpublic",

	GETBIND: "getbind",
	SETBIND: "setbind",

	PUSHF:    "pushf",
	POPF:     "popf",
	SPREAD:   "spread",
	ASSERTEQ: "asserteq",
	ASSERTGE: "assertge",
	STKGET:   "stkget",
	STKPUT:   "stkput",

	NEWLIST: "newlist",
	NEWDICT: "newdict",
	MLISTP:  "mlistp",

	ITERINIT: "iterinit",
	ITERNEXT: "iternext",

	FMAKE: "fmake",
	FBIND: "fbind",
	FCALL: "fcall",
	FTAIL: "ftail",
	DCALL: "dcall",
	DTAIL: "dtail",

	WPUSH:    "wpush",
	WPOP:     "wpop",
	WPUSHVAL: "wpushval",

	RETNONE: "retnone",
	RETONE:  "retone",
	RETSTK:  "retstk",

	LDINT: "ldint",
	LDFLT: "ldflt",
	LDSTR: "ldstr",
	LDNUL: "ldnul",
	LDBLT: "ldblt",
	LDBLF: "ldblf",

	DEL: "del",
}

func (op Op) String() string {
	if op < opMax {
		if s := opNames[op]; s != "" {
			return s
		}
	}
	return fmt.Sprintf("illegal pcode op (%d)", op)
}

// IsJump reports whether op carries a jump-target byte offset (CLQ, width
// chosen per function) as its only operand.
func (op Op) IsJump() bool {
	switch op {
	case JMP, JMPIFTRUE, JMPIFFALSE, XPUSH:
		return true
	}
	return false
}

// Version is the bytecode format version stamped into every Program's data
// section (§6 "the lowerer stamps a version byte"). Bumped only when the Op
// table above changes shape.
const Version = 1

// RegWidth is the constant-width CLQ encoding used for every register-like
// operand (temp/local/exhale/inhale index), mirroring §4.1's REGW. One byte
// supports up to 256 live slots per register space per function, ample for
// any function this compiler will realistically ever emit.
const RegWidth = 1
