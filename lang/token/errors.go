package token

import (
	gotoken "go/token"
	"go/scanner"
)

// Error and ErrorList are reused from the standard library's go/scanner
// package: a positioned error and a sortable, dedupable list of them — the
// same error-accumulation shape the teacher's scanner/parser/resolver
// packages build on (see lang/scanner.ErrorList in the teacher repo).
type (
	Error     = scanner.Error
	ErrorList = scanner.ErrorList
)

// PrintError writes err (an error, an ErrorList, or anything else) to w in
// human-readable form, one error per line.
var PrintError = scanner.PrintError

// Std converts a Position to the go/token.Position shape go/scanner.ErrorList
// requires for Add.
func (p Position) Std() gotoken.Position {
	return gotoken.Position{Filename: p.Filename, Line: p.Line, Column: p.Column}
}
