package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
)

// Parse is reserved for a future external-AST front end (SPEC_FULL.md §2,
// "CLI"): this pipeline goes straight from tokens to
// Q-code via lang/qbuild, with no intermediate AST to print, so there is
// nothing for this command to do yet.
func (c *Cmd) Parse(ctx context.Context, stdio mainer.Stdio, args []string) error {
	err := fmt.Errorf("parse: not implemented, this pipeline has no intermediate AST stage (use tokenize or compile)")
	fmt.Fprintln(stdio.Stderr, err)
	return err
}
