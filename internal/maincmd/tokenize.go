package maincmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mna/mainer"

	"github.com/rill-lang/rillc/lang/scanner"
	"github.com/rill-lang/rillc/lang/token"
)

func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	fs, outs, err := scanInputs(ctx, args[0])
	for i, out := range outs {
		f := fs.FileAt(i)
		for _, tv := range out.Tokens {
			pos := f.Position(tv.Value.Pos)
			fmt.Fprintf(stdio.Stdout, "%s: %s", pos, tv.Tag)
			if lit := literalOf(tv, out); lit != "" {
				fmt.Fprintf(stdio.Stdout, " %s", lit)
			}
			fmt.Fprintln(stdio.Stdout)
		}
	}
	if err != nil {
		token.PrintError(stdio.Stderr, err)
	}
	return err
}

// literalOf renders a token's payload, if any, for the tokenize command's
// listing: the pool-backed forms print their string, numeric forms their
// decoded value.
func literalOf(tv scanner.TokenAndValue, out scanner.LexOut) string {
	switch tv.Tag {
	case token.IDENT:
		if int(tv.Value.StrOrdinal) < len(out.IdentPool.Entries) {
			return out.IdentPool.Entries[tv.Value.StrOrdinal]
		}
	case token.STRING:
		if int(tv.Value.StrOrdinal) < len(out.StringPool.Entries) {
			return fmt.Sprintf("%q", out.StringPool.Entries[tv.Value.StrOrdinal])
		}
	case token.INT:
		return fmt.Sprintf("%d", tv.Value.Int)
	case token.FLOAT:
		return fmt.Sprintf("%g", tv.Value.Float)
	}
	return ""
}

// scanInputs tokenizes a single path, transparently reading standard input
// when path is "-" (§6 "Input `-` reads from standard input").
func scanInputs(ctx context.Context, path string) (*token.FileSet, []scanner.LexOut, error) {
	if path == "-" {
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, nil, err
		}
		return scanner.ScanSource(ctx, "<stdin>", src)
	}
	return scanner.ScanFiles(ctx, path)
}
