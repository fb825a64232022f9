package maincmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/mna/mainer"

	"github.com/rill-lang/rillc/lang/optimizer"
	"github.com/rill-lang/rillc/lang/parser"
	"github.com/rill-lang/rillc/lang/pcode"
	"github.com/rill-lang/rillc/lang/qcode"
	"github.com/rill-lang/rillc/lang/scanner"
	"github.com/rill-lang/rillc/lang/token"
)

// Compile runs the full pipeline and writes the resulting Program, either to
// -o's path or, by default, to stdout; -S dumps a disassembly instead
// (§6 "CLI contract").
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	prog, err := c.compileOne(ctx, stdio, args[0])
	if err != nil {
		return err
	}

	if c.Dump {
		return pcode.Disassemble(prog, stdio.Stdout)
	}

	out := stdio.Stdout
	if c.Output != "" {
		f, ferr := os.Create(c.Output)
		if ferr != nil {
			fmt.Fprintln(stdio.Stderr, ferr)
			return ferr
		}
		defer f.Close()
		out = f
	}
	if _, err := out.Write(encodeProgramFile(prog)); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	return nil
}

// Disasm is Compile run purely for its disassembly side effect: useful as
// its own command name for scripts that always want a listing and never a
// binary.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	prog, err := c.compileOne(ctx, stdio, args[0])
	if err != nil {
		return err
	}
	return pcode.Disassemble(prog, stdio.Stdout)
}

// compileOne runs scan, parse/build, bind (inline in the builder), optimize
// and lower over a single input, printing and returning any error with exit
// code 1 (§7: compilation failure).
func (c *Cmd) compileOne(ctx context.Context, stdio mainer.Stdio, path string) (*pcode.Program, error) {
	code, err := c.parseOne(ctx, path)
	if err != nil {
		token.PrintError(stdio.Stderr, err)
		return nil, err
	}

	optimizer.Optimize(code)

	var opts []pcode.Option
	if c.MaxJumpWidth != 0 {
		opts = append(opts, pcode.WithInitialJumpWidth(c.MaxJumpWidth))
	}
	prog, err := pcode.Lower(code, opts...)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return nil, err
	}
	return prog, nil
}

func (c *Cmd) parseOne(ctx context.Context, path string) (*qcode.Code, error) {
	if path == "-" {
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		fs, outs, err := scanner.ScanSource(ctx, "<stdin>", src)
		if err != nil {
			return nil, err
		}
		return parser.Compile(fs.FileAt(0), outs[0])
	}

	_, codes, err := parser.CompileFiles(ctx, path)
	if err != nil {
		return nil, err
	}
	return codes[0], nil
}

// programMagic identifies a serialized Program on disk; bumped alongside
// pcode.Version if the header shape itself ever changes (§6: "a header of
// magic bytes, version, and counters; this specification fixes only the
// in-memory form").
var programMagic = [4]byte{'R', 'I', 'L', 'C'}

// encodeProgramFile serializes prog with the on-disk header the VM loader
// expects: magic, version, then the code and data sections each prefixed
// with a fixed-width length so a loader can mmap and slice without parsing
// VLQ up front.
func encodeProgramFile(prog *pcode.Program) []byte {
	out := make([]byte, 0, len(programMagic)+1+8+len(prog.Code)+8+len(prog.Data))
	out = append(out, programMagic[:]...)
	out = append(out, pcode.Version)
	out = appendUint64(out, uint64(len(prog.Code)))
	out = append(out, prog.Code...)
	out = appendUint64(out, uint64(len(prog.Data)))
	out = append(out, prog.Data...)
	return out
}

func appendUint64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}
