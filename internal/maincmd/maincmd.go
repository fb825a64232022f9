package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "rillc"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<path>...]
Run '%[1]s -?' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<path>...]
       %[1]s -?|--help
       %[1]s -v|--version

Compiler for the Rill scripting language's compilation pipeline core:
token stream in, P-code Program out.

The <command> can be one of:
       tokenize                  Run only the lexer and print the resulting
                                 token stream.
       parse                     Reserved for a future external-AST front
                                 end; not implemented by this binary.
       compile                   Run the full pipeline (parse, resolve,
                                 optimize, lower) and write the resulting
                                 Program.
       disasm                    Like compile, but print a disassembly of
                                 the result instead of writing bytecode.

Valid flag options are:
       -?        --help          Show this help and exit.
       -v        --version       Print version and exit.
       -o <path> --output <path> Write the compiled Program to <path>
                                 instead of stdout (compile only).
       -S        --disasm        Dump disassembly instead of writing the
                                 Program (implied, and the only behavior,
                                 for the disasm command).

A <path> of "-" reads the single program from standard input.

Environment:
       RILLC_MAXJUMPWIDTH          Overrides the lowerer's initial per-
                                 function jump-width guess (1-4).
`, binName)
)

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"?,help"`
	Version bool `flag:"v,version"`

	Output string `flag:"o,output"`
	// Dump selects disassembly output over writing a Program (the -S flag);
	// named separately from the Disasm command method below, since a flag
	// field and a command method cannot share a Go selector name.
	Dump bool `flag:"S,disasm"`

	WithComments bool `flag:"with-comments"`

	// MaxJumpWidth, when non-zero, overrides the lowerer's initial jump-
	// width guess of 1 byte; set via RILLC_MAXJUMPWIDTH, per §6's ambient
	// config surface.
	MaxJumpWidth int `flag:"maxjumpwidth"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {
	c.flags = flags
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]

	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", c.args[0])
	}

	if len(c.args[1:]) == 0 {
		return fmt.Errorf("%s: at least one file must be provided", cmdName)
	}
	if len(c.args[1:]) > 1 {
		return fmt.Errorf("%s: exactly one file is accepted", cmdName)
	}

	if c.flags["with-comments"] && cmdName != "parse" {
		return fmt.Errorf("%s: invalid flag 'with-comments'", cmdName)
	}
	if c.flags["output"] && cmdName == "disasm" {
		return fmt.Errorf("%s: -o is invalid with disasm, output is always the disassembly text", cmdName)
	}
	if c.MaxJumpWidth < 0 || c.MaxJumpWidth > 4 {
		return fmt.Errorf("maxjumpwidth must be in [0,4] (0 means unset): got %d", c.MaxJumpWidth)
	}

	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   true,
		EnvPrefix: strings.ToUpper(binName) + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintln(stdio.Stdout, formatVersion(c.BuildVersion, c.BuildDate))
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		// each command takes care of printing its own errors; just report
		// the exit code (§7: "the caller... receives an error code and a
		// single message").
		return mainer.Failure
	}
	return mainer.Success
}

// valid commands are those that take a mainer.Stdio and a slice of strings as
// input, and return an error as output.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		// must take 4 parameters (including receiver) and return 1
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}

		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
