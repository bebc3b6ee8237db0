// Package shell executes the commands delegated to external tools. Commands are parsed and run by
// mvdan.cc/sh so that command templates behave the same regardless of the host's /bin/sh.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ExitError is returned when a command exits with a non-zero status
type ExitError struct {
	Status  uint8
	Command string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Command, e.Status)
}

// helperCommands are always routed to our own cross-platform implementation to make sure they
// behave consistently
var helperCommands = map[string]bool{
	"rm":    true,
	"mkdir": true,
	"mv":    true,
	"cp":    true,
}

// Runner executes shell statements in a fixed directory and environment
type Runner struct {
	// Dir is the working directory of every command
	Dir string
	// Env contains KEY=VALUE pairs which are added to (and override) the process environment
	Env []string
	// Stdout and Stderr receive the command output. nil discards it.
	Stdout io.Writer
	Stderr io.Writer
	// DryRun only logs the commands
	DryRun bool
	// HelperBin is the executable implementing rm, mkdir, mv and cp. Leave empty to use
	// whatever is in PATH.
	HelperBin string
	// Fields are added to every log line
	Fields map[string]interface{}
}

func (r *Runner) environ() expand.Environ {
	overrides := make(map[string]bool, len(r.Env))
	for _, item := range r.Env {
		overrides[strings.SplitN(item, "=", 2)[0]] = true
	}

	envVars := make([]string, 0, len(r.Env))
	for _, item := range os.Environ() {
		if !overrides[strings.SplitN(item, "=", 2)[0]] {
			envVars = append(envVars, item)
		}
	}
	envVars = append(envVars, r.Env...)

	return expand.ListEnviron(envVars...)
}

var defaultExecHandler = interp.DefaultExecHandler(2)

func (r *Runner) execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 && r.HelperBin != "" && helperCommands[args[0]] {
		args = append([]string{r.HelperBin}, args...)
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// Parse splits script into statements
func Parse(script, name string) ([]*syntax.Stmt, error) {
	result, err := syntax.NewParser().Parse(strings.NewReader(script), name)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", script)
	}

	return result.Stmts, nil
}

// Run parses script and executes it statement by statement. Execution stops at the first failing
// statement. In dry run mode the statements are only logged and Dir doesn't have to exist.
func (r *Runner) Run(ctx context.Context, script string) error {
	stmts, err := Parse(script, "command")
	if err != nil {
		return err
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}
	cmdlines := make([]string, len(stmts))
	for idx, stmt := range stmts {
		strBuffer.Reset()
		printer.Print(&strBuffer, stmt)
		cmdlines[idx] = strBuffer.String()
	}

	if r.DryRun {
		for _, cmdline := range cmdlines {
			r.logCommand(ctx, cmdline)
		}
		return nil
	}

	stdout := r.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := r.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	runner, err := interp.New(
		interp.Dir(r.Dir),
		interp.Env(r.environ()),
		interp.ExecHandler(r.execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, stdout, stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	for idx, stmt := range stmts {
		cmdline := cmdlines[idx]
		r.logCommand(ctx, cmdline)

		err = runner.Run(ctx, stmt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if status, ok := interp.IsExitStatus(err); ok {
				return &ExitError{Status: status, Command: cmdline}
			}
			return eris.Wrapf(err, "Failed to run %s", cmdline)
		}

		if runner.Exited() {
			return nil
		}
	}

	return ctx.Err()
}

func (r *Runner) logCommand(ctx context.Context, cmdline string) {
	Log(ctx).Info().
		Fields(r.Fields).
		Bool("command", true).
		Msg(cmdline)
}

// RunArgs quotes args and runs them as a single command
func (r *Runner) RunArgs(ctx context.Context, args ...string) error {
	cmdline, err := Quote(args...)
	if err != nil {
		return err
	}

	return r.Run(ctx, cmdline)
}

// Quote turns an argument list into a shell command line. Leading KEY=VALUE items become
// variable assignments for the command.
func Quote(args ...string) (string, error) {
	assigns := make([]*syntax.Assign, 0)
	for _, arg := range args {
		pos := strings.Index(arg, "=")
		if pos < 1 || !syntax.ValidName(arg[:pos]) {
			break
		}

		assigns = append(assigns, &syntax.Assign{
			Name:  &syntax.Lit{Value: arg[:pos]},
			Value: quoteWord(arg[pos+1:]),
		})
	}

	words := args[len(assigns):]
	if len(words) == 0 {
		return "", eris.New("no command given")
	}

	cmd := &syntax.CallExpr{
		Assigns: assigns,
		Args:    make([]*syntax.Word, len(words)),
	}
	for idx, word := range words {
		cmd.Args[idx] = quoteWord(word)
	}

	strBuffer := strings.Builder{}
	err := syntax.NewPrinter(syntax.Minify(true)).Print(&strBuffer, cmd)
	if err != nil {
		return "", eris.Wrap(err, "failed to print command")
	}

	return strBuffer.String(), nil
}

// QuoteWord quotes a single value so it can be spliced into a command line
func QuoteWord(value string) string {
	strBuffer := strings.Builder{}
	syntax.NewPrinter().Print(&strBuffer, quoteWord(value))
	return strBuffer.String()
}

func quoteWord(value string) *syntax.Word {
	var part syntax.WordPart
	if value == "" || strings.ContainsAny(value, " \t\n$'\"\\*?[]{}()<>|&;#~`") {
		part = &syntax.SglQuoted{Value: strings.ReplaceAll(value, "'", `'"'"'`)}
	} else {
		part = &syntax.Lit{Value: value}
	}

	return &syntax.Word{Parts: []syntax.WordPart{part}}
}
