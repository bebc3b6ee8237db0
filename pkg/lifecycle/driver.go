package lifecycle

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ngld/mmpack/pkg/config"
	"github.com/ngld/mmpack/pkg/rules"
	"github.com/ngld/mmpack/pkg/shell"
)

// Options controls how the driver executes hooks
type Options struct {
	// DryRun logs the delegated commands without running them
	DryRun bool
	// Force ignores the run log and reruns every hook of a sequence
	Force bool
	// HelperBin implements rm, mkdir, mv and cp for the shell runner
	HelperBin string
	// BuildOptions is the value of DEB_BUILD_OPTIONS
	BuildOptions string
	Stdout       io.Writer
	Stderr       io.Writer
	// Progress receives the archive progress bar. nil hides it.
	Progress io.Writer
}

// Driver runs hooks for one project
type Driver struct {
	cfg   *config.Config
	root  string
	rules *rules.Rules
	opts  Options
}

// New creates a driver for the project at root. r may be nil.
func New(cfg *config.Config, root string, r *rules.Rules, opts Options) (*Driver, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to resolve %s", root)
	}

	if r == nil {
		r = rules.Empty()
	}

	return &Driver{
		cfg:   cfg,
		root:  root,
		rules: r,
		opts:  opts,
	}, nil
}

// path resolves a configured path against the project root
func (d *Driver) path(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(d.root, p)
}

func (d *Driver) runner(dir string, hook Hook) *shell.Runner {
	return &shell.Runner{
		Dir:       dir,
		Env:       d.rules.EnvList(),
		Stdout:    d.opts.Stdout,
		Stderr:    d.opts.Stderr,
		DryRun:    d.opts.DryRun,
		HelperBin: d.opts.HelperBin,
		Fields: map[string]interface{}{
			"hook": string(hook),
		},
	}
}

// expand fills the placeholders of a command template
func (d *Driver) expand(template string) string {
	return strings.NewReplacer(
		"{build}", shell.QuoteWord(d.cfg.Paths.Build),
		"{tests}", shell.QuoteWord(d.cfg.Paths.Tests),
		"{source}", shell.QuoteWord(d.cfg.Paths.Source),
		"{staging}", shell.QuoteWord(d.cfg.Paths.Staging),
		"{python}", shell.QuoteWord(d.cfg.Python.Interpreter),
		"{compression}", shell.QuoteWord(d.cfg.Deb.Compression),
		"{durations}", strconv.Itoa(d.cfg.Test.Durations),
	).Replace(template)
}

func (d *Driver) runCommands(ctx context.Context, hook Hook, cmds []rules.Command) error {
	runner := d.runner(d.root, hook)
	for _, cmd := range cmds {
		err := runner.Run(ctx, cmd.Script)
		if err != nil {
			shell.Log(ctx).Error().
				Str("hook", string(hook)).
				Msgf("command declared at %s failed", cmd.Origin)
			return err
		}
	}
	return nil
}

func (d *Driver) step(hook Hook) func(context.Context) error {
	switch hook {
	case HookClean:
		return d.clean
	case HookBuild:
		return d.build
	case HookTest:
		return d.test
	case HookInstall:
		return d.install
	case HookBuildDeb:
		return d.buildDeb
	}
	return nil
}

// RunHook executes a single hook together with the commands the rules file adds around it
func (d *Driver) RunHook(ctx context.Context, hook Hook) error {
	step := d.step(hook)
	if step == nil {
		return &StepError{Hook: hook, Err: eris.Errorf("unknown hook %s", hook)}
	}

	if err := ctx.Err(); err != nil {
		return &StepError{Hook: hook, Err: err}
	}

	shell.Log(ctx).Info().Str("hook", string(hook)).Msg("running")
	ext := d.rules.For(string(hook))

	err := d.runCommands(ctx, hook, ext.Before)
	if err == nil {
		err = step(ctx)
	}
	if err == nil {
		err = d.runCommands(ctx, hook, ext.After)
	}
	if err != nil {
		return &StepError{Hook: hook, Err: err}
	}

	return nil
}

func (d *Driver) skipTests() bool {
	return d.cfg.Test.Skip || buildOption(d.opts.BuildOptions, "nocheck")
}

// RunSequence runs the hooks of seq in order and stops at the first failure. Hooks recorded in
// the run log are skipped unless Force is set.
func (d *Driver) RunSequence(ctx context.Context, seq Sequence) error {
	logPath := d.path(d.cfg.Paths.Log)
	record := !d.opts.DryRun

	state := &runLog{Done: map[Hook]bool{}}
	if !d.opts.Force {
		var err error
		state, err = readRunLog(logPath)
		if err != nil {
			return err
		}
	}

	for _, hook := range seq.Hooks {
		if hook == HookTest && d.skipTests() {
			shell.Log(ctx).Info().Str("hook", string(hook)).Msg("skipped because of nocheck")
			continue
		}

		if hook != HookClean && state.Done[hook] {
			shell.Log(ctx).Debug().Str("hook", string(hook)).Msg("already run, skipping")
			continue
		}

		err := d.RunHook(ctx, hook)
		if err != nil {
			return err
		}

		if hook == HookClean || !record {
			continue
		}

		state.Done[hook] = true
		err = state.write(logPath)
		if err != nil {
			return err
		}
	}

	return nil
}

// Root returns the absolute project root
func (d *Driver) Root() string {
	return d.root
}

// ArchivePath returns the location of the source archive
func (d *Driver) ArchivePath() string {
	return filepath.Join(d.path(d.cfg.Paths.Staging), d.cfg.Archive.Name)
}
