package lifecycle

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/ngld/mmpack/pkg/archive"
	"github.com/ngld/mmpack/pkg/fsutil"
	"github.com/ngld/mmpack/pkg/shell"
)

func (d *Driver) clean(ctx context.Context) error {
	buildDir := d.path(d.cfg.Paths.Build)
	shell.Log(ctx).Info().Str("hook", string(HookClean)).Str("path", buildDir).Msgf("removing %s", buildDir)

	if !d.opts.DryRun {
		err := fsutil.RemoveTree(buildDir)
		if err != nil {
			return err
		}

		err = removeRunLog(d.path(d.cfg.Paths.Log))
		if err != nil {
			return err
		}
	}

	return d.runner(d.root, HookClean).Run(ctx, d.expand(d.cfg.Commands.Clean))
}

func (d *Driver) build(ctx context.Context) error {
	return d.runner(d.root, HookBuild).Run(ctx, d.expand(d.cfg.Commands.Build))
}

// testArgs returns the pytest invocation for the copy of the test directory
func (d *Driver) testArgs() []string {
	return []string{
		d.cfg.Python.Interpreter, "-m", "pytest",
		"-v", "-l", "-x",
		"--durations=" + strconv.Itoa(d.cfg.Test.Durations),
		filepath.Base(d.path(d.cfg.Paths.Tests)),
	}
}

func (d *Driver) test(ctx context.Context) error {
	buildDir := d.path(d.cfg.Paths.Build)
	testDir := d.path(d.cfg.Paths.Tests)

	if !d.opts.DryRun {
		if !fsutil.IsDir(buildDir) {
			return eris.Errorf("build directory %s does not exist, run the build hook first", buildDir)
		}

		err := fsutil.CopyTree(testDir, filepath.Join(buildDir, filepath.Base(testDir)))
		if err != nil {
			return err
		}
	}

	return d.runner(buildDir, HookTest).RunArgs(ctx, d.testArgs()...)
}

func (d *Driver) install(ctx context.Context) error {
	stagingDir := d.path(d.cfg.Paths.Staging)
	dest := d.ArchivePath()
	logger := shell.Log(ctx)

	if d.opts.DryRun {
		logger.Info().Str("hook", string(HookInstall)).Str("path", dest).Msgf("would pack %s", dest)
	} else {
		err := fsutil.EnsureDir(stagingDir)
		if err != nil {
			return err
		}

		result, err := archive.Pack(ctx, archive.Options{
			Source:   d.path(d.cfg.Paths.Source),
			Suffix:   d.cfg.Archive.Suffix,
			Dest:     dest,
			Codec:    d.cfg.Archive.Codec,
			Progress: d.opts.Progress,
		})
		if err != nil {
			return eris.Wrap(err, "failed to build source archive")
		}

		logger.Info().
			Str("hook", string(HookInstall)).
			Str("path", dest).
			Int("files", result.Entries).
			Msgf("packed %d files into %s", result.Entries, dest)
	}

	runner := d.runner(d.root, HookInstall)
	err := runner.Run(ctx, d.expand(d.cfg.Commands.Install))
	if err != nil {
		return err
	}

	if d.cfg.Install.BashCompletion {
		return runner.Run(ctx, d.expand(d.cfg.Commands.BashCompletion))
	}
	return nil
}

func (d *Driver) buildDeb(ctx context.Context) error {
	return d.runner(d.root, HookBuildDeb).Run(ctx, d.expand(d.cfg.Commands.BuildDeb))
}
