package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/mmpack/pkg/archive"
	"github.com/ngld/mmpack/pkg/config"
	"github.com/ngld/mmpack/pkg/rules"
	"github.com/ngld/mmpack/pkg/shell"
)

type project struct {
	root   string
	cfg    *config.Config
	stdout *bytes.Buffer
	logs   *bytes.Buffer
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newProject(t *testing.T) *project {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "src", "cocaine-app", "balancer.py"), "import storage\n")
	writeFile(t, filepath.Join(root, "src", "cocaine-app", "jobs", "job_factory.py"), "")
	writeFile(t, filepath.Join(root, "src", "cocaine-app", "cocaine-app.conf"), "{}")
	writeFile(t, filepath.Join(root, "tests", "test_balancer.py"), "def test_ok(): pass\n")

	cfg, err := config.Load(root, "")
	require.NoError(t, err)

	cfg.Commands.Clean = "echo clean >> trace.log"
	cfg.Commands.Build = "mkdir -p {build} && echo build >> trace.log"
	cfg.Commands.Install = "echo install >> trace.log"
	cfg.Commands.BashCompletion = "echo completion >> trace.log"
	cfg.Commands.BuildDeb = "echo dh_builddeb -- -Z{compression} >> trace.log"
	cfg.Python.Interpreter = "echo"

	return &project{
		root:   root,
		cfg:    cfg,
		stdout: &bytes.Buffer{},
		logs:   &bytes.Buffer{},
	}
}

func (p *project) driver(t *testing.T, r *rules.Rules, opts Options) *Driver {
	t.Helper()
	opts.Stdout = p.stdout
	d, err := New(p.cfg, p.root, r, opts)
	require.NoError(t, err)
	return d
}

func (p *project) ctx() context.Context {
	logger := zerolog.New(p.logs)
	return shell.WithLogger(context.Background(), &logger)
}

func (p *project) trace(t *testing.T) []string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(p.root, "trace.log"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(content)), "\n")
}

func sequence(t *testing.T, name string) Sequence {
	t.Helper()
	seq, err := FindSequence(name)
	require.NoError(t, err)
	return seq
}

func TestBinarySequence(t *testing.T) {
	p := newProject(t)
	d := p.driver(t, nil, Options{})

	require.NoError(t, d.RunSequence(p.ctx(), sequence(t, "binary")))

	assert.Equal(t, []string{"build", "install", "completion", "dh_builddeb -- -Zgzip"}, p.trace(t))
	assert.Equal(t, "-m pytest -v -l -x --durations=20 tests\n", p.stdout.String())
	assert.FileExists(t, filepath.Join(p.root, "build", "tests", "test_balancer.py"))

	entries, err := archive.List(filepath.Join(p.root, "debian", "tmp", "mastermind.tar.gz"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "balancer.py", entries[0].Name)
	assert.Equal(t, "jobs/job_factory.py", entries[1].Name)
}

func TestCleanTwice(t *testing.T) {
	p := newProject(t)
	writeFile(t, filepath.Join(p.root, "build", "lib", "balancer.py"), "")
	d := p.driver(t, nil, Options{})

	require.NoError(t, d.RunSequence(p.ctx(), sequence(t, "clean")))
	require.NoError(t, d.RunSequence(p.ctx(), sequence(t, "clean")))

	assert.NoDirExists(t, filepath.Join(p.root, "build"))
	assert.Equal(t, []string{"clean", "clean"}, p.trace(t))
}

func TestCleanFailurePropagates(t *testing.T) {
	p := newProject(t)
	p.cfg.Commands.Clean = "exit 2"
	d := p.driver(t, nil, Options{})

	err := d.RunHook(p.ctx(), HookClean)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, HookClean, stepErr.Hook)
	assert.Equal(t, 2, stepErr.ExitCode())
}

func TestInstallWithExistingStaging(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.MkdirAll(filepath.Join(p.root, "debian", "tmp"), 0755))
	d := p.driver(t, nil, Options{})

	require.NoError(t, d.RunHook(p.ctx(), HookInstall))
	require.NoError(t, d.RunHook(p.ctx(), HookInstall))
	assert.FileExists(t, d.ArchivePath())
}

func TestInstallWithoutSources(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.RemoveAll(filepath.Join(p.root, "src", "cocaine-app", "balancer.py")))
	require.NoError(t, os.RemoveAll(filepath.Join(p.root, "src", "cocaine-app", "jobs")))
	d := p.driver(t, nil, Options{})

	require.NoError(t, d.RunHook(p.ctx(), HookInstall))

	entries, err := archive.List(d.ArchivePath())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInstallSkipsBashCompletion(t *testing.T) {
	p := newProject(t)
	p.cfg.Install.BashCompletion = false
	d := p.driver(t, nil, Options{})

	require.NoError(t, d.RunHook(p.ctx(), HookInstall))
	assert.Equal(t, []string{"install"}, p.trace(t))
}

func TestTestFailureStopsSequence(t *testing.T) {
	p := newProject(t)
	p.cfg.Python.Interpreter = "false"
	d := p.driver(t, nil, Options{})

	err := d.RunSequence(p.ctx(), sequence(t, "binary"))
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, HookTest, stepErr.Hook)
	assert.Equal(t, 1, stepErr.ExitCode())

	assert.Equal(t, []string{"build"}, p.trace(t))
	assert.NoFileExists(t, d.ArchivePath())
}

func TestTestRequiresBuildDirectory(t *testing.T) {
	p := newProject(t)
	d := p.driver(t, nil, Options{})

	err := d.RunHook(p.ctx(), HookTest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run the build hook first")
}

func TestTestCommand(t *testing.T) {
	p := newProject(t)
	p.cfg.Python.Interpreter = "python2.7"
	p.cfg.Test.Durations = 5
	d := p.driver(t, nil, Options{})

	assert.Equal(t, []string{"python2.7", "-m", "pytest", "-v", "-l", "-x", "--durations=5", "tests"}, d.testArgs())
}

func TestBuildDebCompression(t *testing.T) {
	t.Setenv("DPKG_DEB_COMPRESSOR_TYPE", "xz")

	cfg, err := config.Load(t.TempDir(), "")
	require.NoError(t, err)
	d, err := New(cfg, t.TempDir(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "dh_builddeb -- -Zgzip", d.expand(cfg.Commands.BuildDeb))

	p := newProject(t)
	require.NoError(t, p.driver(t, nil, Options{}).RunHook(p.ctx(), HookBuildDeb))
	assert.Equal(t, []string{"dh_builddeb -- -Zgzip"}, p.trace(t))

	cfg.Deb.Compression = "zstd"
	assert.Equal(t, "dh_builddeb -- -Zzstd", d.expand(cfg.Commands.BuildDeb))
}

func TestBuildCommandTemplate(t *testing.T) {
	cfg, err := config.Load(t.TempDir(), "")
	require.NoError(t, err)
	cfg.Paths.Build = "out dir"
	d, err := New(cfg, t.TempDir(), nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, "dh_auto_build -- --build-lib 'out dir'", d.expand(cfg.Commands.Build))
}

func TestRunLogSkipsFinishedHooks(t *testing.T) {
	p := newProject(t)
	d := p.driver(t, nil, Options{})
	ctx := p.ctx()

	require.NoError(t, d.RunSequence(ctx, sequence(t, "build")))
	require.NoError(t, d.RunSequence(ctx, sequence(t, "install")))
	assert.Equal(t, []string{"build", "install", "completion"}, p.trace(t))

	forced := p.driver(t, nil, Options{Force: true})
	require.NoError(t, forced.RunSequence(ctx, sequence(t, "build")))
	assert.Equal(t, []string{"build", "install", "completion", "build"}, p.trace(t))

	require.NoError(t, d.RunSequence(ctx, sequence(t, "clean")))
	require.NoError(t, d.RunSequence(ctx, sequence(t, "build")))
	assert.Equal(t, []string{"build", "install", "completion", "build", "clean", "build"}, p.trace(t))
}

func TestNocheck(t *testing.T) {
	p := newProject(t)
	d := p.driver(t, nil, Options{BuildOptions: "parallel=4 nocheck"})

	require.NoError(t, d.RunSequence(p.ctx(), sequence(t, "build")))
	assert.Empty(t, p.stdout.String())
	assert.Equal(t, []string{"build"}, p.trace(t))

	// running the hook directly ignores nocheck
	require.NoError(t, d.RunHook(p.ctx(), HookTest))
	assert.NotEmpty(t, p.stdout.String())
}

func TestRulesExtensions(t *testing.T) {
	p := newProject(t)
	writeFile(t, filepath.Join(p.root, "debian", "rules.star"), `
before("install", ["echo before-install >> trace.log"])
after("install", [("sh", "-c", "echo after-install >> trace.log")])
setenv("MASTERMIND_FLAVOUR", "debug")
after("build", ["echo $MASTERMIND_FLAVOUR >> trace.log"])
`)

	r, err := rules.Load(p.ctx(), p.cfg.Paths.Rules, p.root, nil, HookNames())
	require.NoError(t, err)

	d := p.driver(t, r, Options{})
	require.NoError(t, d.RunSequence(p.ctx(), sequence(t, "install")))
	assert.Equal(t, []string{"build", "debug", "before-install", "install", "completion", "after-install"}, p.trace(t))
}

func TestRulesCommandFailure(t *testing.T) {
	p := newProject(t)
	writeFile(t, filepath.Join(p.root, "debian", "rules.star"), `before("build", ["exit 7"])`)

	r, err := rules.Load(p.ctx(), p.cfg.Paths.Rules, p.root, nil, HookNames())
	require.NoError(t, err)

	err = p.driver(t, r, Options{}).RunHook(p.ctx(), HookBuild)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 7, stepErr.ExitCode())
	assert.Nil(t, p.trace(t))
}

func TestDryRun(t *testing.T) {
	p := newProject(t)
	d := p.driver(t, nil, Options{DryRun: true})

	require.NoError(t, d.RunSequence(p.ctx(), sequence(t, "binary")))
	assert.Nil(t, p.trace(t))
	assert.NoDirExists(t, filepath.Join(p.root, "build"))
	assert.NoFileExists(t, d.ArchivePath())
	assert.NoFileExists(t, filepath.Join(p.root, "debian", ".mmpack.log"))
	assert.Contains(t, p.logs.String(), "dh_builddeb -- -Zgzip")
}

func TestDryRunBuildOnFreshTree(t *testing.T) {
	p := newProject(t)
	d := p.driver(t, nil, Options{DryRun: true})

	require.NoError(t, d.RunSequence(p.ctx(), sequence(t, "build")))
	assert.NoDirExists(t, filepath.Join(p.root, "build"))
	assert.Contains(t, p.logs.String(), "-m pytest -v -l -x")
}

func TestCancelledContext(t *testing.T) {
	p := newProject(t)
	d := p.driver(t, nil, Options{})
	ctx, cancel := context.WithCancel(p.ctx())
	cancel()

	err := d.RunSequence(ctx, sequence(t, "binary"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, p.trace(t))
}

func TestParseHook(t *testing.T) {
	hook, err := ParseHook("builddeb")
	require.NoError(t, err)
	assert.Equal(t, HookBuildDeb, hook)

	_, err = ParseHook("deploy")
	assert.Error(t, err)

	_, err = FindSequence("deploy")
	assert.Error(t, err)
}
