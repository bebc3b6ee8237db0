package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/mmpack/pkg"
	"github.com/ngld/mmpack/pkg/config"
	"github.com/ngld/mmpack/pkg/lifecycle"
	"github.com/ngld/mmpack/pkg/rules"
	"github.com/ngld/mmpack/pkg/shell"
)

var rootCmd = &cobra.Command{
	Use:   "mmpack",
	Short: "Packaging lifecycle for mastermind",
	Long: `mmpack drives the Debian packaging hooks of mastermind (clean, build, test, install
and builddeb) and builds the source tarball shipped in the package.

Trailing key=value arguments are passed to options declared by debian/rules.star.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var logger = zerolog.New(NewConsoleWriter(os.Stderr))

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("project", "C", "", "project root (default: nearest parent directory containing debian/)")
	flags.String("config", "", "config file (default: mmpack.toml in the project root)")
	flags.BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	flags.Bool("force", false, "ignore the run log and run every hook of the sequence")
	flags.String("log-level", "", "override log.level")
	flags.Bool("json", false, "print log events as JSON lines")
}

// session bundles everything a lifecycle command needs
type session struct {
	driver *lifecycle.Driver
	rules  *rules.Rules
}

func splitOptions(args []string) ([]string, map[string]string) {
	rest := make([]string, 0, len(args))
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > 0 {
			options[part[:pos]] = part[pos+1:]
		} else {
			rest = append(rest, part)
		}
	}

	return rest, options
}

func setupLogger(cfg *config.Config, jsonOut bool) {
	var out io.Writer = NewConsoleWriter(os.Stderr)
	if jsonOut || cfg.Log.JSON {
		out = os.Stderr
		zerolog.ErrorMarshalFunc = func(err error) interface{} {
			return eris.ToJSON(err, true)
		}
	}

	logger = zerolog.New(out).
		Level(cfg.LogLevel()).
		With().
		Str("run", nanoid.New()).
		Logger()
}

func newSession(cmd *cobra.Command, options map[string]string) (context.Context, *session, error) {
	flags := cmd.Flags()
	projectDir, err := flags.GetString("project")
	if err != nil {
		return nil, nil, err
	}
	configFile, err := flags.GetString("config")
	if err != nil {
		return nil, nil, err
	}
	dryRun, err := flags.GetBool("dry")
	if err != nil {
		return nil, nil, err
	}
	force, err := flags.GetBool("force")
	if err != nil {
		return nil, nil, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return nil, nil, err
	}
	jsonOut, err := flags.GetBool("json")
	if err != nil {
		return nil, nil, err
	}

	root := projectDir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil, eris.Wrap(err, "Failed to retrieve the current working directory")
		}

		root, err = pkg.FindProjectRoot(wd)
		if err != nil {
			return nil, nil, err
		}
	}

	cfg, loader := config.Loader(root, configFile)
	err = loader.Load()
	if err != nil {
		return nil, nil, eris.Wrap(err, "Failed to load config")
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	err = cfg.Validate()
	if err != nil {
		return nil, nil, err
	}

	setupLogger(cfg, jsonOut)
	ctx := shell.WithLogger(cmd.Context(), &logger)

	r, err := rules.Load(ctx, cfg.Paths.Rules, root, options, lifecycle.HookNames())
	if err != nil {
		return nil, nil, err
	}

	helperBin, err := os.Executable()
	if err != nil {
		logger.Warn().Err(err).Msg("Could not locate the mmpack binary, rm/mkdir/mv/cp will use the system tools")
		helperBin = ""
	}

	var progress io.Writer = os.Stderr
	if jsonOut || cfg.Log.JSON {
		progress = nil
	}

	driver, err := lifecycle.New(cfg, root, r, lifecycle.Options{
		DryRun:       dryRun,
		Force:        force,
		HelperBin:    helperBin,
		BuildOptions: os.Getenv("DEB_BUILD_OPTIONS"),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Progress:     progress,
	})
	if err != nil {
		return nil, nil, err
	}

	return ctx, &session{
		driver: driver,
		rules:  r,
	}, nil
}

// exitCode maps an error returned by a command to the process exit status
func exitCode(err error) int {
	var stepErr *lifecycle.StepError
	if errors.As(err, &stepErr) {
		return stepErr.ExitCode()
	}
	return 1
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("mmpack failed")
		cancel()
		os.Exit(exitCode(err))
	}
}
