// Package rules evaluates the optional Starlark rules file (debian/rules.star). The file can run
// extra commands before or after each lifecycle hook and adjust the environment of the
// delegated tools.
package rules

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/ngld/mmpack/pkg/shell"
)

type parserCtx struct {
	ctx          context.Context
	rules        *Rules
	optionValues map[string]string
	yamlCache    map[string]interface{}
	validHooks   map[string]bool
	hookOrder    []string
	filepath     string
	projectRoot  string
	initPhase    bool
}

func (c *parserCtx) logger() *zerolog.Logger {
	return shell.Log(c.ctx)
}

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

// Load evaluates the rules file filename. options contains the key=value pairs passed on the
// command line and hooks lists the hook names before() and after() accept.
// A missing file yields Empty().
func Load(ctx context.Context, filename, projectRoot string, options map[string]string, hooks []string) (*Rules, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(filename) {
		filename = filepath.Join(projectRoot, filename)
	}

	script, err := os.ReadFile(filename)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return Empty(), nil
		}
		return nil, eris.Wrapf(err, "failed to read file %s", filename)
	}

	builtins := starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
		"resolve_path": starlark.NewBuiltin("resolve_path", resolvePath),
		"relpath":      starlark.NewBuiltin("relpath", relPath),
		"option":       starlark.NewBuiltin("option", option),
		"getenv":       starlark.NewBuiltin("getenv", getenv),
		"setenv":       starlark.NewBuiltin("setenv", setenv),
		"prepend_path": starlark.NewBuiltin("prepend_path", prependPathDir),
		"read_yaml":    starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":        starlark.NewBuiltin("isdir", starIsdir),
		"isfile":       starlark.NewBuiltin("isfile", starIsfile),
		"hooks":        starlark.NewBuiltin("hooks", hookNames),
		"before":       starlark.NewBuiltin("before", makeHookBuiltin(false)),
		"after":        starlark.NewBuiltin("after", makeHookBuiltin(true)),
	}

	threadCtx := parserCtx{
		ctx:          ctx,
		rules:        Empty(),
		optionValues: options,
		yamlCache:    make(map[string]interface{}),
		validHooks:   make(map[string]bool, len(hooks)),
		hookOrder:    hooks,
		filepath:     filename,
		projectRoot:  projectRoot,
		initPhase:    true,
	}
	for _, name := range hooks {
		threadCtx.validHooks[name] = true
	}

	thread := &starlark.Thread{
		Name: "rules",
		Print: func(thread *starlark.Thread, msg string) {
			threadCtx.logger().Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	thread.SetLocal("parserCtx", &threadCtx)

	displayName := simplifyPath(&threadCtx, filename)
	globals, err := starlark.ExecFile(thread, displayName, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", displayName, evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed to execute %s", displayName)
	}

	// configure() is optional; it runs after all options have been declared
	if configure, ok := globals["configure"]; ok {
		configureFunc, ok := configure.(starlark.Callable)
		if !ok {
			return nil, eris.Errorf("%s did declare a configure value but it's not a function", displayName)
		}

		threadCtx.initPhase = false
		_, err = starlark.Call(thread, configureFunc, starlark.Tuple{}, nil)
		if err != nil {
			if evalError, ok := err.(*starlark.EvalError); ok {
				return nil, eris.New(evalError.Backtrace())
			}
			return nil, eris.Wrapf(err, "failed configure call in %s", displayName)
		}
	}

	for name := range options {
		if _, declared := threadCtx.rules.Options[name]; !declared {
			threadCtx.logger().Warn().Msgf("option %s was passed but %s doesn't declare it", name, displayName)
		}
	}

	return threadCtx.rules, nil
}
