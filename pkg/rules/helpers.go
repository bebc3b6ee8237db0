package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

// normalizePath resolves paths the way the rules file sees them: "//" and relative paths start
// at the project root, absolute paths are left alone.
func normalizePath(ctx *parserCtx, pathList ...string) string {
	result := ctx.projectRoot

	for _, path := range pathList {
		if strings.HasPrefix(path, "//") {
			result = filepath.Join(ctx.projectRoot, path[2:])
		} else if filepath.IsAbs(path) {
			result = path
		} else {
			result = filepath.Join(result, path)
		}
	}

	return filepath.Clean(result)
}

func simplifyPath(ctx *parserCtx, path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	rel, err := filepath.Rel(ctx.projectRoot, absPath)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return "//" + filepath.ToSlash(rel)
	}
	return path
}

func lookupEnv(ctx *parserCtx, key string) string {
	value, ok := ctx.rules.Env[key]
	if !ok {
		value = os.Getenv(key)
	}
	return value
}

// stringOrPath accepts both plain strings and values returned by resolve_path()
func stringOrPath(value starlark.Value, ctx *parserCtx) (string, error) {
	switch value := value.(type) {
	case starlark.String:
		return value.GoString(), nil
	case StarlarkPath:
		encoded := string(value)
		if rel, err := filepath.Rel(ctx.projectRoot, encoded); err == nil && !strings.HasPrefix(rel, "..") {
			encoded = rel
		}
		return filepath.ToSlash(encoded), nil
	}

	return "", eris.Errorf("got %s, want string or path", value.Type())
}

func position(thread *starlark.Thread) string {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	return fmt.Sprintf("%s:%d:%d", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col)
}

func info(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	logger := ctx.logger()
	logger.Info().Msgf("%s: %s", position(thread), fmt.Sprintf(msg, args...))
}

func warn(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	logger := ctx.logger()
	logger.Warn().Msgf("%s: %s", position(thread), fmt.Sprintf(msg, args...))
}
