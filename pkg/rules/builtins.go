package rules

import (
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"

	"github.com/ngld/mmpack/pkg/shell"
)

func resolvePath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, eris.Errorf("%s: unexpected keyword arguments", fn.Name())
	}

	if len(args) < 1 {
		return nil, eris.Errorf("%s: expects at least one argument", fn.Name())
	}

	parts := make([]string, len(args))
	for idx, path := range args {
		value, ok := path.(starlark.String)
		if !ok {
			return nil, eris.Errorf("%s: only accepts string arguments but argument %d was a %s", fn.Name(), idx, path.Type())
		}
		parts[idx] = value.GoString()
	}

	return StarlarkPath(normalizePath(getCtx(thread), parts...)), nil
}

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	info(thread, "%s", message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	warn(thread, "%s", message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue string
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.Errorf("%s: can only be called in the global scope", fn.Name())
	}

	ctx.rules.Options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return starlark.String(defaultValue), nil
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key)
	if err != nil {
		return nil, err
	}

	return starlark.String(lookupEnv(getCtx(thread), key)), nil
}

func setenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var value string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &key, &value)
	if err != nil {
		return nil, err
	}

	getCtx(thread).rules.Env[key] = value
	return starlark.True, nil
}

func prependPathDir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 1 || len(kwargs) > 0 {
		return nil, eris.Errorf("%s: got %d arguments, want 1", fn.Name(), len(args))
	}

	ctx := getCtx(thread)
	pathDir, err := stringOrPath(args[0], ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: for parameter 1", fn.Name())
	}

	newPath := normalizePath(ctx, pathDir) + string(os.PathListSeparator) + lookupEnv(ctx, "PATH")
	ctx.rules.Env["PATH"] = newPath

	return starlark.String(newPath), nil
}

func readYaml(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var yamlFile string
	var yamlKey string
	var defaultValue starlark.Value = starlark.None

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &yamlFile, &yamlKey, &defaultValue)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	yamlFile = normalizePath(ctx, yamlFile)

	doc, loaded := ctx.yamlCache[yamlFile]
	if !loaded {
		content, err := os.ReadFile(yamlFile)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to open file %s", yamlFile)
		}

		err = yaml.Unmarshal(content, &doc)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse file %s", yamlFile)
		}
		ctx.yamlCache[yamlFile] = doc
	}

	value := reflect.ValueOf(doc)
	for _, key := range strings.Split(yamlKey, ".") {
		if value.Kind() == reflect.Interface {
			value = value.Elem()
		}

		switch value.Kind() {
		case reflect.Map:
			value = value.MapIndex(reflect.ValueOf(key))
		case reflect.Slice:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= value.Len() {
				return defaultValue, nil
			}
			value = value.Index(idx)
		case reflect.Invalid:
			return defaultValue, nil
		default:
			return nil, eris.Errorf("encountered unexpected value of kind %v in YAML document", value.Kind())
		}
	}

	if !value.IsValid() || (value.Kind() == reflect.Interface && value.IsNil()) {
		return defaultValue, nil
	}

	switch value := value.Interface().(type) {
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case bool:
		return starlark.Bool(value), nil
	case float64:
		return starlark.Float(value), nil
	case nil:
		return defaultValue, nil
	default:
		return nil, eris.Errorf("can't return value %v", value)
	}
}

func starIsdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dirPath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dirPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(normalizePath(getCtx(thread), dirPath))
	return starlark.Bool(err == nil && info.IsDir()), nil
}

func starIsfile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var filePath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &filePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(normalizePath(getCtx(thread), filePath))
	return starlark.Bool(err == nil && info.Mode().IsRegular()), nil
}

// toCommand converts a single cmds entry. Strings are shell scripts, lists and tuples are argv
// vectors which get quoted.
func toCommand(ctx *parserCtx, item starlark.Value) (string, error) {
	switch value := item.(type) {
	case starlark.String:
		_, err := shell.Parse(value.GoString(), "rules")
		if err != nil {
			return "", err
		}
		return value.GoString(), nil
	case starlark.Tuple, *starlark.List:
		seq := value.(starlark.Indexable)
		parts := make([]string, seq.Len())
		for idx := 0; idx < seq.Len(); idx++ {
			part, err := stringOrPath(seq.Index(idx), ctx)
			if err != nil {
				return "", eris.Wrapf(err, "argument %d", idx)
			}
			parts[idx] = part
		}

		return shell.Quote(parts...)
	}

	return "", eris.Errorf("unexpected type %s. Only strings, tuples and lists are valid", item.Type())
}

func makeHookBuiltin(after bool) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var hook string
		var cmds *starlark.List

		err := starlark.UnpackArgs(fn.Name(), args, kwargs, "hook", &hook, "cmds", &cmds)
		if err != nil {
			return nil, err
		}

		ctx := getCtx(thread)
		if !ctx.validHooks[hook] {
			return nil, eris.Errorf("%s: unknown hook %s", fn.Name(), hook)
		}

		ext, ok := ctx.rules.Hooks[hook]
		if !ok {
			ext = &Extension{}
			ctx.rules.Hooks[hook] = ext
		}

		origin := position(thread)
		for idx := 0; idx < cmds.Len(); idx++ {
			script, err := toCommand(ctx, cmds.Index(idx))
			if err != nil {
				return nil, eris.Wrapf(err, "%s: failed to process command #%d", fn.Name(), idx)
			}

			cmd := Command{Script: script, Origin: origin}
			if after {
				ext.After = append(ext.After, cmd)
			} else {
				ext.Before = append(ext.Before, cmd)
			}
		}

		return starlark.None, nil
	}
}

func hookNames(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	items := make(starlark.Tuple, len(ctx.hookOrder))
	for idx, name := range ctx.hookOrder {
		items[idx] = starlark.String(name)
	}
	return items, nil
}

func relPath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var base, target starlark.Value

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &base, &target)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	baseStr, err := stringOrPath(base, ctx)
	if err != nil {
		return nil, err
	}
	targetStr, err := stringOrPath(target, ctx)
	if err != nil {
		return nil, err
	}

	result, err := filepath.Rel(normalizePath(ctx, baseStr), normalizePath(ctx, targetStr))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: failed", fn.Name())
	}

	return starlark.String(filepath.ToSlash(result)), nil
}
