package rules

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
)

// Command is a shell command declared by the rules file
type Command struct {
	Script string
	// Origin points to the call that declared the command (file:line:col)
	Origin string
}

// Extension holds the commands which run around a lifecycle hook
type Extension struct {
	Before []Command
	After  []Command
}

// ScriptOption is a key=value option declared with option()
type ScriptOption struct {
	DefaultValue string
	Help         string
}

// Rules is the evaluated rules file
type Rules struct {
	// Hooks maps hook names to their extensions
	Hooks map[string]*Extension
	// Env contains the variables set with setenv() and prepend_path()
	Env map[string]string
	// Options lists the declared options
	Options map[string]ScriptOption
}

// Empty returns the rules used when there's no rules file
func Empty() *Rules {
	return &Rules{
		Hooks:   map[string]*Extension{},
		Env:     map[string]string{},
		Options: map[string]ScriptOption{},
	}
}

// For returns the extension for hook. The result is never nil.
func (r *Rules) For(hook string) *Extension {
	ext, ok := r.Hooks[hook]
	if !ok {
		return &Extension{}
	}
	return ext
}

// EnvList returns Env as KEY=VALUE pairs
func (r *Rules) EnvList() []string {
	result := make([]string, 0, len(r.Env))
	for name, value := range r.Env {
		result = append(result, fmt.Sprintf("%s=%s", name, value))
	}
	return result
}

// StarlarkPath is returned by resolve_path() and marks a value as a filesystem path
type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}
