// Package lifecycle drives the packaging hooks (clean, build, test, install, builddeb) in the
// fixed order debhelper's dh sequencer uses.
package lifecycle

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Hook names one lifecycle step
type Hook string

const (
	HookClean    Hook = "clean"
	HookBuild    Hook = "build"
	HookTest     Hook = "test"
	HookInstall  Hook = "install"
	HookBuildDeb Hook = "builddeb"
)

// Hooks lists every hook in lifecycle order
var Hooks = []Hook{HookClean, HookBuild, HookTest, HookInstall, HookBuildDeb}

// HookNames returns Hooks as strings
func HookNames() []string {
	result := make([]string, len(Hooks))
	for idx, hook := range Hooks {
		result[idx] = string(hook)
	}
	return result
}

// ParseHook validates a hook name
func ParseHook(name string) (Hook, error) {
	for _, hook := range Hooks {
		if string(hook) == name {
			return hook, nil
		}
	}

	return "", eris.Errorf("unknown hook %s (must be one of %s)", name, strings.Join(HookNames(), ", "))
}

// Sequence is a named subset of the hooks
type Sequence struct {
	Name  string
	Hooks []Hook
}

// Sequences lists the lifecycle commands
var Sequences = []Sequence{
	{Name: "clean", Hooks: []Hook{HookClean}},
	{Name: "build", Hooks: []Hook{HookBuild, HookTest}},
	{Name: "install", Hooks: []Hook{HookBuild, HookTest, HookInstall}},
	{Name: "binary", Hooks: []Hook{HookBuild, HookTest, HookInstall, HookBuildDeb}},
}

// FindSequence looks up a sequence by name
func FindSequence(name string) (Sequence, error) {
	for _, seq := range Sequences {
		if seq.Name == name {
			return seq, nil
		}
	}

	return Sequence{}, eris.Errorf("unknown sequence %s", name)
}

// buildOption reports whether the DEB_BUILD_OPTIONS value opts contains name
func buildOption(opts, name string) bool {
	for _, item := range strings.Fields(strings.ReplaceAll(opts, ",", " ")) {
		if item == name || strings.HasPrefix(item, name+"=") {
			return true
		}
	}
	return false
}
