package cmd

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/mmpack/pkg/lifecycle"
)

func hookList(hooks []lifecycle.Hook) string {
	names := make([]string, len(hooks))
	for idx, hook := range hooks {
		names[idx] = string(hook)
	}
	return strings.Join(names, ", ")
}

func sequenceCmd(seq lifecycle.Sequence) *cobra.Command {
	return &cobra.Command{
		Use:   seq.Name + " [key=value...]",
		Short: fmt.Sprintf("Runs the %s hooks", hookList(seq.Hooks)),
		Long: fmt.Sprintf(`Runs the hooks %s in this order and stops at the first failure.
Hooks that already finished are skipped unless --force is passed.`, hookList(seq.Hooks)),
		RunE: func(cmd *cobra.Command, args []string) error {
			rest, options := splitOptions(args)
			if len(rest) > 0 {
				return eris.Errorf("unexpected arguments %s", strings.Join(rest, " "))
			}

			ctx, s, err := newSession(cmd, options)
			if err != nil {
				return err
			}

			return s.driver.RunSequence(ctx, seq)
		},
	}
}

var hookCmd = &cobra.Command{
	Use:   "hook name [key=value...]",
	Short: "Runs a single lifecycle hook",
	Long: fmt.Sprintf(`Runs one hook regardless of the run log and DEB_BUILD_OPTIONS.
Valid hooks: %s`, hookList(lifecycle.Hooks)),
	RunE: func(cmd *cobra.Command, args []string) error {
		rest, options := splitOptions(args)
		if len(rest) != 1 {
			return eris.New("Expected exactly one hook name!")
		}

		hook, err := lifecycle.ParseHook(rest[0])
		if err != nil {
			return err
		}

		ctx, s, err := newSession(cmd, options)
		if err != nil {
			return err
		}

		return s.driver.RunHook(ctx, hook)
	},
}

func init() {
	for _, seq := range lifecycle.Sequences {
		rootCmd.AddCommand(sequenceCmd(seq))
	}
	rootCmd.AddCommand(hookCmd)
}
