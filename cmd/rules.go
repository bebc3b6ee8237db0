package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ngld/mmpack/pkg"
	"github.com/ngld/mmpack/pkg/lifecycle"
)

var rulesCmd = &cobra.Command{
	Use:   "rules [key=value...]",
	Short: "Shows the options and hook commands declared by the rules file",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, options := splitOptions(args)
		_, s, err := newSession(cmd, options)
		if err != nil {
			return err
		}

		pkg.PrintTask("Project " + s.driver.Root())
		pkg.PrintTask("Options")
		names := make([]string, 0, len(s.rules.Options))
		maxNameLen := 0
		for name := range s.rules.Options {
			names = append(names, name)
			if len(name) > maxNameLen {
				maxNameLen = len(name)
			}
		}
		sort.Strings(names)

		lineFmt := fmt.Sprintf("%%-%ds %%s (default: %%q)", maxNameLen+3)
		for _, name := range names {
			opt := s.rules.Options[name]
			pkg.PrintSubtask(fmt.Sprintf(lineFmt, name+":", opt.Help, opt.DefaultValue))
		}

		for _, hook := range lifecycle.Hooks {
			ext := s.rules.For(string(hook))
			if len(ext.Before) == 0 && len(ext.After) == 0 {
				continue
			}

			pkg.PrintTask("Hook " + string(hook))
			for _, item := range ext.Before {
				pkg.PrintSubtask("before: " + item.Script)
			}
			for _, item := range ext.After {
				pkg.PrintSubtask("after:  " + item.Script)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
