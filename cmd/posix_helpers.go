package cmd

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/mmpack/pkg/fsutil"
)

// expandArgs resolves glob patterns on Windows where the shell doesn't do it for us
func expandArgs(args []string, allowEmpty bool) ([]string, error) {
	if runtime.GOOS != "windows" {
		return args, nil
	}

	items := []string{}
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", arg)
		}

		if matches == nil {
			if allowEmpty {
				continue
			}
			return nil, eris.Errorf("Pattern %s produced no matches", arg)
		}

		items = append(items, matches...)
	}

	return items, nil
}

var mvCmd = &cobra.Command{
	Use:   "mv",
	Short: "Cross-platform implementation of the POSIX mv command",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 {
			return eris.New("Not enough parameters")
		}

		items, err := expandArgs(args[:len(args)-1], false)
		if err != nil {
			return err
		}

		return fsutil.Move(items, args[len(args)-1])
	},
}

var cpCmd = &cobra.Command{
	Use:   "cp",
	Short: "A cross-platform implementation of the POSIX cp command",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 {
			return eris.New("Not enough parameters")
		}

		recursive, err := cmd.Flags().GetBool("recursive")
		if err != nil {
			return err
		}

		items, err := expandArgs(args[:len(args)-1], false)
		if err != nil {
			return err
		}

		dest := filepath.Clean(args[len(args)-1])
		destIsDir := fsutil.IsDir(dest)
		if len(items) > 1 && !destIsDir {
			return eris.Errorf("Can't copy multiple items to %s because it is not a directory!", dest)
		}

		for _, item := range items {
			info, err := os.Stat(item)
			if err != nil {
				return eris.Wrapf(err, "Could not stat %s", item)
			}

			itemDest := dest
			if destIsDir {
				itemDest = filepath.Join(dest, filepath.Base(item))
			}

			if info.IsDir() {
				if !recursive {
					return eris.Errorf("%s is a directory but -r wasn't passed", item)
				}
				err = fsutil.CopyTree(item, itemDest)
			} else {
				err = fsutil.CopyFile(item, itemDest, info.Mode().Perm())
			}
			if err != nil {
				return err
			}
		}

		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm",
	Short: "A cross-platform implementation of the POSIX rm command",
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, err := cmd.Flags().GetBool("recursive")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		items, err := expandArgs(args, force)
		if err != nil {
			return err
		}

		for _, item := range items {
			info, err := os.Stat(item)
			if err != nil {
				if force && eris.Is(err, os.ErrNotExist) {
					continue
				}
				return eris.Wrapf(err, "Could not stat %s", item)
			}

			if info.IsDir() && !recursive {
				return eris.Errorf("%s is a directory but -r wasn't passed", item)
			}
		}

		for _, item := range items {
			err := fsutil.RemoveTree(item)
			if err != nil {
				return err
			}
		}

		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir",
	Short: "A cross-platform implementation of the POSIX mkdir command",
	RunE: func(cmd *cobra.Command, args []string) error {
		makeParents, err := cmd.Flags().GetBool("parents")
		if err != nil {
			return err
		}

		for _, item := range args {
			if makeParents {
				err = fsutil.EnsureDir(item)
			} else {
				err = os.Mkdir(item, 0755)
				if err != nil {
					err = eris.Wrapf(err, "Failed to create %s", item)
				}
			}

			if err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	rmCmd.Flags().BoolP("recursive", "r", false, "recursively delete directories")
	rmCmd.Flags().BoolP("force", "f", false, "suppresses errors caused by missing files/folders")
	cpCmd.Flags().BoolP("recursive", "r", false, "recursively copy directories")
	mkdirCmd.Flags().BoolP("parents", "p", false, "create parent directories as needed")

	for _, helper := range []*cobra.Command{mvCmd, cpCmd, rmCmd, mkdirCmd} {
		helper.Hidden = true
		rootCmd.AddCommand(helper)
	}
}
