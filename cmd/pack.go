package cmd

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/mmpack/pkg"
	"github.com/ngld/mmpack/pkg/archive"
)

var packCmd = &cobra.Command{
	Use:   "pack archive_name [content_directory]",
	Short: "Packs the matching files of a directory into a compressed tarball",
	Long: `Pass the name of the archive that should be generated and a directory with
the intended contents. The compression is picked from the archive extension
(.tar.gz, .tar.xz, .tar.br or .tar). With --list, the entries of an existing archive
are printed instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := cmd.Flags().GetBool("list")
		if err != nil {
			return err
		}

		if list {
			if len(args) != 1 {
				return eris.New("Expected 1 argument!")
			}

			entries, err := archive.List(args[0])
			if err != nil {
				return err
			}

			for _, entry := range entries {
				if entry.Link != "" {
					fmt.Printf("%s %8d %s -> %s\n", entry.Mode, entry.Size, entry.Name, entry.Link)
				} else {
					fmt.Printf("%s %8d %s\n", entry.Mode, entry.Size, entry.Name)
				}
			}
			return nil
		}

		if len(args) != 2 {
			return eris.New("Expected 2 arguments!")
		}

		suffix, err := cmd.Flags().GetString("suffix")
		if err != nil {
			return err
		}

		codec, err := cmd.Flags().GetString("codec")
		if err != nil {
			return err
		}

		result, err := archive.Pack(cmd.Context(), archive.Options{
			Source:   args[1],
			Suffix:   suffix,
			Dest:     args[0],
			Codec:    codec,
			Progress: os.Stderr,
		})
		if err != nil {
			return err
		}

		pkg.PrintTask(fmt.Sprintf("Packed %d files into %s", result.Entries, result.Path))
		return nil
	},
}

func init() {
	packCmd.Flags().StringP("suffix", "s", ".py", "only pack files ending in this suffix (empty packs everything)")
	packCmd.Flags().String("codec", "", "override the compression (gzip, xz, br, none)")
	packCmd.Flags().BoolP("list", "l", false, "list the contents of an archive")

	rootCmd.AddCommand(packCmd)
}
