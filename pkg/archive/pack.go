// Package archive builds the source tarball shipped with the package: every file below a source
// directory whose name ends in a given suffix, stored relative to that directory.
package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
)

// Options describes one archive run
type Options struct {
	// Source is the directory whose files are packed
	Source string
	// Suffix selects the files to pack. An empty suffix packs every regular file.
	Suffix string
	// Dest is the path of the generated archive
	Dest string
	// Codec overrides the compression detected from Dest
	Codec string
	// Progress receives a progress bar. nil disables it.
	Progress io.Writer
}

// Result describes a finished archive
type Result struct {
	Path  string
	Files []string
	// Entries is the number of tar entries written
	Entries int
}

// Collect returns the slash-separated paths (relative to root) of all regular files and symlinks
// below root whose name ends in suffix. Symlinked directories aren't followed. The result is
// sorted lexically.
func Collect(root, suffix string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, eris.Wrapf(err, "Could not find source directory %s", root)
	}

	if !info.IsDir() {
		return nil, eris.Errorf("%s is not a directory", root)
	}

	result := []string{}
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return eris.Wrapf(err, "Failed to read %s", path)
		}

		isLink := info.Mode()&os.ModeSymlink != 0
		if (!info.Mode().IsRegular() && !isLink) || !strings.HasSuffix(info.Name(), suffix) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return eris.Wrapf(err, "Failed to relativize %s", path)
		}

		result = append(result, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SourceDateEpoch parses the SOURCE_DATE_EPOCH environment variable. The zero time is returned
// if it's unset.
func SourceDateEpoch() (time.Time, error) {
	raw := os.Getenv("SOURCE_DATE_EPOCH")
	if raw == "" {
		return time.Time{}, nil
	}

	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "Invalid SOURCE_DATE_EPOCH %s", raw)
	}

	return time.Unix(secs, 0).UTC(), nil
}

func newProgressBar(out io.Writer, length int, desc string) *progressbar.ProgressBar {
	if out == nil || os.Getenv("CI") == "true" {
		return progressbar.NewOptions(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(length,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			io.WriteString(out, "\n")
		}),
	)
}

// Pack collects the matching files and writes them to opts.Dest
func Pack(ctx context.Context, opts Options) (*Result, error) {
	codec, err := ParseCodec(opts.Codec, opts.Dest)
	if err != nil {
		return nil, err
	}

	files, err := Collect(opts.Source, opts.Suffix)
	if err != nil {
		return nil, err
	}

	epoch, err := SourceDateEpoch()
	if err != nil {
		return nil, err
	}

	writer, err := NewWriter(opts.Dest, codec)
	if err != nil {
		return nil, err
	}
	writer.ClampModTime(epoch)

	bar := newProgressBar(opts.Progress, len(files), "packing "+filepath.Base(opts.Dest))
	for _, name := range files {
		if err = ctx.Err(); err != nil {
			writer.Abort()
			return nil, err
		}

		err = writer.WriteFile(name, filepath.Join(opts.Source, filepath.FromSlash(name)))
		if err != nil {
			writer.Abort()
			return nil, err
		}
		bar.Add(1)
	}
	bar.Finish()

	err = writer.Close()
	if err != nil {
		return nil, err
	}

	return &Result{
		Path:    opts.Dest,
		Files:   files,
		Entries: writer.Count(),
	}, nil
}
