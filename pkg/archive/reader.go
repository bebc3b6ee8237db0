package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"
)

// Entry describes a file stored in an archive
type Entry struct {
	Name string
	Size int64
	Mode os.FileMode
	// Link is the target of a symlink entry
	Link string
}

func decompressor(codec Codec, r io.Reader) (io.Reader, func() error, error) {
	noop := func() error { return nil }

	switch codec {
	case CodecGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gr, gr.Close, nil
	case CodecXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, noop, nil
	case CodecBrotli:
		return brotli.NewReader(r), noop, nil
	case CodecNone:
		return r, noop, nil
	}

	return nil, nil, eris.Errorf("unsupported archive codec %s", codec)
}

// List returns the entries of the archive at path in stored order
func List(path string) ([]Entry, error) {
	codec, err := CodecFor(path)
	if err != nil {
		return nil, err
	}

	hdl, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to open archive %s", path)
	}
	defer hdl.Close()

	reader, closeFn, err := decompressor(codec, hdl)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to decompress %s", path)
	}
	defer closeFn()

	result := []Entry{}
	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to read %s", path)
		}

		result = append(result, Entry{
			Name: hdr.Name,
			Size: hdr.Size,
			Mode: hdr.FileInfo().Mode(),
			Link: hdr.Linkname,
		})
	}

	return result, nil
}
