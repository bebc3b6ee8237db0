package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"
)

// Codec names the compression applied on top of the tar stream
type Codec string

const (
	CodecGzip   Codec = "gzip"
	CodecXz     Codec = "xz"
	CodecBrotli Codec = "br"
	CodecNone   Codec = "none"
)

var extensions = []struct {
	suffix string
	codec  Codec
}{
	{".tar.gz", CodecGzip},
	{".tgz", CodecGzip},
	{".tar.xz", CodecXz},
	{".txz", CodecXz},
	{".tar.br", CodecBrotli},
	{".tar", CodecNone},
}

// CodecFor picks the codec matching the extension of filename
func CodecFor(filename string) (Codec, error) {
	lower := strings.ToLower(filename)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext.suffix) {
			return ext.codec, nil
		}
	}

	return "", eris.Errorf("can't determine the compression of %s from its extension", filename)
}

// ParseCodec validates a configured codec name. An empty name means "detect from filename".
// A codec contradicting a known extension of filename is rejected since List couldn't read the
// result back.
func ParseCodec(name, filename string) (Codec, error) {
	switch Codec(name) {
	case "":
		return CodecFor(filename)
	case CodecGzip, CodecXz, CodecBrotli, CodecNone:
		detected, err := CodecFor(filename)
		if err == nil && detected != Codec(name) {
			return "", eris.Errorf("codec %s doesn't match the extension of %s (%s)", name, filename, detected)
		}
		return Codec(name), nil
	}

	return "", eris.Errorf("unsupported archive codec %s (must be one of gzip, xz, br or none)", name)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func compressor(codec Codec, w io.Writer) (io.WriteCloser, error) {
	switch codec {
	case CodecGzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case CodecXz:
		return xz.NewWriter(w)
	case CodecBrotli:
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	case CodecNone:
		return nopWriteCloser{w}, nil
	}

	return nil, eris.Errorf("unsupported archive codec %s", codec)
}

// Writer writes a compressed tar archive. The archive is written to a temporary file next to
// the destination and only renamed into place by Close().
type Writer struct {
	hdl       *os.File
	comp      io.WriteCloser
	tw        *tar.Writer
	dest      string
	buffer    []byte
	count     int
	clampTime time.Time
}

// NewWriter creates a new Writer instance targeting filename
func NewWriter(filename string, codec Codec) (*Writer, error) {
	hdl, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*")
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create temporary file for %s", filename)
	}

	comp, err := compressor(codec, hdl)
	if err != nil {
		hdl.Close()
		os.Remove(hdl.Name())
		return nil, err
	}

	return &Writer{
		hdl:    hdl,
		comp:   comp,
		tw:     tar.NewWriter(comp),
		dest:   filename,
		buffer: make([]byte, 32*1024),
	}, nil
}

// ClampModTime limits all entry timestamps to t. Used to honour SOURCE_DATE_EPOCH.
func (w *Writer) ClampModTime(t time.Time) {
	w.clampTime = t
}

// Count returns the number of entries written so far
func (w *Writer) Count() int {
	return w.count
}

func (w *Writer) header(name, path string, info os.FileInfo, link string) (*tar.Header, error) {
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to build header for %s", path)
	}

	hdr.Name = filepath.ToSlash(name)
	hdr.Uid = 0
	hdr.Gid = 0
	hdr.Uname = "root"
	hdr.Gname = "root"
	if !w.clampTime.IsZero() && hdr.ModTime.After(w.clampTime) {
		hdr.ModTime = w.clampTime
	}

	return hdr, nil
}

// WriteFile adds the regular file or symlink at path to the archive under name. name is
// converted to a slash-separated path. Symlinks are stored as links, not followed.
func (w *Writer) WriteFile(name, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return eris.Wrapf(err, "Failed to stat %s", path)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return w.writeSymlink(name, path, info)
	}

	if !info.Mode().IsRegular() {
		return eris.Errorf("%s is not a regular file", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "Failed to open file %s", path)
	}
	defer f.Close()

	hdr, err := w.header(name, path, info, "")
	if err != nil {
		return err
	}

	err = w.tw.WriteHeader(hdr)
	if err != nil {
		return eris.Wrapf(err, "Failed to write header for %s", name)
	}

	_, err = io.CopyBuffer(w.tw, f, w.buffer)
	if err != nil {
		return eris.Wrapf(err, "Failed to pack file %s", path)
	}

	w.count++
	return nil
}

func (w *Writer) writeSymlink(name, path string, info os.FileInfo) error {
	target, err := os.Readlink(path)
	if err != nil {
		return eris.Wrapf(err, "Failed to read link %s", path)
	}

	hdr, err := w.header(name, path, info, filepath.ToSlash(target))
	if err != nil {
		return err
	}

	err = w.tw.WriteHeader(hdr)
	if err != nil {
		return eris.Wrapf(err, "Failed to write header for %s", name)
	}

	w.count++
	return nil
}

// Abort discards the partially written archive
func (w *Writer) Abort() {
	w.hdl.Close()
	os.Remove(w.hdl.Name())
}

// Close finishes the tar stream, flushes the compressor and moves the archive into place
func (w *Writer) Close() error {
	err := w.tw.Close()
	if err != nil {
		w.Abort()
		return eris.Wrap(err, "Failed to finish tar stream")
	}

	err = w.comp.Close()
	if err != nil {
		w.Abort()
		return eris.Wrap(err, "Failed to flush compressor")
	}

	err = w.hdl.Close()
	if err != nil {
		os.Remove(w.hdl.Name())
		return eris.Wrapf(err, "Failed to write %s", w.dest)
	}

	err = os.Chmod(w.hdl.Name(), 0644)
	if err != nil {
		os.Remove(w.hdl.Name())
		return eris.Wrapf(err, "Failed to set permissions on %s", w.dest)
	}

	err = os.Rename(w.hdl.Name(), w.dest)
	if err != nil {
		os.Remove(w.hdl.Name())
		return eris.Wrapf(err, "Failed to move archive to %s", w.dest)
	}

	return nil
}
