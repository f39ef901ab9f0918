package features

import (
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// CompressedExt is appended to archives written by CompressFile
const CompressedExt = ".gz"

// CompressFile gzips src into dst and removes src. A partially written dst is
// removed on failure and src is left in place.
func CompressFile(src, dst string) (err error) {
	cleanSrc := filepath.Clean(src)
	cleanDst := filepath.Clean(dst)

	in, err := os.Open(cleanSrc)
	if err != nil {
		return errors.Wrap(err, "opening source file for compression")
	}
	inOpen := true
	defer func() {
		if inOpen {
			_ = in.Close()
		}
	}()

	out, err := os.OpenFile(cleanDst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644) // #nosec G302 - compressed log files
	if err != nil {
		return errors.Wrap(err, "creating compressed file")
	}

	cleanupDst := true
	defer func() {
		if cleanupDst {
			_ = out.Close()
			_ = os.Remove(cleanDst)
		}
	}()

	gw := gzip.NewWriter(out)
	gw.Name = filepath.Base(cleanSrc)

	if _, err = io.Copy(gw, in); err != nil {
		return errors.Wrap(err, "compressing file")
	}
	if err = gw.Close(); err != nil {
		return errors.Wrap(err, "closing gzip writer")
	}
	if err = out.Close(); err != nil {
		return errors.Wrap(err, "closing compressed file")
	}
	cleanupDst = false

	inOpen = false
	if err = in.Close(); err != nil {
		_ = os.Remove(cleanDst)
		return errors.Wrap(err, "closing source file")
	}
	if err = os.Remove(cleanSrc); err != nil {
		_ = os.Remove(cleanDst)
		return errors.Wrap(err, "removing original file after compression")
	}
	return nil
}

// DecompressFile returns the contents of a gzip archive
func DecompressFile(path string) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "opening compressed file")
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "reading gzip header")
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing file")
	}
	return data, nil
}
