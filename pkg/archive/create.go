package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// Create writes the contents of root to w as a gzip compressed tar stream.
// Paths are slash separated and relative to root. exclude is called with
// each relative path and may be nil; excluded directories are skipped entirely.
func Create(w io.Writer, root string, exclude func(rel string) bool) error {
	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(gz)

	if err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if exclude != nil && exclude(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		return writeEntry(tw, p, rel, d)
	}); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}

	return gz.Close()
}

func writeEntry(tw *tar.Writer, filename string, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var linkname string

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		linkname, err = os.Readlink(filename)
		if err != nil {
			return err
		}
		linkname = filepath.ToSlash(linkname)
	case info.IsDir(), info.Mode().IsRegular():
	default:
		slog.Warn("skipping unsupported file", "name", name, "mode", info.Mode())
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, linkname)
	if err != nil {
		return err
	}

	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}

	// Bundles are extracted by whoever runs them.
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", name, err)
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	return nil
}
