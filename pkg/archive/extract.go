package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/schollz/progressbar/v3"
)

type ExtractOptions struct {
	// Receives a progress bar of compressed bytes read. nil disables progress.
	Progress io.Writer
	// Compressed size used for the progress bar.
	Size int64
}

func newProgressBar(opts ExtractOptions) *progressbar.ProgressBar {
	size := opts.Size
	if size <= 0 {
		size = -1
	}

	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(opts.Progress),
		progressbar.OptionSetDescription("extracting"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
}

// Extract unpacks a gzip compressed tar stream into dir, which must exist.
func Extract(r io.Reader, dir string, opts ExtractOptions) error {
	if opts.Progress != nil {
		bar := newProgressBar(opts)
		defer bar.Finish()

		r = io.TeeReader(r, bar)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer gz.Close()

	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}

	tr := tar.NewReader(gz)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		if err := extractEntry(tr, hdr, realDir); err != nil {
			return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
		}
	}

	return nil
}

// localName converts an archive name into a native path relative to the
// extraction root.
func localName(name string) (string, error) {
	clean := path.Clean(name)
	if clean == "." {
		return clean, nil
	}

	native := filepath.FromSlash(clean)
	if strings.HasPrefix(clean, "/") || !filepath.IsLocal(native) {
		return "", fmt.Errorf("%q is outside the extraction directory", name)
	}

	return native, nil
}

func checkLinkTarget(name string, linkname string) error {
	if strings.HasPrefix(linkname, "/") || filepath.IsAbs(linkname) {
		return fmt.Errorf("absolute link target %q", linkname)
	}

	resolved := path.Join(path.Dir(path.Clean(name)), linkname)
	if _, err := localName(resolved); err != nil {
		return fmt.Errorf("link target %q: %w", linkname, err)
	}

	return nil
}

// within reports whether p names realDir or something below it.
func within(realDir string, p string) bool {
	rel, err := filepath.Rel(realDir, p)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

// resolveExisting follows the symlinks in the longest existing prefix of p
// and appends the components that do not exist yet.
func resolveExisting(p string) (string, error) {
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}

		if info, lerr := os.Lstat(p); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("path passes through dangling symlink %s", p)
		}

		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}

		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

// checkOnDisk resolves p against what has already been extracted and
// rejects it when the result leaves realDir.
func checkOnDisk(realDir string, p string) (string, error) {
	resolved, err := resolveExisting(p)
	if err != nil {
		return "", err
	}

	if !within(realDir, resolved) {
		return "", fmt.Errorf("%s resolves outside the extraction directory", p)
	}

	return resolved, nil
}

func removeExisting(target string) error {
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, dir string) error {
	name, err := localName(hdr.Name)
	if err != nil {
		return err
	}

	target := filepath.Join(dir, name)
	info := hdr.FileInfo()

	switch hdr.Typeflag {
	case tar.TypeXGlobalHeader:
	case tar.TypeDir:
		if _, err := checkOnDisk(dir, target); err != nil {
			return err
		}
	default:
		if name == "." {
			return fmt.Errorf("entry overwrites the extraction directory")
		}

		if _, err := checkOnDisk(dir, filepath.Dir(target)); err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(target), os.FileMode(0755)); err != nil {
			return err
		}

		if err := removeExisting(target); err != nil {
			return err
		}
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, info.Mode().Perm()|0700); err != nil {
			return err
		}
	case tar.TypeReg:
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
		if err != nil {
			return err
		}

		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}

		if err := out.Close(); err != nil {
			return err
		}

		if !hdr.ModTime.IsZero() {
			if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
				return err
			}
		}
	case tar.TypeSymlink:
		if err := checkLinkTarget(hdr.Name, hdr.Linkname); err != nil {
			return err
		}

		parent, err := checkOnDisk(dir, filepath.Dir(target))
		if err != nil {
			return err
		}

		if !within(dir, filepath.Join(parent, filepath.FromSlash(hdr.Linkname))) {
			return fmt.Errorf("link target %q is outside the extraction directory", hdr.Linkname)
		}

		if err := os.Symlink(filepath.FromSlash(hdr.Linkname), target); err != nil {
			return err
		}

		// Links through earlier links can still leave the tree once created.
		if resolved, err := filepath.EvalSymlinks(target); err == nil && !within(dir, resolved) {
			os.Remove(target)
			return fmt.Errorf("link target %q is outside the extraction directory", hdr.Linkname)
		}
	case tar.TypeLink:
		source, err := localName(hdr.Linkname)
		if err != nil {
			return err
		}

		if _, err := checkOnDisk(dir, filepath.Join(dir, source)); err != nil {
			return err
		}

		if err := os.Link(filepath.Join(dir, source), target); err != nil {
			return err
		}
	case tar.TypeXGlobalHeader:
		// PAX global headers carry no file.
	default:
		return fmt.Errorf("typeflag not implemented: %d", hdr.Typeflag)
	}

	return nil
}
