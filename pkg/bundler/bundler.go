// Package bundler packs an application directory into the archive and
// config a launcher embeds.
package bundler

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/newtonium/newtonium/pkg/archive"
	"github.com/newtonium/newtonium/pkg/common"
	"github.com/newtonium/newtonium/pkg/config"
)

// The archive filename written next to the bundle config.
const ARCHIVE_FILENAME = "app.tar.gz"

type Options struct {
	// The application directory to pack.
	Root string
	// Script passed to the runtime, relative to Root.
	Entrypoint string
	// Target platform id (see config.LookupPlatform).
	Platform string

	// Host paths of the binaries copied into the bundle.
	Runtime         string
	Runner          string
	InstallerBinary string

	// Produce an installer bundle.
	Installer bool

	// Directory that receives app.tar.gz and bundle.yml. Defaults to Root/bundle.
	Output string
}

// OutputDir is the directory Bundle writes app.tar.gz and bundle.yml to.
func (opts Options) OutputDir() string {
	if opts.Output != "" {
		return opts.Output
	}
	return filepath.Join(opts.Root, "bundle")
}

func (opts Options) validate() error {
	info, err := os.Stat(opts.Root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", opts.Root)
	}

	if opts.Entrypoint == "" {
		return fmt.Errorf("an entrypoint is required")
	}
	if ok, err := common.Exists(filepath.Join(opts.Root, filepath.FromSlash(opts.Entrypoint))); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("entrypoint %s does not exist in %s", opts.Entrypoint, opts.Root)
	}

	if opts.Runtime == "" {
		return fmt.Errorf("a runtime binary is required")
	}
	if opts.Installer {
		if opts.InstallerBinary == "" {
			return fmt.Errorf("installer bundles need an installer binary")
		}
	} else if opts.Runner == "" {
		return fmt.Errorf("a runner binary is required")
	}

	return nil
}

// NewAppID returns a uuid without dashes.
func NewAppID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func stageBinaries(opts Options, platform config.Platform) error {
	dir := filepath.Join(opts.Root, common.BINARIES_DIR)

	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := common.Ensure(dir, os.FileMode(0755)); err != nil {
		return err
	}

	copies := []struct {
		source string
		target string
	}{
		{opts.Runtime, platform.Runtime()},
		{opts.Runner, platform.Runner()},
		{opts.InstallerBinary, platform.Installer()},
	}

	for _, c := range copies {
		if c.source == "" {
			continue
		}

		target := filepath.Join(opts.Root, filepath.FromSlash(c.target))

		slog.Info("copying binary", "source", c.source, "target", c.target)

		if err := common.CopyFile(c.source, target, os.FileMode(0755)); err != nil {
			return fmt.Errorf("failed to copy %s: %w", c.source, err)
		}

		if !common.HostIsWindows() {
			if err := os.Chmod(target, os.FileMode(0755)); err != nil {
				return err
			}
		}
	}

	return nil
}

func writeArchive(opts Options, output string) error {
	filename := filepath.Join(output, ARCHIVE_FILENAME)

	// Skip the output directory and the files written to it when it lives
	// inside the root.
	outputs := map[string]bool{"bundle": true}
	if rel, err := filepath.Rel(opts.Root, output); err == nil && (rel == "." || filepath.IsLocal(rel)) {
		rel = filepath.ToSlash(rel)
		if rel != "." {
			outputs[rel] = true
		}
		outputs[path.Join(rel, ARCHIVE_FILENAME)] = true
		outputs[path.Join(rel, config.BUNDLE_FILENAME)] = true
	}

	exclude := func(rel string) bool {
		return outputs[rel] || path.Base(rel) == ".git"
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	slog.Info("creating archive", "root", opts.Root, "archive", filename)

	if err := archive.Create(f, opts.Root, exclude); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	return f.Close()
}

func writeConfig(cfg config.Bundle, output string) error {
	f, err := os.Create(filepath.Join(output, config.BUNDLE_FILENAME))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := cfg.Write(f); err != nil {
		return err
	}

	return f.Close()
}

// Bundle writes app.tar.gz and bundle.yml for opts into the output
// directory and returns the config it wrote.
func Bundle(opts Options) (config.Bundle, error) {
	if opts.Platform == "" {
		opts.Platform = config.CurrentPlatform().ID
	}

	platform, err := config.LookupPlatform(opts.Platform)
	if err != nil {
		return config.Bundle{}, err
	}

	if err := opts.validate(); err != nil {
		return config.Bundle{}, err
	}

	output := opts.OutputDir()
	if err := common.Ensure(output, os.FileMode(0755)); err != nil {
		return config.Bundle{}, err
	}

	runFile := platform.Runner()
	if opts.Installer {
		runFile = platform.Installer()
	}

	cfg := config.Bundle{
		AppID:      NewAppID(),
		TempDir:    platform.TempDir,
		Entrypoint: filepath.ToSlash(opts.Entrypoint),
		RunFile:    runFile,
		BunFile:    platform.Runtime(),
		Installer:  opts.Installer,
	}

	if err := cfg.Validate(); err != nil {
		return config.Bundle{}, err
	}

	if err := stageBinaries(opts, platform); err != nil {
		return config.Bundle{}, err
	}
	defer os.RemoveAll(filepath.Join(opts.Root, common.BINARIES_DIR))

	if err := writeArchive(opts, output); err != nil {
		return config.Bundle{}, err
	}

	if err := writeConfig(cfg, output); err != nil {
		return config.Bundle{}, err
	}

	return cfg, nil
}
