// Package launcher implements the bootstrap half of a packaged app: extract
// the embedded bundle once, then hand control to the bundle's run file.
package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/newtonium/newtonium/pkg/archive"
	"github.com/newtonium/newtonium/pkg/common"
	"github.com/newtonium/newtonium/pkg/config"
	"github.com/newtonium/newtonium/pkg/contract"
)

type Launcher struct {
	Config config.Bundle
	// gzip compressed tar of the bundle.
	Archive []byte

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Base environment for the child. Defaults to os.Environ().
	Environ []string

	// Receives extraction progress. nil for none.
	Progress io.Writer
}

func New(cfg config.Bundle, archive []byte) *Launcher {
	return &Launcher{
		Config:  cfg,
		Archive: archive,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func (l *Launcher) environ() []string {
	if l.Environ != nil {
		return l.Environ
	}
	return os.Environ()
}

// Contract is the environment handed to the run file.
func (l *Launcher) Contract() contract.Env {
	return contract.Env{
		App:        true,
		Root:       l.Config.TargetDir(),
		Entrypoint: l.Config.Entrypoint,
		Bun:        l.Config.BunFile,
	}
}

func (l *Launcher) command(ctx context.Context, name string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name)

	cmd.Dir = l.Config.TargetDir()
	cmd.Stdin = l.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr

	return cmd
}

// InstallerCommand runs the installer bundled in installer builds.
func (l *Launcher) InstallerCommand(ctx context.Context) *exec.Cmd {
	platform := config.CurrentPlatform()

	cmd := l.command(ctx, l.Config.Resolve(platform.Installer()))
	cmd.Env = l.environ()

	return cmd
}

// AppCommand runs the bundle's run file with the environment contract.
func (l *Launcher) AppCommand(ctx context.Context) *exec.Cmd {
	cmd := l.command(ctx, l.Config.Resolve(l.Config.RunFile))
	cmd.Env = l.Contract().Under(l.environ())

	return cmd
}

// Run extracts the bundle if needed and runs it to completion. The
// returned code is the child's exit code; the error is only set when the
// child could not be run at all.
func (l *Launcher) Run(ctx context.Context) (int, error) {
	if err := l.Config.Validate(); err != nil {
		return -1, err
	}

	target := l.Config.TargetDir()

	extracted, err := archive.EnsureExtracted(l.Archive, target, archive.ExtractOptions{
		Progress: l.Progress,
	})
	if err != nil {
		return -1, fmt.Errorf("failed to extract bundle to %s: %w", target, err)
	}
	if extracted {
		slog.Debug("extracted bundle", "dir", target)
	}

	var cmd *exec.Cmd
	if l.Config.Installer {
		cmd = l.InstallerCommand(ctx)
	} else {
		cmd = l.AppCommand(ctx)
	}

	slog.Debug("starting", "path", cmd.Path, "dir", cmd.Dir, "installer", l.Config.Installer)

	code, err := common.RunCommand(cmd)
	if err != nil {
		return -1, err
	}

	slog.Debug("exited", "path", cmd.Path, "code", code)

	return code, nil
}
