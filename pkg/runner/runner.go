// Package runner starts the bundled runtime on the bundle's entrypoint,
// configured entirely by the environment contract.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/newtonium/newtonium/pkg/common"
	"github.com/newtonium/newtonium/pkg/contract"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

type Mode int

const (
	// The runtime shares the runner's standard streams.
	ModeInherit Mode = iota
	// The runtime's stdout is collected and printed once it exits.
	ModeCapture
)

func (m Mode) String() string {
	switch m {
	case ModeInherit:
		return "inherit"
	case ModeCapture:
		return "capture"
	default:
		return "<unknown>"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "inherit":
		return ModeInherit, nil
	case "capture":
		return ModeCapture, nil
	default:
		return ModeInherit, fmt.Errorf("unknown stream mode %q", s)
	}
}

type Runner struct {
	Env  contract.Env
	Mode Mode
	// Working directory of the runtime. Empty means the runner's own.
	Dir string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func New(env contract.Env, mode Mode) *Runner {
	return &Runner{
		Env:    env,
		Mode:   mode,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// FromEnvironment builds a Runner from the contract in lookup. No Runner
// is returned unless every required variable is present.
func FromEnvironment(lookup func(string) (string, bool), mode Mode) (*Runner, error) {
	env, err := contract.FromLookup(lookup)
	if err != nil {
		return nil, err
	}

	return New(env, mode), nil
}

func (r *Runner) RuntimePath() string {
	return filepath.Join(r.Env.Root, filepath.FromSlash(r.Env.Bun))
}

func (r *Runner) Command(ctx context.Context) (*exec.Cmd, error) {
	dir := r.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}

	cmd := exec.CommandContext(ctx, r.RuntimePath(), r.Env.Entrypoint)

	cmd.Dir = dir
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	return cmd, nil
}

// DecodeOutput decodes child output as UTF-8, replacing invalid sequences.
func DecodeOutput(b []byte) string {
	out, _, err := transform.Bytes(runes.ReplaceIllFormed(), b)
	if err != nil {
		// Replacement never fails on in-memory input.
		return string(b)
	}
	return string(out)
}

// Run starts the runtime and waits for it, returning its exit code.
func (r *Runner) Run(ctx context.Context) (int, error) {
	cmd, err := r.Command(ctx)
	if err != nil {
		return -1, err
	}

	var captured bytes.Buffer
	if r.Mode == ModeCapture {
		cmd.Stdout = &captured
	}

	slog.Debug("starting runtime", "path", cmd.Path, "entrypoint", r.Env.Entrypoint, "dir", cmd.Dir, "mode", r.Mode)

	code, err := common.RunCommand(cmd)
	if err != nil {
		return -1, err
	}

	if r.Mode == ModeCapture {
		if _, err := io.WriteString(r.Stdout, DecodeOutput(captured.Bytes())); err != nil {
			return code, err
		}
	}

	return code, nil
}
