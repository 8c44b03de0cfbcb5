package common

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
)

const (
	// Directory inside every bundle holding the runtime, runner and installer.
	BINARIES_DIR = "newtonium_binaries"

	// Non-empty enables debug logging in every newtonium binary.
	DEBUG_ENV = "NEWTONIUM_DEBUG"
)

// From: https://stackoverflow.com/questions/12518876/how-to-check-if-a-file-exists-in-go
func Exists(name string) (bool, error) {
	_, err := os.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func Ensure(path string, mode os.FileMode) error {
	err := os.MkdirAll(path, mode)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return nil
}

// GetExecutableName adds the platform suffix to name for goos.
func GetExecutableName(goos string, name string) string {
	if goos == "windows" {
		return name + ".exe"
	} else {
		return name
	}
}

func HostIsWindows() bool {
	return runtime.GOOS == "windows"
}

func CopyFile(source string, target string, mode os.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	return out.Close()
}

// RunCommand runs cmd to completion. A child that ran and exited non-zero
// is reported through the exit code, not the error.
func RunCommand(cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		// Killed by a signal.
		return 1, nil
	}

	return -1, fmt.Errorf("failed to run %s: %w", cmd.Path, err)
}
