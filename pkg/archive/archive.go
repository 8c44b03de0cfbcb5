// Package archive reads and writes the gzip compressed tar streams embedded in launchers.
package archive

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/newtonium/newtonium/pkg/common"
)

const stagingInfix = ".partial-"

// renameStaging moves a finished staging directory into place.
var renameStaging = os.Rename

// StagingPattern matches the staging directories EnsureExtracted creates for dir.
func StagingPattern(dir string) string {
	return dir + stagingInfix + "*"
}

// EnsureExtracted extracts data to dir unless dir already exists. It
// reports whether this call did the extraction.
//
// The archive is unpacked into a sibling staging directory and renamed
// into place so dir only ever appears complete. When two launches race
// the first rename wins and the loser discards its copy.
func EnsureExtracted(data []byte, dir string, opts ExtractOptions) (bool, error) {
	ok, err := common.Exists(dir)
	if err != nil {
		return false, err
	}
	if ok {
		slog.Debug("bundle already extracted", "dir", dir)
		return false, nil
	}

	if err := common.Ensure(filepath.Dir(dir), os.FileMode(0755)); err != nil {
		return false, err
	}

	staging := dir + stagingInfix + uuid.NewString()
	if err := common.Ensure(staging, os.FileMode(0755)); err != nil {
		return false, err
	}

	slog.Debug("extracting bundle", "dir", dir, "staging", staging, "size", len(data))

	if opts.Size == 0 {
		opts.Size = int64(len(data))
	}

	if err := Extract(bytes.NewReader(data), staging, opts); err != nil {
		os.RemoveAll(staging)
		return false, err
	}

	if err := renameStaging(staging, dir); err != nil {
		os.RemoveAll(staging)

		if ok, _ := common.Exists(dir); ok {
			slog.Debug("bundle extracted by another launch", "dir", dir)
			return false, nil
		}

		return false, fmt.Errorf("failed to move bundle into place: %w", err)
	}

	return true, nil
}
