package config

import (
	"fmt"
	"path"
	"runtime"
	"sort"

	"github.com/newtonium/newtonium/pkg/common"
)

type Platform struct {
	ID string
	// Value of runtime.GOOS the platform's binaries are built for.
	GOOS string
	// Default TempDir for bundles built for this platform.
	TempDir string
}

func (p Platform) binary(name string) string {
	return path.Join(common.BINARIES_DIR, common.GetExecutableName(p.GOOS, name))
}

// Runtime is the runtime binary path inside a bundle.
func (p Platform) Runtime() string { return p.binary("bun") }

// Runner is the default run file inside a bundle.
func (p Platform) Runner() string { return p.binary("runner") }

// Installer is the binary run by installer bundles.
func (p Platform) Installer() string { return p.binary("newtonium_installer") }

var platforms = map[string]Platform{
	"linux": {
		ID:      "linux",
		GOOS:    "linux",
		TempDir: "/tmp",
	},
	"windows": {
		ID:      "windows",
		GOOS:    "windows",
		TempDir: "C:/Windows/Temp",
	},
}

func LookupPlatform(id string) (Platform, error) {
	p, ok := platforms[id]
	if !ok {
		return Platform{}, fmt.Errorf("unknown platform %q (known: %v)", id, PlatformIDs())
	}
	return p, nil
}

func PlatformIDs() []string {
	var ids []string
	for id := range platforms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func CurrentPlatform() Platform {
	if runtime.GOOS == "windows" {
		return platforms["windows"]
	}
	return platforms["linux"]
}
