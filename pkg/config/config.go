package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// The name a bundle config is embedded and written under.
const BUNDLE_FILENAME = "bundle.yml"

// A config file written at pack time and embedded in the launcher next to the archive.
type Bundle struct {
	// Unique id of the packaged app. The bundle is extracted to TempDir/AppID.
	AppID string `json:"app_id" yaml:"app_id"`
	// The directory bundles are extracted under.
	TempDir string `json:"temp_dir" yaml:"temp_dir"`
	// The script passed to the runtime, relative to the bundle root.
	Entrypoint string `json:"entrypoint" yaml:"entrypoint"`
	// The executable the launcher starts, relative to the bundle root.
	RunFile string `json:"run_file" yaml:"run_file"`
	// The runtime binary the runner starts, relative to the bundle root.
	BunFile string `json:"bun_file" yaml:"bun_file"`
	// Run the bundled installer instead of the app.
	Installer bool `json:"installer" yaml:"installer"`
}

func Load(r io.Reader) (Bundle, error) {
	var cfg Bundle

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Bundle{}, fmt.Errorf("failed to decode bundle config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Bundle{}, err
	}

	return cfg, nil
}

func (cfg Bundle) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)

	if err := enc.Encode(&cfg); err != nil {
		return err
	}

	return enc.Close()
}

func (cfg Bundle) Validate() error {
	if cfg.AppID == "" {
		return fmt.Errorf("bundle config: app_id is required")
	}
	if cfg.AppID != filepath.Base(cfg.AppID) || cfg.AppID == "." || cfg.AppID == ".." {
		return fmt.Errorf("bundle config: app_id %q must be a single path element", cfg.AppID)
	}
	if cfg.TempDir == "" {
		return fmt.Errorf("bundle config: temp_dir is required")
	}
	if !isAbs(cfg.TempDir) {
		return fmt.Errorf("bundle config: temp_dir %q must be an absolute path", cfg.TempDir)
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"entrypoint", cfg.Entrypoint},
		{"run_file", cfg.RunFile},
		{"bun_file", cfg.BunFile},
	} {
		if field.value == "" {
			return fmt.Errorf("bundle config: %s is required", field.name)
		}
		if !isLocal(field.value) {
			return fmt.Errorf("bundle config: %s %q must be relative to the bundle root", field.name, field.value)
		}
	}

	return nil
}

// TargetDir is where the bundle is extracted. Its existence marks the bundle as extracted.
func (cfg Bundle) TargetDir() string {
	return filepath.Join(cfg.TempDir, cfg.AppID)
}

func (cfg Bundle) Resolve(filename string) string {
	if filename == "" {
		return ""
	}

	if filepath.IsAbs(filename) {
		return filename
	}

	return filepath.Join(cfg.TargetDir(), filepath.FromSlash(filename))
}

// Bundle paths are written with forward slashes regardless of platform.
func isLocal(name string) bool {
	if strings.HasPrefix(name, "/") {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(name))
}

// isAbs accepts both unix and drive letter paths since bundles are often
// packed on a different host than they run on.
func isAbs(name string) bool {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || filepath.IsAbs(name) {
		return true
	}
	if len(name) < 3 || name[1] != ':' || (name[2] != '/' && name[2] != '\\') {
		return false
	}
	c := name[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
