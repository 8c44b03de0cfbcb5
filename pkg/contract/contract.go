// Package contract defines the environment variables a launcher passes
// to the process it spawns.
package contract

import (
	"fmt"
	"os"
)

const (
	// Set to "true" when the process was started from a packaged app.
	KeyApp = "NEWTONIUM_APP"
	// Absolute path to the extracted bundle root.
	KeyRoot = "NEWTONIUM_ROOT"
	// Path of the script to run, relative to the root.
	KeyEntrypoint = "NEWTONIUM_ENTRYPOINT"
	// Path of the runtime binary, relative to the root.
	KeyBun = "NEWTONIUM_BUN"
)

// Keys the consumer can not run without, in the order they are checked.
var Required = []string{KeyRoot, KeyBun, KeyEntrypoint}

type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("environment variable %s is not set", e.Key)
}

type Env struct {
	App        bool
	Root       string
	Entrypoint string
	Bun        string
}

// Environ returns the contract as KEY=value pairs suitable for exec.Cmd.Env.
func (e Env) Environ() []string {
	app := "false"
	if e.App {
		app = "true"
	}

	return []string{
		KeyApp + "=" + app,
		KeyRoot + "=" + e.Root,
		KeyEntrypoint + "=" + e.Entrypoint,
		KeyBun + "=" + e.Bun,
	}
}

// Under appends the contract to base. Later entries win in exec.Cmd so any
// contract keys already present in base are overridden.
func (e Env) Under(base []string) []string {
	ret := make([]string, 0, len(base)+4)
	ret = append(ret, base...)
	return append(ret, e.Environ()...)
}

// FromLookup reads the contract using lookup (normally os.LookupEnv).
// An empty value counts as missing.
func FromLookup(lookup func(key string) (string, bool)) (Env, error) {
	values := map[string]string{}

	for _, key := range Required {
		val, ok := lookup(key)
		if !ok || val == "" {
			return Env{}, &MissingError{Key: key}
		}
		values[key] = val
	}

	app, _ := lookup(KeyApp)

	return Env{
		App:        app == "true",
		Root:       values[KeyRoot],
		Entrypoint: values[KeyEntrypoint],
		Bun:        values[KeyBun],
	}, nil
}

func FromEnvironment() (Env, error) {
	return FromLookup(os.LookupEnv)
}
