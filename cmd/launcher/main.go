package main

import (
	"bytes"
	"context"
	_ "embed"
	"log/slog"
	"os"

	"github.com/newtonium/newtonium/pkg/common"
	"github.com/newtonium/newtonium/pkg/config"
	"github.com/newtonium/newtonium/pkg/launcher"
)

// Both files are replaced by `newtonium pack -o cmd/launcher` before building.

//go:embed app.tar.gz
var APP_ARCHIVE []byte

//go:embed bundle.yml
var BUNDLE_CONFIG []byte

func appMain() (int, error) {
	common.SetupLogging(os.Stderr, common.LogLevel(slog.LevelWarn))

	cfg, err := config.Load(bytes.NewReader(BUNDLE_CONFIG))
	if err != nil {
		return -1, err
	}

	l := launcher.New(cfg, APP_ARCHIVE)

	if common.IsTerminal(os.Stderr) {
		l.Progress = os.Stderr
	}

	return l.Run(context.Background())
}

func main() {
	code, err := appMain()
	if err != nil {
		slog.Error("Fatal", "err", err)
		os.Exit(1)
	}

	os.Exit(code)
}
