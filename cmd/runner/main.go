package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/newtonium/newtonium/pkg/common"
	"github.com/newtonium/newtonium/pkg/runner"
)

// Selects the runner variant at build time:
//
//	go build -ldflags "-X main.streamMode=capture" ./cmd/runner
var streamMode = "inherit"

func appMain() (int, error) {
	common.SetupLogging(os.Stderr, common.LogLevel(slog.LevelWarn))

	mode, err := runner.ParseMode(streamMode)
	if err != nil {
		return -1, err
	}

	r, err := runner.FromEnvironment(os.LookupEnv, mode)
	if err != nil {
		return -1, err
	}

	return r.Run(context.Background())
}

func main() {
	code, err := appMain()
	if err != nil {
		slog.Error("Fatal", "err", err)
		os.Exit(1)
	}

	os.Exit(code)
}
