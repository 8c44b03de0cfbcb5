package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/newtonium/newtonium/pkg/bundler"
	"github.com/newtonium/newtonium/pkg/config"
	"github.com/spf13/cobra"
)

var (
	packEntrypoint      string
	packPlatform        string
	packRuntime         string
	packRunner          string
	packInstallerBinary string
	packInstaller       bool
	packOutput          string
)

var packCmd = &cobra.Command{
	Use:   "pack <root>",
	Short: "Write app.tar.gz and bundle.yml for an application directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := bundler.Options{
			Root:            args[0],
			Entrypoint:      packEntrypoint,
			Platform:        packPlatform,
			Runtime:         packRuntime,
			Runner:          packRunner,
			InstallerBinary: packInstallerBinary,
			Installer:       packInstaller,
			Output:          packOutput,
		}

		cfg, err := bundler.Bundle(opts)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s packed %s as %s (extracts to %s)\n",
			color.GreenString("done:"), args[0], cfg.AppID, cfg.TargetDir())
		fmt.Fprintf(cmd.OutOrStdout(), "build the launcher with the files in %s\n", opts.OutputDir())

		return nil
	},
}

func init() {
	packCmd.Flags().StringVar(&packEntrypoint, "entrypoint", "", "script passed to the runtime, relative to root")
	packCmd.Flags().StringVar(&packPlatform, "platform", config.CurrentPlatform().ID, fmt.Sprintf("target platform %v", config.PlatformIDs()))
	packCmd.Flags().StringVar(&packRuntime, "runtime", "", "path to the runtime binary to bundle")
	packCmd.Flags().StringVar(&packRunner, "runner", "", "path to the runner binary to bundle")
	packCmd.Flags().StringVar(&packInstallerBinary, "installer-binary", "", "path to the installer binary to bundle")
	packCmd.Flags().BoolVar(&packInstaller, "installer", false, "run the bundled installer instead of the app")
	packCmd.Flags().StringVarP(&packOutput, "output", "o", "", "directory for app.tar.gz and bundle.yml (default <root>/bundle)")

	packCmd.MarkFlagRequired("entrypoint")
	packCmd.MarkFlagRequired("runtime")

	rootCmd.AddCommand(packCmd)
}
