package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/newtonium/newtonium/pkg/buildinfo"
	"github.com/newtonium/newtonium/pkg/common"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "newtonium",
	Short: "newtonium: package applications as self-extracting launchers",
	Long: fmt.Sprintf(`newtonium version %s
Packs an application directory into the archive and config embedded by cmd/launcher.`, buildinfo.VERSION),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		common.SetupLogging(os.Stderr, common.LogLevel(slog.LevelInfo))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the newtonium version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.VERSION)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
