package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/backupmerge/backupmerge/internal/logging"
	"github.com/backupmerge/backupmerge/pkg/config"
)

// Version is set during build.
var Version = "dev"

var (
	cfgFile  string
	logLevel string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:     "backupmerge",
	Short:   "Merge two or more reading-app backup archives into one",
	Version: Version,
	Long: `backupmerge merges two or more backup archives produced by a reference
reading application into a single archive whose database contains the
union of the inputs with duplicates collapsed and foreign keys rewritten
to stay internally consistent.

Examples:
  backupmerge merge a.jwlibrary b.jwlibrary -o merged.jwlibrary
  backupmerge merge a.jwlibrary b.jwlibrary c.jwlibrary --no-tags
  backupmerge serve --port 8420`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{Level: logLevel, Format: "console", Output: "stderr"})
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

// loadConfig loads the viper-backed config, falling back to defaults when
// no --config is given and no file is found on the search path; a
// --config path that cannot be read is an error (see pkg/config.LoadFrom).
func loadConfig() (*config.Config, error) {
	return config.LoadFrom(cfgFile)
}
