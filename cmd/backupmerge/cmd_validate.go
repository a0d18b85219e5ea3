package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mergeengine "github.com/backupmerge/backupmerge/internal/merge"
)

var validateCmd = &cobra.Command{
	Use:   "validate <source> <source> [source...]",
	Short: "Dry-run a merge and print the integrity validation report, without writing an archive",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sources := make([][]byte, len(args))
	for i, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading source %s: %w", path, err)
		}
		sources[i] = data
	}

	result, err := mergeengine.Run(context.Background(), sources, mergeengine.Config{
		Include:        mergeengine.DefaultIncludeFlags(),
		SizeLimitBytes: cfg.Merge.SizeLimitBytes,
	})
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	fmt.Println(result.Validation.Markdown())
	return nil
}
