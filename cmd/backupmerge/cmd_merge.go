package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/backupmerge/backupmerge/internal/logging"
	mergeengine "github.com/backupmerge/backupmerge/internal/merge"
)

var (
	outputPath  string
	noNotes     bool
	noBookmarks bool
	noHighlight bool
	noTags      bool
	noInputs    bool
	noPlaylists bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source> <source> [source...]",
	Short: "Merge two or more backup archives into one",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output archive path (default: config output dir, auto-named)")
	mergeCmd.Flags().BoolVar(&noNotes, "no-notes", false, "exclude notes")
	mergeCmd.Flags().BoolVar(&noBookmarks, "no-bookmarks", false, "exclude bookmarks")
	mergeCmd.Flags().BoolVar(&noHighlight, "no-highlights", false, "exclude highlights")
	mergeCmd.Flags().BoolVar(&noTags, "no-tags", false, "exclude tags")
	mergeCmd.Flags().BoolVar(&noInputs, "no-inputfields", false, "exclude input fields")
	mergeCmd.Flags().BoolVar(&noPlaylists, "no-playlists", false, "exclude playlists")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	log := logging.GetLogger("cli")

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

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	mcfg := mergeengine.Config{
		Include: mergeengine.IncludeFlags{
			Notes:       !noNotes,
			Bookmarks:   !noBookmarks,
			Highlights:  !noHighlight,
			Tags:        !noTags,
			InputFields: !noInputs,
			Playlists:   !noPlaylists,
		},
		SizeLimitBytes: cfg.Merge.SizeLimitBytes,
		Progress: func(message string, progress int) {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", progress, message)
		},
	}

	start := time.Now()
	result, err := mergeengine.Run(ctx, sources, mcfg)
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}
	log.Info("merge complete", "duration", time.Since(start), "sources", len(sources))

	out := outputPath
	if out == "" {
		if err := cfg.EnsureOutputDir(); err != nil {
			return err
		}
		out = filepath.Join(cfg.Merge.OutputDir, result.Filename)
	}
	if err := os.WriteFile(out, result.Archive, 0644); err != nil {
		return fmt.Errorf("writing output %s: %w", out, err)
	}

	fmt.Printf("merged %d sources -> %s\n", len(sources), out)
	fmt.Println(result.Validation.Markdown())
	return nil
}
