package cli

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/eventface/internal/ingest"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <event-id> <dir>",
	Short: "Detect and store every face found in a directory of photos",
	Long: `Walks dir in lexical order and runs every image through detection,
embedding and ingestion, one photo at a time. Photos are referenced by their
path relative to dir. A photo that fails does not stop the batch; the
manifest printed at the end lists every failure with its stage.

With --watch the command keeps running after the initial pass and ingests
every image later dropped into dir, printing one manifest per photo, until
interrupted.`,
	Args: cobra.ExactArgs(2),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("prefix", "", "Prefix prepended to every photo reference")
	ingestCmd.Flags().Bool("quiet", false, "Hide the progress bar")
	ingestCmd.Flags().Bool("watch", false, "Keep ingesting images added to dir until interrupted")
	rootCmd.AddCommand(ingestCmd)
}

// collectImages returns the image files under dir, sorted lexically.
func collectImages(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExts[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

// fileItems turns paths into batch items referenced relative to dir.
func fileItems(dir, prefix string, paths []string) ([]ingest.Item, error) {
	items := make([]ingest.Item, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil, err
		}
		path := p
		items = append(items, ingest.Item{
			PhotoRef: prefix + filepath.ToSlash(rel),
			Load: func(ctx context.Context) ([]byte, error) {
				return os.ReadFile(path)
			},
		})
	}
	return items, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	eventID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", args[0], err)
	}
	dir := args[1]

	paths, err := collectImages(dir)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	watch := mustGetBool(cmd, "watch")
	if len(paths) == 0 && !watch {
		return fmt.Errorf("no images found in %s", dir)
	}

	ctx := cmd.Context()
	cfg, store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.GetEvent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	provider, cleanup, err := openProvider(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	prefix := mustGetString(cmd, "prefix")
	runner := ingest.NewRunner(ingest.NewPipeline(store, store, cfg.Matching.Dimension), provider, nil)
	if len(paths) > 0 {
		if err := ingestPaths(cmd, runner, eventID, dir, prefix, paths); err != nil {
			return err
		}
	}
	if !watch {
		return nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for new photos (Ctrl+C to stop)\n", dir)
	return watchAndIngest(ctx, newFolderWatcher(dir, nil), func(ctx context.Context, path string) error {
		items, err := fileItems(dir, prefix, []string{path})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), runner.Run(ctx, eventID, items, nil))
	})
}

// watchAndIngest feeds every photo reported by w to ingestOne.
func watchAndIngest(ctx context.Context, w *folderWatcher, ingestOne func(ctx context.Context, path string) error) error {
	return w.Run(ctx, logFailures(w.logger, ingestOne))
}

// logFailures keeps a watch going past photos that cannot be ingested.
func logFailures(logger *slog.Logger, ingestOne func(ctx context.Context, path string) error) func(ctx context.Context, path string) {
	return func(ctx context.Context, path string) {
		if err := ingestOne(ctx, path); err != nil {
			logger.Error("ingest photo", "path", path, "error", err)
		}
	}
}

func ingestPaths(cmd *cobra.Command, runner *ingest.Runner, eventID uuid.UUID, dir, prefix string, paths []string) error {
	items, err := fileItems(dir, prefix, paths)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !mustGetBool(cmd, "quiet") {
		bar = progressbar.NewOptions(len(items),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Ingesting photos"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	manifest := runner.Run(cmd.Context(), eventID, items, func(p ingest.Progress) {
		if bar != nil {
			_ = bar.Set(p.Completed)
		}
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	return printJSON(cmd.OutOrStdout(), manifest)
}
