package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/eventface/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <event-id> <selfie>",
	Short: "Find the photos of an event showing the person in a selfie",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Bool("detailed", false, "Print photo IDs and distances as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	eventID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", args[0], err)
	}
	selfie, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read selfie: %w", err)
	}

	ctx := cmd.Context()
	cfg, store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, cleanup, err := openProvider(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	faces, err := provider.Embed(ctx, selfie)
	if err != nil {
		return fmt.Errorf("failed to embed selfie: %w", err)
	}
	if len(faces) == 0 {
		return fmt.Errorf("no face detected in %s", args[1])
	}

	engine, err := search.NewEngine(store, cfg.Matching.Dimension, cfg.Matching.Threshold)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "detailed") {
		matches, err := engine.SearchDetailed(ctx, eventID, faces[0])
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), matches)
	}

	refs, err := engine.Search(ctx, eventID, faces[0])
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	for _, ref := range refs {
		fmt.Fprintln(cmd.OutOrStdout(), ref)
	}
	return nil
}
