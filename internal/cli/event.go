package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Create, list and delete events",
}

var eventCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an event and print its ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventCreate,
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events, newest first",
	Args:  cobra.NoArgs,
	RunE:  runEventList,
}

var eventDeleteCmd = &cobra.Command{
	Use:   "delete <event-id>",
	Short: "Delete an event with all its photos and face vectors",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventDelete,
}

func init() {
	eventCreateCmd.Flags().String("banner", "", "Banner image reference")
	eventListCmd.Flags().Bool("json", false, "Print events as JSON")

	eventCmd.AddCommand(eventCreateCmd, eventListCmd, eventDeleteCmd)
	rootCmd.AddCommand(eventCmd)
}

func runEventCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	var banner *string
	if b := mustGetString(cmd, "banner"); b != "" {
		banner = &b
	}

	ev, err := store.CreateEvent(ctx, args[0], banner)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ev.ID)
	return nil
}

func runEventList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return printJSON(cmd.OutOrStdout(), events)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPHOTOS\tCREATED")
	for _, ev := range events {
		photos, err := store.ListPhotos(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("failed to list photos of %s: %w", ev.ID, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", ev.ID, ev.Name, len(photos), ev.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runEventDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	_, store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteEvent(ctx, id); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted event %s\n", id)
	return nil
}
