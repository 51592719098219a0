// Package cli implements facectl, the operator command line for events,
// bulk ingestion and search.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/your-org/eventface/internal/config"
	"github.com/your-org/eventface/internal/observability"
	"github.com/your-org/eventface/internal/storage"
	"github.com/your-org/eventface/internal/vision"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "facectl",
	Short: "Manage events and run face ingestion and search from the command line",
	Long: `facectl talks to the eventface store directly. It creates and removes
events, ingests a directory of photos through the face models and searches
an event with a selfie.`,
	SilenceUsage: true,
}

// Execute runs the root command with os.Args. Interrupting cancels the
// running command; an interrupted ingest still prints its manifest.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the config and routes logs to stderr so stdout stays
// machine readable.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(observability.NewLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}

func openStore(ctx context.Context, cmd *cobra.Command) (*config.Config, storage.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Driver == config.DriverMemory {
		return nil, nil, fmt.Errorf("the memory driver does not persist between facectl runs")
	}
	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return cfg, store, nil
}

// openProvider loads the ONNX runtime and face models. The returned
// cleanup releases both.
func openProvider(cfg *config.Config) (*vision.ONNXProvider, func(), error) {
	if err := vision.InitRuntime(cfg.Vision.LibraryPath); err != nil {
		return nil, nil, err
	}
	provider, err := vision.NewONNXProvider(cfg.Vision, cfg.Matching.Dimension)
	if err != nil {
		vision.DestroyRuntime()
		return nil, nil, fmt.Errorf("failed to load face models: %w", err)
	}
	return provider, func() {
		provider.Close()
		vision.DestroyRuntime()
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}
