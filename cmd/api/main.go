package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/eventface/internal/api"
	"github.com/your-org/eventface/internal/api/handlers"
	"github.com/your-org/eventface/internal/api/ws"
	"github.com/your-org/eventface/internal/config"
	"github.com/your-org/eventface/internal/ingest"
	"github.com/your-org/eventface/internal/observability"
	"github.com/your-org/eventface/internal/queue"
	"github.com/your-org/eventface/internal/search"
	"github.com/your-org/eventface/internal/storage"
	"github.com/your-org/eventface/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting eventface API",
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
		"matching_version", cfg.Matching.Version,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	checks := map[string]handlers.Check{"database": db.Ping}

	routerCfg := api.RouterConfig{
		APIKey:        cfg.Server.APIKey,
		MaxUploadMB:   cfg.Server.MaxUploadMB,
		MaxBatchItems: cfg.Batch.MaxItems,
		Store:         db,
		Pipeline:      ingest.NewPipeline(db, db, cfg.Matching.Dimension),
		Checks:        checks,
	}

	engine, err := search.NewEngine(db, cfg.Matching.Dimension, cfg.Matching.Threshold)
	if err != nil {
		slog.Error("init search engine", "error", err)
		os.Exit(1)
	}
	routerCfg.Engine = engine

	// Blob storage is optional; without it batch upload and the image
	// proxy answer 503.
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		routerCfg.Blobs = minioStore
		checks["minio"] = minioStore.Ping
	} else if cfg.Database.Driver == config.DriverMemory {
		routerCfg.Blobs = storage.NewMemoryBlobStore()
	}

	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		routerCfg.Queue = producer
		checks["nats"] = func(context.Context) error { return producer.Ping() }

		hub := ws.NewHub()
		go hub.Run(ctx)
		routerCfg.Hub = hub

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create progress consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeProgress(ctx, progressConsumerName(), func(ctx context.Context, msg jetstream.Msg) error {
			prog, err := queue.DecodeProgress(msg.Data())
			if err != nil {
				slog.Warn("drop malformed progress", "subject", msg.Subject(), "error", err)
				return nil
			}
			hub.BroadcastProgress(prog)
			return nil
		})
		if err != nil {
			slog.Warn("start progress consumer", "error", err)
		}
	}

	if cfg.Vision.Enabled {
		if provider := loadProvider(cfg); provider != nil {
			routerCfg.Provider = provider
			defer provider.Close()
			defer vision.DestroyRuntime()
		}
	}

	router := api.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// loadProvider returns nil when the runtime or models are unavailable;
// selfie search then answers 503 and everything else keeps working.
func loadProvider(cfg *config.Config) *vision.ONNXProvider {
	if err := vision.InitRuntime(cfg.Vision.LibraryPath); err != nil {
		slog.Warn("onnx runtime unavailable, selfie search disabled", "error", err)
		return nil
	}
	provider, err := vision.NewONNXProvider(cfg.Vision, cfg.Matching.Dimension)
	if err != nil {
		slog.Warn("load face models, selfie search disabled", "error", err)
		vision.DestroyRuntime()
		return nil
	}
	slog.Info("face models loaded", "dimension", provider.Dimension())
	return provider
}

// progressConsumerName is unique per replica so that every API process
// sees every progress message.
func progressConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return "api-progress-" + sanitizeName(host)
}

func sanitizeName(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
