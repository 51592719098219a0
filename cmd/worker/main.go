package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/eventface/internal/config"
	"github.com/your-org/eventface/internal/ingest"
	"github.com/your-org/eventface/internal/observability"
	"github.com/your-org/eventface/internal/queue"
	"github.com/your-org/eventface/internal/storage"
	"github.com/your-org/eventface/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", ":8082", "address for /metrics and /healthz")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting eventface batch worker",
		"workers", cfg.Batch.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
		"matching_version", cfg.Matching.Version,
	)

	if cfg.Database.Driver == config.DriverMemory {
		slog.Error("worker needs a shared database, memory driver is process-local")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := vision.InitRuntime(cfg.Vision.LibraryPath); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer vision.DestroyRuntime()

	provider, err := vision.NewONNXProvider(cfg.Vision, cfg.Matching.Dimension)
	if err != nil {
		slog.Error("load face models", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	runner := ingest.NewRunner(ingest.NewPipeline(db, db, cfg.Matching.Dimension), provider, slog.Default())
	processor := ingest.NewJobProcessor(runner, minioStore, producer, slog.Default())

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeBatches(ctx, "batch-workers", func(ctx context.Context, msg jetstream.Msg) error {
		job, err := queue.DecodeBatchJob(msg.Data())
		if err != nil {
			slog.Error("decode batch job", "subject", msg.Subject(), "error", err)
			return nil // a malformed job never becomes valid
		}

		// One slow item must not outlive the ack deadline either.
		stop := keepAlive(ctx, msg, 30*time.Second)
		defer stop()

		if _, err := processor.Process(ctx, job, func() { _ = msg.InProgress() }); err != nil {
			return fmt.Errorf("process batch %s: %w", job.ID, err)
		}
		return nil
	}, cfg.Batch.WorkerCount)
	if err != nil {
		slog.Error("start batch consumer", "error", err)
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := producer.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"nats disconnected"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Cancelling marks unfinished items as cancelled; the final snapshot
	// still reaches the state bucket.
	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}

// keepAlive extends msg's ack deadline every interval until stop is called.
func keepAlive(ctx context.Context, msg jetstream.Msg, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_ = msg.InProgress()
			}
		}
	}()
	return func() { close(done) }
}
