package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/eventface/internal/faceerr"
	"github.com/your-org/eventface/internal/models"
)

const (
	BatchesStreamName   = "BATCHES"
	BatchesSubjectBase  = "batches"
	ProgressStreamName  = "PROGRESS"
	ProgressSubjectBase = "progress"
	StateBucket         = "BATCH_STATE"
)

func BatchSubject(eventID uuid.UUID) string {
	return BatchesSubjectBase + "." + eventID.String()
}

func ProgressSubject(batchID uuid.UUID) string {
	return ProgressSubjectBase + "." + batchID.String()
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
	kv jetstream.KeyValue
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the streams and the state bucket if they don't
// exist. Retries up to 30 times (1s apart) to ride out NATS startup.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        BatchesStreamName,
			Subjects:    []string{BatchesSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Duplicates:  10 * time.Minute,
			Description: "Photo batches awaiting ingestion",
		},
		{
			Name:        ProgressStreamName,
			Subjects:    []string{ProgressSubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      time.Hour,
			Storage:     jetstream.MemoryStorage,
			Description: "Per-item batch progress",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := p.ensureOnce(ctx, streams)
		if err == nil {
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("%w (after %d attempts)", err, maxAttempts)
		}
		slog.Warn("ensure NATS streams (retrying...)", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

func (p *Producer) ensureOnce(ctx context.Context, streams []jetstream.StreamConfig) error {
	for _, cfg := range streams {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		slog.Info("ensured NATS stream", "name", cfg.Name)
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	kv, err := p.js.CreateOrUpdateKeyValue(opCtx, jetstream.KeyValueConfig{
		Bucket:      StateBucket,
		Description: "Latest progress per batch",
		TTL:         7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create kv %s: %w", StateBucket, err)
	}
	p.kv = kv
	return nil
}

// PublishBatch enqueues a batch. The batch id doubles as the message id,
// so a resubmitted job inside the duplicate window is dropped by the server.
func (p *Producer) PublishBatch(ctx context.Context, job models.BatchJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal batch job: %w", err)
	}
	if _, err := p.js.Publish(ctx, BatchSubject(job.EventID), payload, jetstream.WithMsgID(job.ID.String())); err != nil {
		return faceerr.Storage("publish batch", err)
	}
	return nil
}

func (p *Producer) PublishProgress(ctx context.Context, prog models.BatchProgress) error {
	payload, err := json.Marshal(prog)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if _, err := p.js.Publish(ctx, ProgressSubject(prog.BatchID), payload); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

func (p *Producer) bucket(ctx context.Context) (jetstream.KeyValue, error) {
	if p.kv != nil {
		return p.kv, nil
	}
	kv, err := p.js.KeyValue(ctx, StateBucket)
	if err != nil {
		return nil, fmt.Errorf("open kv %s: %w", StateBucket, err)
	}
	p.kv = kv
	return kv, nil
}

// PutState stores prog as the latest known state of its batch.
func (p *Producer) PutState(ctx context.Context, prog models.BatchProgress) error {
	kv, err := p.bucket(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(prog)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if _, err := kv.Put(ctx, prog.BatchID.String(), payload); err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

// DeleteState forgets a batch, for submissions that were never queued.
func (p *Producer) DeleteState(ctx context.Context, batchID uuid.UUID) error {
	kv, err := p.bucket(ctx)
	if err != nil {
		return err
	}
	if err := kv.Purge(ctx, batchID.String()); err != nil {
		return fmt.Errorf("purge state: %w", err)
	}
	return nil
}

// GetState returns the latest progress of a batch, or a reference error
// when the batch is unknown.
func (p *Producer) GetState(ctx context.Context, batchID uuid.UUID) (*models.BatchProgress, error) {
	kv, err := p.bucket(ctx)
	if err != nil {
		return nil, faceerr.Storage("get batch state", err)
	}
	entry, err := kv.Get(ctx, batchID.String())
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, faceerr.Reference("get batch state", "batch %s not found", batchID)
		}
		return nil, faceerr.Storage("get batch state", err)
	}
	var prog models.BatchProgress
	if err := json.Unmarshal(entry.Value(), &prog); err != nil {
		return nil, faceerr.Storage("get batch state", err)
	}
	return &prog, nil
}

// QueueDepth returns the number of batches waiting in the BATCHES stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, BatchesStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
