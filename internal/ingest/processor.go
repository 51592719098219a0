package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/faceerr"
	"github.com/your-org/eventface/internal/models"
)

// ObjectLoader fetches uploaded images by object key.
type ObjectLoader interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// ProgressSink receives every progress snapshot of a queued batch and
// returns the latest one, or a reference error when none was stored.
type ProgressSink interface {
	PublishProgress(ctx context.Context, prog models.BatchProgress) error
	PutState(ctx context.Context, prog models.BatchProgress) error
	GetState(ctx context.Context, batchID uuid.UUID) (*models.BatchProgress, error)
}

// JobProcessor runs queued batch jobs on a worker and reports their
// progress to the sink.
type JobProcessor struct {
	runner  *Runner
	objects ObjectLoader
	sink    ProgressSink
	logger  *slog.Logger
}

func NewJobProcessor(runner *Runner, objects ObjectLoader, sink ProgressSink, logger *slog.Logger) *JobProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobProcessor{runner: runner, objects: objects, sink: sink, logger: logger}
}

// Process runs job to completion and publishes a final snapshot with Done
// set. heartbeat is called after every item so the caller can extend its
// ack deadline; it may be nil.
//
// A redelivered job resumes after the last item recorded in the sink, so
// no item is ingested twice. The returned error is set only when that
// record cannot be read; nothing has been ingested then. Sink write errors
// are logged, never fatal.
func (p *JobProcessor) Process(ctx context.Context, job models.BatchJob, heartbeat func()) (Manifest, error) {
	state := models.BatchProgress{
		BatchID: job.ID,
		EventID: job.EventID,
		Total:   len(job.Items),
		Failed:  []models.ItemFailure{},
	}

	prev, err := p.sink.GetState(ctx, job.ID)
	switch {
	case err == nil:
		state.Completed = min(prev.Completed, len(job.Items))
		state.Succeeded = prev.Succeeded
		state.Failed = append(state.Failed, prev.Failed...)
		state.Done = prev.Done
	case !faceerr.IsReference(err):
		return Manifest{}, fmt.Errorf("read state of batch %s: %w", job.ID, err)
	}

	if state.Done {
		p.logger.Info("batch already finished", "batch_id", job.ID)
		return Manifest{Succeeded: []Result{}, Failed: []models.ItemFailure{}}, nil
	}

	offset := state.Completed
	items := make([]Item, 0, len(job.Items)-offset)
	for _, bi := range job.Items[offset:] {
		key := bi.ObjectKey
		items = append(items, Item{
			PhotoRef: bi.PhotoRef,
			Load: func(ctx context.Context) ([]byte, error) {
				return p.objects.GetObject(ctx, key)
			},
		})
	}

	if offset > 0 {
		p.logger.Info("batch resumed", "batch_id", job.ID, "event_id", job.EventID, "from", offset, "items", len(job.Items))
	} else {
		p.logger.Info("batch started", "batch_id", job.ID, "event_id", job.EventID, "items", len(job.Items))
	}

	succeededBefore := state.Succeeded
	m := p.runner.Run(ctx, job.EventID, items, func(pr Progress) {
		if heartbeat != nil {
			heartbeat()
		}
		state.Completed = offset + pr.Completed
		state.Succeeded = succeededBefore + pr.Succeeded
		if pr.Failure != nil {
			f := *pr.Failure
			f.Index += offset
			state.Failed = append(state.Failed, f)
		}
		p.report(ctx, state)
	})

	for i := range m.Succeeded {
		m.Succeeded[i].Index += offset
	}
	for i := range m.Failed {
		m.Failed[i].Index += offset
	}

	state.Completed = offset + m.Attempted
	state.Succeeded = succeededBefore + len(m.Succeeded)
	state.Done = true
	// The final snapshot must go out even when the batch was cancelled.
	p.report(context.WithoutCancel(ctx), state)

	return m, nil
}

func (p *JobProcessor) report(ctx context.Context, state models.BatchProgress) {
	state.UpdatedAt = time.Now().UTC()
	state.Failed = append([]models.ItemFailure(nil), state.Failed...)
	if state.Failed == nil {
		state.Failed = []models.ItemFailure{}
	}
	if err := p.sink.PutState(ctx, state); err != nil {
		p.logger.Warn("store batch state", "batch_id", state.BatchID, "error", err)
	}
	if err := p.sink.PublishProgress(ctx, state); err != nil {
		p.logger.Warn("publish batch progress", "batch_id", state.BatchID, "error", err)
	}
}
