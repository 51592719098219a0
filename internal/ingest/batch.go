package ingest

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/models"
	"github.com/your-org/eventface/internal/observability"
)

// Failure stages recorded in models.ItemFailure.
const (
	StageLoad      = "load"
	StageEmbed     = "embed"
	StageIngest    = "ingest"
	StageCancelled = "cancelled"
)

// Embedder produces one descriptor per detected face, in detection order.
type Embedder interface {
	Embed(ctx context.Context, image []byte) ([][]float32, error)
}

// Item is one photo of a batch. Load fetches the image bytes lazily so a
// batch never holds every image in memory.
type Item struct {
	PhotoRef string
	Load     func(ctx context.Context) ([]byte, error)
}

type Result struct {
	Index    int       `json:"index"`
	PhotoRef string    `json:"photo_ref"`
	PhotoID  uuid.UUID `json:"photo_id"`
	Faces    int       `json:"faces"`
}

// Progress is reported after every attempted item. Failure is set when
// that item failed.
type Progress struct {
	Completed int
	Total     int
	Succeeded int
	Failure   *models.ItemFailure
}

// Manifest summarises a finished batch. A batch with failed items is
// still a completed batch.
type Manifest struct {
	Attempted int                  `json:"attempted"`
	Succeeded []Result             `json:"succeeded"`
	Failed    []models.ItemFailure `json:"failed"`
}

// Runner drives a batch through load, embed and ingest one item at a time.
type Runner struct {
	pipeline *Pipeline
	embedder Embedder
	logger   *slog.Logger
}

func NewRunner(pipeline *Pipeline, embedder Embedder, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{pipeline: pipeline, embedder: embedder, logger: logger}
}

// Run processes items strictly in order. Each item either lands fully in
// the store or is listed in Manifest.Failed; one bad item never stops the
// batch. Once ctx is cancelled the remaining items are recorded with stage
// "cancelled". onProgress may be nil.
func (r *Runner) Run(ctx context.Context, eventID uuid.UUID, items []Item, onProgress func(Progress)) Manifest {
	observability.ActiveBatches.Inc()
	defer observability.ActiveBatches.Dec()

	m := Manifest{
		Succeeded: []Result{},
		Failed:    []models.ItemFailure{},
	}
	total := len(items)

	for i, item := range items {
		res, fail := r.runItem(ctx, eventID, i, item)
		m.Attempted++

		if fail != nil {
			m.Failed = append(m.Failed, *fail)
			observability.BatchItems.WithLabelValues("failed").Inc()
			observability.IngestFailures.WithLabelValues(fail.Stage).Inc()
			if fail.Stage != StageCancelled {
				r.logger.Warn("batch item failed",
					"event_id", eventID,
					"index", i,
					"photo_ref", item.PhotoRef,
					"stage", fail.Stage,
					"error", fail.Reason,
				)
			}
		} else {
			m.Succeeded = append(m.Succeeded, *res)
			observability.BatchItems.WithLabelValues("succeeded").Inc()
		}

		if onProgress != nil {
			onProgress(Progress{
				Completed: i + 1,
				Total:     total,
				Succeeded: len(m.Succeeded),
				Failure:   fail,
			})
		}
	}

	r.logger.Info("batch finished",
		"event_id", eventID,
		"total", total,
		"succeeded", len(m.Succeeded),
		"failed", len(m.Failed),
	)
	return m
}

func (r *Runner) runItem(ctx context.Context, eventID uuid.UUID, index int, item Item) (*Result, *models.ItemFailure) {
	fail := func(stage string, reason string) *models.ItemFailure {
		return &models.ItemFailure{Index: index, PhotoRef: item.PhotoRef, Stage: stage, Reason: reason}
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(StageCancelled, err.Error())
	}

	data, err := item.Load(ctx)
	if err != nil {
		return nil, fail(StageLoad, err.Error())
	}

	embeddings, err := r.embedder.Embed(ctx, data)
	if err != nil {
		return nil, fail(StageEmbed, err.Error())
	}

	photo, err := r.pipeline.Ingest(ctx, eventID, item.PhotoRef, embeddings)
	if err != nil {
		return nil, fail(StageIngest, err.Error())
	}

	return &Result{
		Index:    index,
		PhotoRef: item.PhotoRef,
		PhotoID:  photo.ID,
		Faces:    len(embeddings),
	}, nil
}
