package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/models"
	"github.com/your-org/eventface/internal/storage"
	"github.com/your-org/eventface/pkg/dto"
)

// BatchQueue hands batches to workers and tracks their progress.
type BatchQueue interface {
	PublishBatch(ctx context.Context, job models.BatchJob) error
	PutState(ctx context.Context, prog models.BatchProgress) error
	GetState(ctx context.Context, batchID uuid.UUID) (*models.BatchProgress, error)
	DeleteState(ctx context.Context, batchID uuid.UUID) error
}

type BatchHandler struct {
	store    storage.Store
	blobs    storage.BlobStore
	queue    BatchQueue
	maxItems int
}

func NewBatchHandler(store storage.Store, blobs storage.BlobStore, queue BatchQueue, maxItems int) *BatchHandler {
	return &BatchHandler{store: store, blobs: blobs, queue: queue, maxItems: maxItems}
}

// Submit uploads every images[] file to the blob store and enqueues one
// batch job for them. Processing happens on a worker.
func (h *BatchHandler) Submit(c *gin.Context) {
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if h.queue == nil || h.blobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "batch processing not configured"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetEvent(ctx, eventID); err != nil {
		respondError(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one images file required"})
		return
	}
	if h.maxItems > 0 && len(files) > h.maxItems {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("batch exceeds %d images", h.maxItems)})
		return
	}

	job := models.BatchJob{
		ID:          uuid.New(),
		EventID:     eventID,
		Items:       make([]models.BatchItem, 0, len(files)),
		SubmittedAt: time.Now().UTC(),
	}

	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			h.discardUploads(ctx, job)
			c.JSON(http.StatusBadRequest, gin.H{"error": "open " + fh.Filename})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			h.discardUploads(ctx, job)
			c.JSON(http.StatusBadRequest, gin.H{"error": "read " + fh.Filename})
			return
		}

		key := storage.BatchItemKey(eventID, job.ID, i, fh.Filename)
		if err := h.blobs.PutObject(ctx, key, data, fh.Header.Get("Content-Type")); err != nil {
			h.discardUploads(ctx, job)
			respondError(c, err)
			return
		}
		job.Items = append(job.Items, models.BatchItem{
			Index:     i,
			ObjectKey: key,
			PhotoRef:  key,
			Filename:  fh.Filename,
		})
	}

	initial := models.BatchProgress{
		BatchID:   job.ID,
		EventID:   eventID,
		Total:     len(job.Items),
		Failed:    []models.ItemFailure{},
		UpdatedAt: job.SubmittedAt,
	}
	if err := h.queue.PutState(ctx, initial); err != nil {
		slog.Warn("store initial batch state", "batch_id", job.ID, "error", err)
	}
	if err := h.queue.PublishBatch(ctx, job); err != nil {
		// Nothing will ever process this batch; leave no trace of it.
		if derr := h.queue.DeleteState(context.WithoutCancel(ctx), job.ID); derr != nil {
			slog.Warn("delete state of unqueued batch", "batch_id", job.ID, "error", derr)
		}
		h.discardUploads(ctx, job)
		respondError(c, err)
		return
	}

	slog.Info("batch accepted", "batch_id", job.ID, "event_id", eventID, "items", len(job.Items))
	c.JSON(http.StatusAccepted, dto.BatchAcceptedResponse{
		BatchID: job.ID,
		EventID: eventID,
		Total:   len(job.Items),
	})
}

// discardUploads removes the images already stored for a batch that is
// not going to be queued.
func (h *BatchHandler) discardUploads(ctx context.Context, job models.BatchJob) {
	prefix := storage.BatchPrefix(job.EventID, job.ID)
	if err := h.blobs.DeletePrefix(context.WithoutCancel(ctx), prefix); err != nil {
		slog.Warn("delete uploads of unqueued batch", "batch_id", job.ID, "prefix", prefix, "error", err)
	}
}

// Get returns the latest recorded progress of a batch.
func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "batch processing not configured"})
		return
	}

	prog, err := h.queue.GetState(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prog)
}
