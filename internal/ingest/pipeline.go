package ingest

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/embedding"
	"github.com/your-org/eventface/internal/faceerr"
	"github.com/your-org/eventface/internal/models"
	"github.com/your-org/eventface/internal/observability"
)

// Catalog is the subset of the store the pipeline needs for photos.
type Catalog interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	CreatePhoto(ctx context.Context, p *models.Photo) error
	DeletePhoto(ctx context.Context, id uuid.UUID) error
}

type VectorAppender interface {
	Append(ctx context.Context, eventID, photoID uuid.UUID, embeddings [][]float32) error
}

// AtomicWriter is implemented by stores that can persist a photo and its
// vectors in one step.
type AtomicWriter interface {
	WritePhoto(ctx context.Context, p *models.Photo, embeddings [][]float32) error
}

// Pipeline turns (event, photo reference, descriptors) into a stored Photo
// with one FaceVector per descriptor. It never sees image bytes.
type Pipeline struct {
	catalog Catalog
	vectors VectorAppender
	dim     int
}

func NewPipeline(catalog Catalog, vectors VectorAppender, dim int) *Pipeline {
	return &Pipeline{catalog: catalog, vectors: vectors, dim: dim}
}

// Ingest validates everything up front, then writes the photo and its
// vectors so that either all of them are visible to search or none are.
// An empty embeddings slice stores a photo with no faces.
func (p *Pipeline) Ingest(ctx context.Context, eventID uuid.UUID, photoRef string, embeddings [][]float32) (*models.Photo, error) {
	if photoRef == "" {
		return nil, faceerr.Validation("ingest", "photo reference is required")
	}
	if err := embedding.ValidateAll(embeddings, p.dim); err != nil {
		return nil, err
	}
	if _, err := p.catalog.GetEvent(ctx, eventID); err != nil {
		return nil, faceerr.Storage("ingest", err)
	}

	photo := &models.Photo{EventID: eventID, URL: photoRef}

	if w, ok := p.catalog.(AtomicWriter); ok {
		if err := w.WritePhoto(ctx, photo, embeddings); err != nil {
			return nil, faceerr.Storage("ingest", err)
		}
	} else if err := p.writeCompensating(ctx, photo, embeddings); err != nil {
		return nil, err
	}

	observability.PhotosIngested.Inc()
	observability.VectorsStored.Add(float64(len(embeddings)))
	slog.Debug("photo ingested",
		"event_id", eventID,
		"photo_id", photo.ID,
		"faces", len(embeddings),
	)
	return photo, nil
}

// writeCompensating creates the photo and appends vectors, deleting the
// photo again when the append fails.
func (p *Pipeline) writeCompensating(ctx context.Context, photo *models.Photo, embeddings [][]float32) error {
	if err := p.catalog.CreatePhoto(ctx, photo); err != nil {
		return faceerr.Storage("ingest", err)
	}
	if err := p.vectors.Append(ctx, photo.EventID, photo.ID, embeddings); err != nil {
		// The caller's context may be what failed; the rollback must still run.
		if derr := p.catalog.DeletePhoto(context.WithoutCancel(ctx), photo.ID); derr != nil {
			slog.Error("rollback photo after failed append",
				"photo_id", photo.ID,
				"error", derr,
			)
		}
		return faceerr.Storage("ingest", err)
	}
	return nil
}
