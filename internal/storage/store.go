package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/config"
	"github.com/your-org/eventface/internal/models"
)

// Store is the catalog (events, photos) plus the vector store (face
// vectors). All backends honour the cascade: deleting an event removes its
// photos and vectors, deleting a photo removes its vectors.
type Store interface {
	CreateEvent(ctx context.Context, name string, banner *string) (*models.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	DeleteEvent(ctx context.Context, id uuid.UUID) error

	CreatePhoto(ctx context.Context, p *models.Photo) error
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	ListPhotos(ctx context.Context, eventID uuid.UUID) ([]models.Photo, error)
	DeletePhoto(ctx context.Context, id uuid.UUID) error

	// WritePhoto inserts the photo and one vector per embedding atomically.
	WritePhoto(ctx context.Context, p *models.Photo, embeddings [][]float32) error

	Append(ctx context.Context, eventID, photoID uuid.UUID, embeddings [][]float32) error
	Scan(ctx context.Context, eventID uuid.UUID) ([]models.ScanRow, error)
	CountVectors(ctx context.Context, eventID uuid.UUID) (int, error)

	Ping(ctx context.Context) error
	Close()
}

// Open connects to the backend selected by cfg.Driver and brings its
// schema up to date.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := NewPostgresStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
