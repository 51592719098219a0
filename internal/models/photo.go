package models

import (
	"time"

	"github.com/google/uuid"
)

type Photo struct {
	ID        uuid.UUID `json:"id" db:"id"`
	EventID   uuid.UUID `json:"event_id" db:"event_id"`
	URL       string    `json:"url" db:"url"` // externally stored image reference
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FaceVector is one face embedding of one photo. EventID always equals the
// owning photo's EventID.
type FaceVector struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PhotoID   uuid.UUID `json:"photo_id" db:"photo_id"`
	EventID   uuid.UUID `json:"event_id" db:"event_id"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ScanRow is a face vector joined with its photo's reference.
type ScanRow struct {
	PhotoID   uuid.UUID
	PhotoRef  string
	Embedding []float32
}
