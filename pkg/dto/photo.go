package dto

import "github.com/google/uuid"

// IngestPhotoRequest carries precomputed face descriptors for one photo.
// An empty Embeddings list stores a photo without faces.
type IngestPhotoRequest struct {
	PhotoRef   string      `json:"photo_ref"`
	Embeddings [][]float32 `json:"embeddings"`
}

type PhotoResponse struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	PhotoRef  string    `json:"photo_ref"`
	Faces     *int      `json:"faces,omitempty"`
	ImageURL  string    `json:"image_url"`
	CreatedAt string    `json:"created_at"`
}

type PhotoListResponse struct {
	Photos []PhotoResponse `json:"photos"`
	Total  int             `json:"total"`
}
