package models

import (
	"time"

	"github.com/google/uuid"
)

// BatchJob is the message published to NATS for worker processing.
type BatchJob struct {
	ID          uuid.UUID   `json:"id"`
	EventID     uuid.UUID   `json:"event_id"`
	Items       []BatchItem `json:"items"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

type BatchItem struct {
	Index     int    `json:"index"`
	ObjectKey string `json:"object_key"` // MinIO object key of the uploaded image
	PhotoRef  string `json:"photo_ref"`
	Filename  string `json:"filename"`
}

// ItemFailure records why a single batch item was not ingested.
type ItemFailure struct {
	Index    int    `json:"index"`
	PhotoRef string `json:"photo_ref"`
	Stage    string `json:"stage"` // load, embed, ingest, cancelled
	Reason   string `json:"reason"`
}

// BatchProgress is published after every attempted item and stored as the
// latest state of the batch.
type BatchProgress struct {
	BatchID   uuid.UUID     `json:"batch_id"`
	EventID   uuid.UUID     `json:"event_id"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    []ItemFailure `json:"failed"`
	Done      bool          `json:"done"`
	UpdatedAt time.Time     `json:"updated_at"`
}
