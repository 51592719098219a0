package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/models"
)

type BatchAcceptedResponse struct {
	BatchID uuid.UUID `json:"batch_id"`
	EventID uuid.UUID `json:"event_id"`
	Total   int       `json:"total"`
}

// WSEvent is a WebSocket message for real-time batch progress.
type WSEvent struct {
	Type     string               `json:"type"` // batch_progress, batch_done
	BatchID  uuid.UUID            `json:"batch_id"`
	Progress models.BatchProgress `json:"progress"`
}
