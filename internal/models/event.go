package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a gallery scope. Deleting it removes every Photo and FaceVector
// bound to it.
type Event struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Banner    *string   `json:"banner,omitempty" db:"banner"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
