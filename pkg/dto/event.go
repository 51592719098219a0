package dto

import "github.com/google/uuid"

type CreateEventRequest struct {
	Name   string  `json:"name" binding:"required"`
	Banner *string `json:"banner"`
}

type EventResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Banner    *string   `json:"banner,omitempty"`
	CreatedAt string    `json:"created_at"`
}

type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Total  int             `json:"total"`
}
