package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/eventface/internal/models"
	"github.com/your-org/eventface/internal/storage"
	"github.com/your-org/eventface/pkg/dto"
)

type EventHandler struct {
	store storage.Store
	blobs storage.BlobStore
}

func NewEventHandler(store storage.Store, blobs storage.BlobStore) *EventHandler {
	return &EventHandler{store: store, blobs: blobs}
}

func toEventResponse(ev models.Event) dto.EventResponse {
	return dto.EventResponse{
		ID:        ev.ID,
		Name:      ev.Name,
		Banner:    ev.Banner,
		CreatedAt: ev.CreatedAt.Format(timeFormat),
	}
}

func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev, err := h.store.CreateEvent(c.Request.Context(), req.Name, req.Banner)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toEventResponse(*ev))
}

func (h *EventHandler) List(c *gin.Context) {
	events, err := h.store.ListEvents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toEventResponse(ev))
	}
	c.JSON(http.StatusOK, dto.EventListResponse{Events: resp, Total: len(resp)})
}

func (h *EventHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	ev, err := h.store.GetEvent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEventResponse(*ev))
}

// Delete removes the event with its photos and vectors, then the uploaded
// images. A failed blob cleanup is logged; the catalog is already gone.
func (h *EventHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteEvent(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	if h.blobs != nil {
		if err := h.blobs.DeletePrefix(c.Request.Context(), storage.EventPrefix(id)); err != nil {
			slog.Warn("delete event blobs", "event_id", id, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
