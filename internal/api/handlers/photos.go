package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/eventface/internal/ingest"
	"github.com/your-org/eventface/internal/models"
	"github.com/your-org/eventface/internal/storage"
	"github.com/your-org/eventface/pkg/dto"
)

type PhotoHandler struct {
	store    storage.Store
	blobs    storage.BlobStore
	pipeline *ingest.Pipeline
}

func NewPhotoHandler(store storage.Store, blobs storage.BlobStore, pipeline *ingest.Pipeline) *PhotoHandler {
	return &PhotoHandler{store: store, blobs: blobs, pipeline: pipeline}
}

func toPhotoResponse(p models.Photo) dto.PhotoResponse {
	return dto.PhotoResponse{
		ID:        p.ID,
		EventID:   p.EventID,
		PhotoRef:  p.URL,
		ImageURL:  "/v1/photos/" + p.ID.String() + "/image",
		CreatedAt: p.CreatedAt.Format(timeFormat),
	}
}

// List returns the event's gallery, newest first.
func (h *PhotoHandler) List(c *gin.Context) {
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetEvent(ctx, eventID); err != nil {
		respondError(c, err)
		return
	}
	photos, err := h.store.ListPhotos(ctx, eventID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.PhotoResponse, 0, len(photos))
	for _, p := range photos {
		resp = append(resp, toPhotoResponse(p))
	}
	c.JSON(http.StatusOK, dto.PhotoListResponse{Photos: resp, Total: len(resp)})
}

// Ingest stores one photo with precomputed descriptors.
func (h *PhotoHandler) Ingest(c *gin.Context) {
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req dto.IngestPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	photo, err := h.pipeline.Ingest(c.Request.Context(), eventID, req.PhotoRef, req.Embeddings)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := toPhotoResponse(*photo)
	faces := len(req.Embeddings)
	resp.Faces = &faces
	c.JSON(http.StatusCreated, resp)
}

// Image proxies the uploaded image of a photo from the blob store.
func (h *PhotoHandler) Image(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if h.blobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}

	photo, err := h.store.GetPhoto(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := h.blobs.GetObject(c.Request.Context(), photo.URL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
