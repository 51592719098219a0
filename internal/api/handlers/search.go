package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/search"
	"github.com/your-org/eventface/internal/vision"
	"github.com/your-org/eventface/pkg/dto"
)

type SearchHandler struct {
	engine   *search.Engine
	provider vision.Provider // nil when no models are loaded
}

func NewSearchHandler(engine *search.Engine, provider vision.Provider) *SearchHandler {
	return &SearchHandler{engine: engine, provider: provider}
}

// Search matches a precomputed query descriptor against one event.
// With ?detailed=true the best distance per photo is included.
func (h *SearchHandler) Search(c *gin.Context) {
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("detailed") == "true" {
		h.respondDetailed(c, eventID, req.Query)
		return
	}

	refs, err := h.engine.Search(c.Request.Context(), eventID, req.Query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SearchResponse{Matches: refs})
}

func (h *SearchHandler) respondDetailed(c *gin.Context, eventID uuid.UUID, query []float32) {
	matches, err := h.engine.SearchDetailed(c.Request.Context(), eventID, query)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := dto.DetailedSearchResponse{
		Matches:   make([]dto.MatchDetail, 0, len(matches)),
		Threshold: h.engine.Threshold(),
	}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, dto.MatchDetail{PhotoID: m.PhotoID, PhotoRef: m.PhotoRef, Distance: m.Distance})
	}
	c.JSON(http.StatusOK, resp)
}

// SearchSelfie embeds an uploaded selfie and searches with its first face.
func (h *SearchHandler) SearchSelfie(c *gin.Context) {
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if h.provider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "embedding provider not initialized"})
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "read image failed"})
		return
	}

	faces, err := h.provider.Embed(c.Request.Context(), imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}
	if len(faces) == 0 {
		c.JSON(http.StatusOK, dto.SelfieSearchResponse{Matches: []string{}})
		return
	}

	refs, err := h.engine.Search(c.Request.Context(), eventID, faces[0])
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SelfieSearchResponse{Matches: refs, FaceDetected: true, Faces: len(faces)})
}
