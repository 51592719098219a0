package dto

import "github.com/google/uuid"

type SearchRequest struct {
	Query []float32 `json:"probe" binding:"required"`
}

// SearchResponse lists matching photo references. Matches is never null.
type SearchResponse struct {
	Matches []string `json:"matches"`
}

type SelfieSearchResponse struct {
	Matches      []string `json:"matches"`
	FaceDetected bool     `json:"face_detected"`
	Faces        int      `json:"faces"`
}

// MatchDetail is returned by search endpoints when ?detailed=true.
type MatchDetail struct {
	PhotoID  uuid.UUID `json:"photo_id"`
	PhotoRef string    `json:"photo_ref"`
	Distance float64   `json:"distance"`
}

type DetailedSearchResponse struct {
	Matches   []MatchDetail `json:"matches"`
	Threshold float64       `json:"threshold"`
}
