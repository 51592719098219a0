package search

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/embedding"
	"github.com/your-org/eventface/internal/faceerr"
	"github.com/your-org/eventface/internal/models"
	"github.com/your-org/eventface/internal/observability"
)

// Scanner yields every face vector of one event.
type Scanner interface {
	Scan(ctx context.Context, eventID uuid.UUID) ([]models.ScanRow, error)
}

// Match is a photo whose closest face lies within the threshold.
type Match struct {
	PhotoID  uuid.UUID `json:"photo_id"`
	PhotoRef string    `json:"photo_ref"`
	Distance float64   `json:"distance"`
}

// Engine answers "which photos of this event contain this face". It holds
// no mutable state and is safe for concurrent use.
type Engine struct {
	vectors   Scanner
	dim       int
	threshold float64
}

func NewEngine(vectors Scanner, dim int, threshold float64) (*Engine, error) {
	if dim <= 0 {
		return nil, errors.New("search: dimension must be positive")
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
		return nil, errors.New("search: threshold must be a positive finite number")
	}
	return &Engine{vectors: vectors, dim: dim, threshold: threshold}, nil
}

func (e *Engine) Threshold() float64 { return e.threshold }

func (e *Engine) Dimension() int { return e.dim }

// Search returns the distinct references of photos in eventID having at
// least one face strictly closer than the threshold to query. The result
// is sorted and never nil. An unknown event yields no matches.
func (e *Engine) Search(ctx context.Context, eventID uuid.UUID, query []float32) ([]string, error) {
	matches, err := e.SearchDetailed(ctx, eventID, query)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.PhotoRef]; ok {
			continue
		}
		seen[m.PhotoRef] = struct{}{}
		refs = append(refs, m.PhotoRef)
	}
	sort.Strings(refs)
	return refs, nil
}

// SearchDetailed is Search with the best distance per photo, ordered by
// ascending distance.
func (e *Engine) SearchDetailed(ctx context.Context, eventID uuid.UUID, query []float32) ([]Match, error) {
	if err := embedding.ValidateDimension(query, e.dim); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := e.vectors.Scan(ctx, eventID)
	if err != nil {
		return nil, faceerr.Storage("search", err)
	}

	best := make(map[uuid.UUID]Match)
	for _, r := range rows {
		if len(r.Embedding) != e.dim {
			// Written under a different dimension; never comparable.
			continue
		}
		d := embedding.Euclidean(query, r.Embedding)
		if !(d < e.threshold) {
			continue
		}
		if m, ok := best[r.PhotoID]; !ok || d < m.Distance {
			best[r.PhotoID] = Match{PhotoID: r.PhotoID, PhotoRef: r.PhotoRef, Distance: d}
		}
	}

	out := make([]Match, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].PhotoRef < out[j].PhotoRef
	})

	observability.SearchDuration.Observe(time.Since(start).Seconds())
	observability.SearchScanned.Observe(float64(len(rows)))
	observability.SearchMatches.Observe(float64(len(out)))
	return out, nil
}
