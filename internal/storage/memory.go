package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/faceerr"
	"github.com/your-org/eventface/internal/models"
)

// MemoryStore keeps everything in process memory. It backs tests and the
// "memory" driver for local demos; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	events  map[uuid.UUID]models.Event
	photos  map[uuid.UUID]models.Photo
	vectors map[uuid.UUID][]models.FaceVector // by event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  make(map[uuid.UUID]models.Event),
		photos:  make(map[uuid.UUID]models.Photo),
		vectors: make(map[uuid.UUID][]models.FaceVector),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}

// --- Events ---

func (s *MemoryStore) CreateEvent(ctx context.Context, name string, banner *string) (*models.Event, error) {
	if name == "" {
		return nil, faceerr.Validation("create event", "name is required")
	}
	ev := models.Event{ID: uuid.New(), Name: name, Banner: banner, CreatedAt: time.Now().UTC()}

	s.mu.Lock()
	s.events[ev.ID] = ev
	s.mu.Unlock()
	return &ev, nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.RLock()
	ev, ok := s.events[id]
	s.mu.RUnlock()
	if !ok {
		return nil, faceerr.Reference("get event", "event %s not found", id)
	}
	return &ev, nil
}

func (s *MemoryStore) ListEvents(ctx context.Context) ([]models.Event, error) {
	s.mu.RLock()
	events := make([]models.Event, 0, len(s.events))
	for _, ev := range s.events {
		events = append(events, ev)
	}
	s.mu.RUnlock()

	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	return events, nil
}

func (s *MemoryStore) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return faceerr.Reference("delete event", "event %s not found", id)
	}
	for pid, p := range s.photos {
		if p.EventID == id {
			delete(s.photos, pid)
		}
	}
	delete(s.vectors, id)
	delete(s.events, id)
	return nil
}

// --- Photos ---

func (s *MemoryStore) CreatePhoto(ctx context.Context, p *models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertPhotoLocked(p)
}

func (s *MemoryStore) insertPhotoLocked(p *models.Photo) error {
	if _, ok := s.events[p.EventID]; !ok {
		return faceerr.Reference("create photo", "event %s not found", p.EventID)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.photos[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	s.mu.RLock()
	p, ok := s.photos[id]
	s.mu.RUnlock()
	if !ok {
		return nil, faceerr.Reference("get photo", "photo %s not found", id)
	}
	return &p, nil
}

func (s *MemoryStore) ListPhotos(ctx context.Context, eventID uuid.UUID) ([]models.Photo, error) {
	s.mu.RLock()
	var photos []models.Photo
	for _, p := range s.photos {
		if p.EventID == eventID {
			photos = append(photos, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(photos, func(i, j int) bool { return photos[i].CreatedAt.After(photos[j].CreatedAt) })
	return photos, nil
}

func (s *MemoryStore) DeletePhoto(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photos[id]
	if !ok {
		return faceerr.Reference("delete photo", "photo %s not found", id)
	}
	kept := s.vectors[p.EventID][:0]
	for _, fv := range s.vectors[p.EventID] {
		if fv.PhotoID != id {
			kept = append(kept, fv)
		}
	}
	s.vectors[p.EventID] = kept
	delete(s.photos, id)
	return nil
}

func (s *MemoryStore) WritePhoto(ctx context.Context, p *models.Photo, embeddings [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertPhotoLocked(p); err != nil {
		return err
	}
	return s.appendLocked(p.EventID, p.ID, embeddings)
}

// --- Face vectors ---

func (s *MemoryStore) Append(ctx context.Context, eventID, photoID uuid.UUID, embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(eventID, photoID, embeddings)
}

func (s *MemoryStore) appendLocked(eventID, photoID uuid.UUID, embeddings [][]float32) error {
	p, ok := s.photos[photoID]
	if !ok {
		return faceerr.Reference("append", "photo %s not found", photoID)
	}
	if p.EventID != eventID {
		return faceerr.Reference("append", "photo %s does not belong to event %s", photoID, eventID)
	}
	now := time.Now().UTC()
	for _, emb := range embeddings {
		s.vectors[eventID] = append(s.vectors[eventID], models.FaceVector{
			ID:        uuid.New(),
			PhotoID:   photoID,
			EventID:   eventID,
			Embedding: copyVector(emb),
			CreatedAt: now,
		})
	}
	return nil
}

func (s *MemoryStore) Scan(ctx context.Context, eventID uuid.UUID) ([]models.ScanRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vectors := s.vectors[eventID]
	rows := make([]models.ScanRow, 0, len(vectors))
	for _, fv := range vectors {
		rows = append(rows, models.ScanRow{
			PhotoID:   fv.PhotoID,
			PhotoRef:  s.photos[fv.PhotoID].URL,
			Embedding: copyVector(fv.Embedding),
		})
	}
	return rows, nil
}

func (s *MemoryStore) CountVectors(ctx context.Context, eventID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors[eventID]), nil
}
