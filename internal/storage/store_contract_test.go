package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/faceerr"
	"github.com/your-org/eventface/internal/models"
)

func vec(dim int, head ...float32) []float32 {
	v := make([]float32, dim)
	copy(v, head)
	return v
}

// runStoreContract exercises the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreateEventRequiresName", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.CreateEvent(ctx, "", nil); !faceerr.IsValidation(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetEvent(ctx, uuid.New()); !faceerr.IsReference(err) {
			t.Errorf("GetEvent: expected reference error, got %v", err)
		}
		if _, err := s.GetPhoto(ctx, uuid.New()); !faceerr.IsReference(err) {
			t.Errorf("GetPhoto: expected reference error, got %v", err)
		}
		if err := s.DeleteEvent(ctx, uuid.New()); !faceerr.IsReference(err) {
			t.Errorf("DeleteEvent: expected reference error, got %v", err)
		}
		if err := s.DeletePhoto(ctx, uuid.New()); !faceerr.IsReference(err) {
			t.Errorf("DeletePhoto: expected reference error, got %v", err)
		}
	})

	t.Run("EventRoundTrip", func(t *testing.T) {
		s := newStore(t)
		banner := "https://cdn.example/banner.jpg"
		ev, err := s.CreateEvent(ctx, "Marathon 2024", &banner)
		if err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
		got, err := s.GetEvent(ctx, ev.ID)
		if err != nil {
			t.Fatalf("GetEvent: %v", err)
		}
		if got.Name != "Marathon 2024" || got.Banner == nil || *got.Banner != banner {
			t.Errorf("unexpected event %+v", got)
		}

		if _, err := s.CreateEvent(ctx, "Second", nil); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
		events, err := s.ListEvents(ctx)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(events) != 2 {
			t.Errorf("expected 2 events, got %d", len(events))
		}
	})

	t.Run("CreatePhotoUnknownEvent", func(t *testing.T) {
		s := newStore(t)
		p := &models.Photo{EventID: uuid.New(), URL: "a.jpg"}
		if err := s.CreatePhoto(ctx, p); !faceerr.IsReference(err) {
			t.Fatalf("expected reference error, got %v", err)
		}
	})

	t.Run("WritePhotoAndScan", func(t *testing.T) {
		s := newStore(t)
		ev, _ := s.CreateEvent(ctx, "E", nil)
		embs := [][]float32{vec(4, 0.1, 0.2, 0.3, 0.4), vec(4, -1.5, 0, 2.25, 1e-7)}
		p := &models.Photo{EventID: ev.ID, URL: "p1.jpg"}
		if err := s.WritePhoto(ctx, p, embs); err != nil {
			t.Fatalf("WritePhoto: %v", err)
		}
		if p.ID == uuid.Nil {
			t.Fatal("expected photo id to be assigned")
		}

		rows, err := s.Scan(ctx, ev.ID)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(rows))
		}
		for _, r := range rows {
			if r.PhotoID != p.ID || r.PhotoRef != "p1.jpg" {
				t.Errorf("unexpected row %+v", r)
			}
			if !equalVec(r.Embedding, embs[0]) && !equalVec(r.Embedding, embs[1]) {
				t.Errorf("embedding %v not among stored vectors", r.Embedding)
			}
		}
	})

	t.Run("WritePhotoUnknownEventLeavesNothing", func(t *testing.T) {
		s := newStore(t)
		p := &models.Photo{EventID: uuid.New(), URL: "orphan.jpg"}
		if err := s.WritePhoto(ctx, p, [][]float32{vec(4, 1)}); !faceerr.IsReference(err) {
			t.Fatalf("expected reference error, got %v", err)
		}
		if p.ID != uuid.Nil {
			if _, err := s.GetPhoto(ctx, p.ID); !faceerr.IsReference(err) {
				t.Errorf("photo should not exist after failed write, got %v", err)
			}
		}
	})

	t.Run("WritePhotoWithoutFaces", func(t *testing.T) {
		s := newStore(t)
		ev, _ := s.CreateEvent(ctx, "E", nil)
		p := &models.Photo{EventID: ev.ID, URL: "crowd.jpg"}
		if err := s.WritePhoto(ctx, p, nil); err != nil {
			t.Fatalf("WritePhoto: %v", err)
		}
		photos, _ := s.ListPhotos(ctx, ev.ID)
		if len(photos) != 1 {
			t.Errorf("expected 1 photo, got %d", len(photos))
		}
		if n, _ := s.CountVectors(ctx, ev.ID); n != 0 {
			t.Errorf("expected 0 vectors, got %d", n)
		}
	})

	t.Run("AppendRejectsForeignPhoto", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.CreateEvent(ctx, "A", nil)
		b, _ := s.CreateEvent(ctx, "B", nil)
		p := &models.Photo{EventID: a.ID, URL: "a.jpg"}
		if err := s.CreatePhoto(ctx, p); err != nil {
			t.Fatalf("CreatePhoto: %v", err)
		}

		if err := s.Append(ctx, b.ID, p.ID, [][]float32{vec(4, 1)}); !faceerr.IsReference(err) {
			t.Errorf("cross-event append: expected reference error, got %v", err)
		}
		if err := s.Append(ctx, a.ID, uuid.New(), [][]float32{vec(4, 1)}); !faceerr.IsReference(err) {
			t.Errorf("unknown photo append: expected reference error, got %v", err)
		}
		if err := s.Append(ctx, a.ID, p.ID, nil); err != nil {
			t.Errorf("empty append: %v", err)
		}
		if err := s.Append(ctx, a.ID, p.ID, [][]float32{vec(4, 1), vec(4, 2)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if n, _ := s.CountVectors(ctx, a.ID); n != 2 {
			t.Errorf("expected 2 vectors in A, got %d", n)
		}
		if n, _ := s.CountVectors(ctx, b.ID); n != 0 {
			t.Errorf("expected 0 vectors in B, got %d", n)
		}
	})

	t.Run("ScanIsEventScoped", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.CreateEvent(ctx, "A", nil)
		b, _ := s.CreateEvent(ctx, "B", nil)
		s.WritePhoto(ctx, &models.Photo{EventID: a.ID, URL: "a.jpg"}, [][]float32{vec(4, 1)})
		s.WritePhoto(ctx, &models.Photo{EventID: b.ID, URL: "b.jpg"}, [][]float32{vec(4, 1)})

		rows, err := s.Scan(ctx, a.ID)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(rows) != 1 || rows[0].PhotoRef != "a.jpg" {
			t.Errorf("expected only a.jpg, got %+v", rows)
		}
		rows, err = s.Scan(ctx, uuid.New())
		if err != nil || len(rows) != 0 {
			t.Errorf("unknown event scan: rows=%d err=%v", len(rows), err)
		}
	})

	t.Run("DeletePhotoRemovesVectors", func(t *testing.T) {
		s := newStore(t)
		ev, _ := s.CreateEvent(ctx, "E", nil)
		keep := &models.Photo{EventID: ev.ID, URL: "keep.jpg"}
		drop := &models.Photo{EventID: ev.ID, URL: "drop.jpg"}
		s.WritePhoto(ctx, keep, [][]float32{vec(4, 1)})
		s.WritePhoto(ctx, drop, [][]float32{vec(4, 2), vec(4, 3)})

		if err := s.DeletePhoto(ctx, drop.ID); err != nil {
			t.Fatalf("DeletePhoto: %v", err)
		}
		rows, _ := s.Scan(ctx, ev.ID)
		if len(rows) != 1 || rows[0].PhotoID != keep.ID {
			t.Errorf("expected only keep.jpg vectors, got %+v", rows)
		}
	})

	t.Run("DeleteEventCascades", func(t *testing.T) {
		s := newStore(t)
		ev, _ := s.CreateEvent(ctx, "E", nil)
		other, _ := s.CreateEvent(ctx, "Other", nil)
		p := &models.Photo{EventID: ev.ID, URL: "x.jpg"}
		s.WritePhoto(ctx, p, [][]float32{vec(4, 1), vec(4, 2)})
		s.WritePhoto(ctx, &models.Photo{EventID: other.ID, URL: "y.jpg"}, [][]float32{vec(4, 1)})

		if err := s.DeleteEvent(ctx, ev.ID); err != nil {
			t.Fatalf("DeleteEvent: %v", err)
		}
		if _, err := s.GetPhoto(ctx, p.ID); !faceerr.IsReference(err) {
			t.Errorf("photo should be gone, got %v", err)
		}
		if n, _ := s.CountVectors(ctx, ev.ID); n != 0 {
			t.Errorf("expected 0 vectors after cascade, got %d", n)
		}
		if n, _ := s.CountVectors(ctx, other.ID); n != 1 {
			t.Errorf("other event should keep its vector, got %d", n)
		}
	})
}

func equalVec(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
