package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/config"
	"github.com/your-org/eventface/internal/faceerr"
	"github.com/your-org/eventface/internal/models"
)

func newSQLiteForTest(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ef.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, newSQLiteForTest)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ef.db")

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ev, _ := s.CreateEvent(ctx, "Persisted", nil)
	s.WritePhoto(ctx, photoFor(ev.ID), [][]float32{vec(2, 0.25, -0.75)})
	s.Close()

	s, err = NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	rows, err := s.Scan(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rows) != 1 || rows[0].Embedding[0] != 0.25 || rows[0].Embedding[1] != -0.75 {
		t.Errorf("unexpected rows after reopen: %+v", rows)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverMemory})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}

	s, err = Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected *SQLiteStore, got %T", s)
	}

	if _, err := Open(ctx, config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func photoFor(eventID uuid.UUID) *models.Photo {
	return &models.Photo{EventID: eventID, URL: "photo-" + uuid.NewString() + ".jpg"}
}

type stubResult struct {
	rows int64
	err  error
}

func (r stubResult) LastInsertId() (int64, error) { return 0, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestRequireRow(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		res  stubResult
		kind error
	}{
		{"row deleted", stubResult{rows: 1}, nil},
		{"no row", stubResult{rows: 0}, faceerr.ErrReference},
		{"driver cannot count rows", stubResult{err: errors.New("disk I/O error")}, faceerr.ErrStorage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := requireRow("delete event", tc.res, "event", id)
			if tc.kind == nil {
				if err != nil {
					t.Errorf("requireRow() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.kind) {
				t.Errorf("requireRow() = %v, want %v", err, tc.kind)
			}
		})
	}
}
