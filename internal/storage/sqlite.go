package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/your-org/eventface/internal/embedding"
	"github.com/your-org/eventface/internal/faceerr"
	"github.com/your-org/eventface/internal/models"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStore is the single-file backend. Embeddings are stored as JSON
// text and timestamps as unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; readers share the same connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func classifySQLite(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		code := sqErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqErr.Error(), "FOREIGN KEY")) {
			return faceerr.Reference(op, "foreign key constraint failed")
		}
	}
	return faceerr.Storage(op, err)
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// --- Events ---

func (s *SQLiteStore) CreateEvent(ctx context.Context, name string, banner *string) (*models.Event, error) {
	if name == "" {
		return nil, faceerr.Validation("create event", "name is required")
	}
	ev := &models.Event{ID: uuid.New(), Name: name, Banner: banner, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, name, banner, created_at) VALUES (?, ?, ?, ?)`,
		ev.ID.String(), ev.Name, ev.Banner, ev.CreatedAt.UnixNano())
	if err != nil {
		return nil, classifySQLite("create event", err)
	}
	return ev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.Event, error) {
	var ev models.Event
	var created int64
	if err := row.Scan(&ev.ID, &ev.Name, &ev.Banner, &created); err != nil {
		return ev, err
	}
	ev.CreatedAt = fromNanos(created)
	return ev, nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT id, name, banner, created_at FROM events WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faceerr.Reference("get event", "event %s not found", id)
		}
		return nil, classifySQLite("get event", err)
	}
	return &ev, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, banner, created_at FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, classifySQLite("list events", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, classifySQLite("scan event", err)
		}
		events = append(events, ev)
	}
	return events, classifySQLite("list events", rows.Err())
}

func (s *SQLiteStore) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id.String())
	if err != nil {
		return classifySQLite("delete event", err)
	}
	return requireRow("delete event", res, "event", id)
}

// requireRow turns a statement that touched no row into a reference error.
func requireRow(op string, res sql.Result, kind string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classifySQLite(op, err)
	}
	if n == 0 {
		return faceerr.Reference(op, "%s %s not found", kind, id)
	}
	return nil
}

// --- Photos ---

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSQLitePhoto(ctx context.Context, db sqlExecer, p *models.Photo) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO photos (id, event_id, url, created_at) VALUES (?, ?, ?, ?)`,
		p.ID.String(), p.EventID.String(), p.URL, p.CreatedAt.UnixNano())
	return err
}

func (s *SQLiteStore) CreatePhoto(ctx context.Context, p *models.Photo) error {
	return classifySQLite("create photo", insertSQLitePhoto(ctx, s.db, p))
}

func scanPhoto(row rowScanner) (models.Photo, error) {
	var p models.Photo
	var created int64
	if err := row.Scan(&p.ID, &p.EventID, &p.URL, &created); err != nil {
		return p, err
	}
	p.CreatedAt = fromNanos(created)
	return p, nil
}

func (s *SQLiteStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	p, err := scanPhoto(s.db.QueryRowContext(ctx,
		`SELECT id, event_id, url, created_at FROM photos WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faceerr.Reference("get photo", "photo %s not found", id)
		}
		return nil, classifySQLite("get photo", err)
	}
	return &p, nil
}

func (s *SQLiteStore) ListPhotos(ctx context.Context, eventID uuid.UUID) ([]models.Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, url, created_at FROM photos WHERE event_id = ? ORDER BY created_at DESC`,
		eventID.String())
	if err != nil {
		return nil, classifySQLite("list photos", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, classifySQLite("scan photo", err)
		}
		photos = append(photos, p)
	}
	return photos, classifySQLite("list photos", rows.Err())
}

func (s *SQLiteStore) DeletePhoto(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id.String())
	if err != nil {
		return classifySQLite("delete photo", err)
	}
	return requireRow("delete photo", res, "photo", id)
}

func (s *SQLiteStore) WritePhoto(ctx context.Context, p *models.Photo, embeddings [][]float32) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertSQLitePhoto(ctx, tx, p); err != nil {
			return err
		}
		return insertSQLiteVectors(ctx, tx, p.EventID, p.ID, embeddings)
	})
	return classifySQLite("write photo", err)
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- Face vectors ---

func (s *SQLiteStore) Append(ctx context.Context, eventID, photoID uuid.UUID, embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertSQLiteVectors(ctx, tx, eventID, photoID, embeddings)
	})
	return classifySQLite("append", err)
}

func insertSQLiteVectors(ctx context.Context, tx *sql.Tx, eventID, photoID uuid.UUID, embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO face_vectors (id, photo_id, event_id, embedding, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare vector insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, emb := range embeddings {
		data, err := embedding.Encode(emb)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), photoID.String(), eventID.String(), string(data), now); err != nil {
			return fmt.Errorf("insert face vector: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Scan(ctx context.Context, eventID uuid.UUID) ([]models.ScanRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fv.photo_id, p.url, fv.embedding
		FROM face_vectors fv
		JOIN photos p ON p.id = fv.photo_id
		WHERE fv.event_id = ?`, eventID.String())
	if err != nil {
		return nil, classifySQLite("scan", err)
	}
	defer rows.Close()

	var out []models.ScanRow
	for rows.Next() {
		var r models.ScanRow
		var data string
		if err := rows.Scan(&r.PhotoID, &r.PhotoRef, &data); err != nil {
			return nil, classifySQLite("scan face vector", err)
		}
		if r.Embedding, err = embedding.Decode([]byte(data)); err != nil {
			return nil, faceerr.Storage("scan", err)
		}
		out = append(out, r)
	}
	return out, classifySQLite("scan", rows.Err())
}

func (s *SQLiteStore) CountVectors(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM face_vectors WHERE event_id = ?`, eventID.String(),
	).Scan(&count)
	return count, classifySQLite("count vectors", err)
}
