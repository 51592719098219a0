package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/eventface/internal/config"
	"github.com/your-org/eventface/internal/faceerr"
	"github.com/your-org/eventface/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLSTATE foreign_key_violation.
const pgForeignKeyViolation = "23503"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(cfg.DSN(), cfg.MaxConns)
}

func NewPostgresStoreFromDSN(dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies pending files from migrations/ in lexical order.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate applied migrations: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !applied[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrationsFS.ReadFile("migrations/" + file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, file)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// classify maps driver errors onto the faceerr kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return faceerr.Reference(op, "%s", pgErr.Detail)
	}
	return faceerr.Storage(op, err)
}

// --- Events ---

func (s *PostgresStore) CreateEvent(ctx context.Context, name string, banner *string) (*models.Event, error) {
	if name == "" {
		return nil, faceerr.Validation("create event", "name is required")
	}
	ev := &models.Event{
		ID:     uuid.New(),
		Name:   name,
		Banner: banner,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (id, name, banner) VALUES ($1, $2, $3) RETURNING created_at`,
		ev.ID, ev.Name, ev.Banner,
	).Scan(&ev.CreatedAt)
	if err != nil {
		return nil, classify("create event", err)
	}
	return ev, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev := &models.Event{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, banner, created_at FROM events WHERE id = $1`, id,
	).Scan(&ev.ID, &ev.Name, &ev.Banner, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faceerr.Reference("get event", "event %s not found", id)
		}
		return nil, classify("get event", err)
	}
	return ev, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, banner, created_at FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, classify("list events", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Banner, &ev.CreatedAt); err != nil {
			return nil, classify("scan event", err)
		}
		events = append(events, ev)
	}
	return events, classify("list events", rows.Err())
}

// DeleteEvent relies on ON DELETE CASCADE to remove photos and vectors.
func (s *PostgresStore) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return classify("delete event", err)
	}
	if tag.RowsAffected() == 0 {
		return faceerr.Reference("delete event", "event %s not found", id)
	}
	return nil
}

// --- Photos ---

func (s *PostgresStore) CreatePhoto(ctx context.Context, p *models.Photo) error {
	return classify("create photo", insertPhoto(ctx, s.pool, p))
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertPhoto(ctx context.Context, db execer, p *models.Photo) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx,
		`INSERT INTO photos (id, event_id, url, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.EventID, p.URL, p.CreatedAt)
	return err
}

func (s *PostgresStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	p := &models.Photo{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_id, url, created_at FROM photos WHERE id = $1`, id,
	).Scan(&p.ID, &p.EventID, &p.URL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faceerr.Reference("get photo", "photo %s not found", id)
		}
		return nil, classify("get photo", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPhotos(ctx context.Context, eventID uuid.UUID) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, url, created_at FROM photos WHERE event_id = $1 ORDER BY created_at DESC`,
		eventID)
	if err != nil {
		return nil, classify("list photos", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.EventID, &p.URL, &p.CreatedAt); err != nil {
			return nil, classify("scan photo", err)
		}
		photos = append(photos, p)
	}
	return photos, classify("list photos", rows.Err())
}

func (s *PostgresStore) DeletePhoto(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return classify("delete photo", err)
	}
	if tag.RowsAffected() == 0 {
		return faceerr.Reference("delete photo", "photo %s not found", id)
	}
	return nil
}

// WritePhoto inserts the photo row and its vectors in one transaction.
func (s *PostgresStore) WritePhoto(ctx context.Context, p *models.Photo, embeddings [][]float32) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertPhoto(ctx, tx, p); err != nil {
			return err
		}
		return appendVectors(ctx, tx, p.EventID, p.ID, embeddings)
	})
	return classify("write photo", err)
}

// --- Face vectors ---

func (s *PostgresStore) Append(ctx context.Context, eventID, photoID uuid.UUID, embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return appendVectors(ctx, tx, eventID, photoID, embeddings)
	})
	return classify("append", err)
}

func appendVectors(ctx context.Context, tx pgx.Tx, eventID, photoID uuid.UUID, embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, emb := range embeddings {
		batch.Queue(
			`INSERT INTO face_vectors (id, photo_id, event_id, embedding) VALUES ($1, $2, $3, $4)`,
			uuid.New(), photoID, eventID, pgvector.NewVector(emb))
	}
	br := tx.SendBatch(ctx, batch)
	for range embeddings {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert face vector: %w", err)
		}
	}
	return br.Close()
}

// Scan returns every vector of the event joined with its photo URL. No
// index narrows the read; search applies the threshold in process.
func (s *PostgresStore) Scan(ctx context.Context, eventID uuid.UUID) ([]models.ScanRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fv.photo_id, p.url, fv.embedding
		FROM face_vectors fv
		JOIN photos p ON p.id = fv.photo_id
		WHERE fv.event_id = $1`, eventID)
	if err != nil {
		return nil, classify("scan", err)
	}
	defer rows.Close()

	var out []models.ScanRow
	for rows.Next() {
		var r models.ScanRow
		var vec pgvector.Vector
		if err := rows.Scan(&r.PhotoID, &r.PhotoRef, &vec); err != nil {
			return nil, classify("scan face vector", err)
		}
		r.Embedding = vec.Slice()
		out = append(out, r)
	}
	return out, classify("scan", rows.Err())
}

func (s *PostgresStore) CountVectors(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_vectors WHERE event_id = $1`, eventID,
	).Scan(&count)
	return count, classify("count vectors", err)
}
