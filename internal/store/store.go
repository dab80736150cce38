package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/mimic/internal/landmark"
	"github.com/andresmejia3/mimic/internal/triangulate"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a photo or render session does not exist.
var ErrNotFound = errors.New("not found")

// ErrAmbiguous is returned when a short photo ID matches more than one photo.
var ErrAmbiguous = errors.New("ambiguous photo id")

// Store manages the PostgreSQL connection holding analyzed photos and render history.
type Store struct {
	conn *pgx.Conn
}

// Photo is a cached photo analysis: its landmarks and their triangulation.
type Photo struct {
	ID         string
	Path       string
	Name       string
	Width      int
	Height     int
	Landmarks  []landmark.Landmark
	Triangles  []triangulate.Triangle
	AnalyzedAt time.Time
}

// PhotoSummary is a Photo without its geometry, for listings.
type PhotoSummary struct {
	ID         string
	Path       string
	Name       string
	Width      int
	Height     int
	Points     int
	Triangles  int
	AnalyzedAt time.Time
}

// RenderSession records one reenact or live run.
type RenderSession struct {
	ID         uuid.UUID
	PhotoID    string
	Input      string
	Output     string
	Frames     int
	Rendered   int
	NoFace     int
	Degenerate int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS photos (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			width INT NOT NULL,
			height INT NOT NULL,
			landmarks JSONB NOT NULL,
			triangles INT[] NOT NULL,
			analyzed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS render_sessions (
			id UUID PRIMARY KEY,
			photo_id TEXT REFERENCES photos(id) ON DELETE CASCADE,
			input_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			frames INT NOT NULL DEFAULT 0,
			rendered INT NOT NULL DEFAULT 0,
			no_face INT NOT NULL DEFAULT 0,
			degenerate INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS render_sessions_photo_id_idx ON render_sessions (photo_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// flatten packs triangles as consecutive index triples for an INT[] column.
func flatten(tris []triangulate.Triangle) []int32 {
	out := make([]int32, 0, len(tris)*3)
	for _, t := range tris {
		out = append(out, int32(t.I0), int32(t.I1), int32(t.I2))
	}
	return out
}

func unflatten(flat []int32) ([]triangulate.Triangle, error) {
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("triangle array length %d is not a multiple of 3", len(flat))
	}
	out := make([]triangulate.Triangle, 0, len(flat)/3)
	for i := 0; i < len(flat); i += 3 {
		out = append(out, triangulate.Triangle{I0: int(flat[i]), I1: int(flat[i+1]), I2: int(flat[i+2])})
	}
	return out, nil
}

// SavePhoto stores an analysis. Re-analyzing the same photo replaces its geometry
// but keeps the name it was labeled with.
func (s *Store) SavePhoto(ctx context.Context, p Photo) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO photos (id, path, name, width, height, landmarks, triangles, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			path = EXCLUDED.path,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			landmarks = EXCLUDED.landmarks,
			triangles = EXCLUDED.triangles,
			analyzed_at = NOW()
	`, p.ID, p.Path, p.Name, p.Width, p.Height, p.Landmarks, flatten(p.Triangles))
	return err
}

// GetPhoto loads a photo analysis by full ID or by a unique ID prefix.
func (s *Store) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, path, name, width, height, landmarks, triangles, analyzed_at
		FROM photos WHERE id = $1 OR id LIKE $1 || '%'
		ORDER BY (id = $1) DESC
		LIMIT 2
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*Photo
	for rows.Next() {
		var p Photo
		var flat []int32
		if err := rows.Scan(&p.ID, &p.Path, &p.Name, &p.Width, &p.Height, &p.Landmarks, &flat, &p.AnalyzedAt); err != nil {
			return nil, err
		}
		if p.Triangles, err = unflatten(flat); err != nil {
			return nil, fmt.Errorf("photo %s: %w", p.ID, err)
		}
		found = append(found, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("photo %s: %w", id, ErrNotFound)
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
}

// ListPhotos returns every cached analysis, newest first.
func (s *Store) ListPhotos(ctx context.Context) ([]PhotoSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, path, name, width, height, jsonb_array_length(landmarks), cardinality(triangles) / 3, analyzed_at
		FROM photos ORDER BY analyzed_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhotoSummary
	for rows.Next() {
		var p PhotoSummary
		if err := rows.Scan(&p.ID, &p.Path, &p.Name, &p.Width, &p.Height, &p.Points, &p.Triangles, &p.AnalyzedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RenamePhoto updates the display name of a cached photo.
func (s *Store) RenamePhoto(ctx context.Context, id, name string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE photos SET name = $1 WHERE id = $2", name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	return nil
}

// StartRender opens a render session and returns its ID. An empty photoID
// records a live session that started without a photo.
func (s *Store) StartRender(ctx context.Context, photoID, input, output string) (uuid.UUID, error) {
	id := uuid.New()
	var photo *string
	if photoID != "" {
		photo = &photoID
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO render_sessions (id, photo_id, input_path, output_path, started_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, id, photo, input, output)
	return id, err
}

// FinishRender stores the final counters of a session.
func (s *Store) FinishRender(ctx context.Context, id uuid.UUID, frames, rendered, noFace, degenerate int) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE render_sessions
		SET frames = $2, rendered = $3, no_face = $4, degenerate = $5, finished_at = NOW()
		WHERE id = $1
	`, id, frames, rendered, noFace, degenerate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("render session %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRenders returns the most recent sessions, newest first.
func (s *Store) ListRenders(ctx context.Context, limit int) ([]RenderSession, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, COALESCE(photo_id, ''), input_path, output_path, frames, rendered, no_face, degenerate, started_at, finished_at
		FROM render_sessions ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RenderSession
	for rows.Next() {
		var r RenderSession
		if err := rows.Scan(&r.ID, &r.PhotoID, &r.Input, &r.Output, &r.Frames, &r.Rendered, &r.NoFace, &r.Degenerate, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeletePhoto removes a cached analysis and its render history in one transaction.
func (s *Store) DeletePhoto(ctx context.Context, id string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM render_sessions WHERE photo_id = $1", id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, "DELETE FROM photos WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	return tx.Commit(ctx)
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS render_sessions CASCADE;
		DROP TABLE IF EXISTS photos CASCADE;
	`)
	return err
}
