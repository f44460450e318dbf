package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BegoniaHe/kizuna/internal/domain/chat"
	"github.com/BegoniaHe/kizuna/pkg/uuid"
)

// timeLayout is how timestamps are stored; lexicographic order matches
// chronological order.
const timeLayout = time.RFC3339Nano

// SessionRepository is the sqlite-backed chat.SessionRepository.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository wraps db. The schema must already be migrated.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Save(ctx context.Context, s chat.Session) error {
	var preset any
	if s.PresetID != nil {
		preset = s.PresetID.String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session (id, title, preset_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			preset_id = excluded.preset_id,
			updated_at = excluded.updated_at
	`, s.ID.String(), s.Title, preset, s.CreatedAt.UTC().Format(timeLayout), s.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: save session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (chat.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, preset_id, created_at, updated_at
		FROM session WHERE id = ?
	`, id.String())
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, chat.ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("sqlite: get session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) List(ctx context.Context, p chat.Pagination) ([]chat.Session, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = -1 // sqlite: no bound
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, preset_id, created_at, updated_at
		FROM session
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`, limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []chat.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM session WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.ErrSessionNotFound
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (chat.Session, error) {
	var (
		s         chat.Session
		id        string
		preset    sql.NullString
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&id, &s.Title, &preset, &createdAt, &updatedAt); err != nil {
		return chat.Session{}, err
	}

	var err error
	if s.ID, err = uuid.Parse(id); err != nil {
		return chat.Session{}, err
	}
	if preset.Valid {
		p, err := uuid.Parse(preset.String)
		if err != nil {
			return chat.Session{}, err
		}
		s.PresetID = &p
	}
	if s.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return chat.Session{}, err
	}
	if s.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return chat.Session{}, err
	}
	return s, nil
}
