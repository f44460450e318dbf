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

// MessageRepository is the sqlite-backed chat.MessageRepository. Saving a
// message also touches the owning session's updated_at, in one transaction.
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository wraps db. The schema must already be migrated.
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Save(ctx context.Context, m chat.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: save message: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO message (id, session_id, role, content, tokens, emotion, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			tokens = excluded.tokens,
			emotion = excluded.emotion
	`, m.ID.String(), m.SessionID.String(), m.Role, m.Content, m.Tokens, string(m.Emotion),
		m.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: save message: %w", err)
	}

	_, err = tx.ExecContext(ctx, "UPDATE session SET updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(timeLayout), m.SessionID.String())
	if err != nil {
		return fmt.Errorf("sqlite: touch session: %w", err)
	}
	return tx.Commit()
}

func (r *MessageRepository) Get(ctx context.Context, id uuid.UUID) (chat.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, role, content, tokens, emotion, created_at
		FROM message WHERE id = ?
	`, id.String())
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("sqlite: get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) FindBySession(ctx context.Context, sessionID uuid.UUID, p chat.Pagination) ([]chat.Message, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, tokens, emotion, created_at
		FROM message
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ? OFFSET ?
	`, sessionID.String(), limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM message WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM message WHERE session_id = ?", sessionID.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete session messages: %w", err)
	}
	return nil
}

func scanMessage(row rowScanner) (chat.Message, error) {
	var (
		m         chat.Message
		id        string
		sessionID string
		emotion   string
		createdAt string
	)
	if err := row.Scan(&id, &sessionID, &m.Role, &m.Content, &m.Tokens, &emotion, &createdAt); err != nil {
		return chat.Message{}, err
	}

	var err error
	if m.ID, err = uuid.Parse(id); err != nil {
		return chat.Message{}, err
	}
	if m.SessionID, err = uuid.Parse(sessionID); err != nil {
		return chat.Message{}, err
	}
	m.Emotion = chat.Emotion(emotion)
	if m.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return chat.Message{}, err
	}
	return m, nil
}
