package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/AdaptLabsAI/irisync/internal/platform"
)

// InboxStore persists normalized inbound messages. Inserts are keyed by
// the message's dedup key, so replaying a sync window is harmless.
type InboxStore struct {
	db *sql.DB
}

func NewInboxStore(db *sql.DB) *InboxStore {
	return &InboxStore{db: db}
}

// Insert writes one message. Returns false without error when the dedup
// key already exists.
func (s *InboxStore) Insert(ctx context.Context, m *platform.Message) (bool, error) {
	author, err := json.Marshal(m.Author)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO inbox_messages (
			id, dedup_key, native_id, type, status, priority, platform,
			account_id, user_id, org_id, content, sentiment, author, parent_id,
			created_at, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (dedup_key) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		m.ID, m.DedupKey(), m.NativeID, m.Type, m.Status, m.Priority, m.Platform,
		m.AccountID, m.UserID, m.OrgID, m.Content, m.Sentiment, author, m.ParentID,
		m.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByAccount returns the newest messages for one account.
func (s *InboxStore) ListByAccount(ctx context.Context, p platform.Type, accountID string, limit int) ([]platform.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, native_id, type, status, priority, platform, account_id,
		       user_id, org_id, content, sentiment, author, parent_id, created_at
		FROM inbox_messages
		WHERE platform = $1 AND account_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, p, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []platform.Message
	for rows.Next() {
		var m platform.Message
		var author []byte
		if err := rows.Scan(
			&m.ID, &m.NativeID, &m.Type, &m.Status, &m.Priority, &m.Platform, &m.AccountID,
			&m.UserID, &m.OrgID, &m.Content, &m.Sentiment, &author, &m.ParentID, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(author) > 0 {
			if err := json.Unmarshal(author, &m.Author); err != nil {
				return nil, err
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkStatus transitions one message's workflow status (unread, read,
// replied, archived).
func (s *InboxStore) MarkStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE inbox_messages SET status = $1 WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountSince reports per-platform ingest volume after a cutoff, for the
// status endpoint.
func (s *InboxStore) CountSince(ctx context.Context, since time.Time) (map[platform.Type]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, COUNT(*) FROM inbox_messages WHERE ingested_at >= $1 GROUP BY platform`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[platform.Type]int)
	for rows.Next() {
		var p platform.Type
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		counts[p] = n
	}
	return counts, rows.Err()
}

// Get returns one message by row id.
func (s *InboxStore) Get(ctx context.Context, id string) (*platform.Message, error) {
	query := `
		SELECT id, native_id, type, status, priority, platform, account_id,
		       user_id, org_id, content, sentiment, author, parent_id, created_at
		FROM inbox_messages
		WHERE id = $1
	`
	var m platform.Message
	var author []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.NativeID, &m.Type, &m.Status, &m.Priority, &m.Platform, &m.AccountID,
		&m.UserID, &m.OrgID, &m.Content, &m.Sentiment, &author, &m.ParentID, &m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(author) > 0 {
		if err := json.Unmarshal(author, &m.Author); err != nil {
			return nil, err
		}
	}
	return &m, nil
}
