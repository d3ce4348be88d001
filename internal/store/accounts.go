// Package store persists connected accounts and the unified inbox in
// Postgres. OAuth tokens are encrypted at the application level before
// they reach the database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	fieldcrypt "github.com/AdaptLabsAI/irisync/pkg/crypto"
)

var ErrNotFound = errors.New("record not found")

// Account is a connected external account with its persisted credentials.
type Account struct {
	ID          string
	UserID      string
	OrgID       string
	Platform    platform.Type
	AccountID   string // platform-native id
	Username    string
	DisplayName string
	AvatarURL   string
	Tier        string
	Active      bool
	Auth        platform.AuthState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AccountStore reads and writes connected accounts. enc may be nil, in
// which case tokens are stored in plaintext (local development only).
type AccountStore struct {
	db  *sql.DB
	enc *fieldcrypt.FieldEncryptor
}

func NewAccountStore(db *sql.DB, enc *fieldcrypt.FieldEncryptor) *AccountStore {
	return &AccountStore{db: db, enc: enc}
}

func (s *AccountStore) encryptField(plaintext string) (string, error) {
	if s.enc == nil || plaintext == "" {
		return plaintext, nil
	}
	return s.enc.Encrypt(plaintext)
}

func (s *AccountStore) decryptField(stored string) (string, error) {
	if s.enc == nil || stored == "" {
		return stored, nil
	}
	return s.enc.Decrypt(stored)
}

// Upsert inserts or updates an account keyed by (platform, account_id).
// Returns the row id.
func (s *AccountStore) Upsert(ctx context.Context, a *Account) (string, error) {
	accessToken, err := s.encryptField(a.Auth.AccessToken)
	if err != nil {
		return "", err
	}
	refreshToken, err := s.encryptField(a.Auth.RefreshToken)
	if err != nil {
		return "", err
	}
	extra, err := json.Marshal(a.Auth.Extra)
	if err != nil {
		return "", err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	query := `
		INSERT INTO accounts (
			id, user_id, org_id, platform, account_id, username, display_name,
			avatar_url, tier, active, access_token, refresh_token, expires_at,
			scope, extra, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		ON CONFLICT (platform, account_id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			tier = EXCLUDED.tier,
			active = EXCLUDED.active,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope,
			extra = EXCLUDED.extra,
			updated_at = NOW()
		RETURNING id
	`
	var id string
	err = s.db.QueryRowContext(ctx, query,
		a.ID, a.UserID, a.OrgID, a.Platform, a.AccountID, a.Username, a.DisplayName,
		a.AvatarURL, a.Tier, a.Active, accessToken, refreshToken, a.Auth.ExpiresAt,
		a.Auth.Scope, extra,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	a.ID = id
	return id, nil
}

// ListActive returns every active account, tokens decrypted.
func (s *AccountStore) ListActive(ctx context.Context) ([]Account, error) {
	query := `
		SELECT id, user_id, org_id, platform, account_id, username, display_name,
		       avatar_url, tier, active, access_token, refresh_token, expires_at,
		       scope, extra, created_at, updated_at
		FROM accounts
		WHERE active = true
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// Get returns one account by platform and native account id.
func (s *AccountStore) Get(ctx context.Context, p platform.Type, accountID string) (*Account, error) {
	query := `
		SELECT id, user_id, org_id, platform, account_id, username, display_name,
		       avatar_url, tier, active, access_token, refresh_token, expires_at,
		       scope, extra, created_at, updated_at
		FROM accounts
		WHERE platform = $1 AND account_id = $2
	`
	row := s.db.QueryRowContext(ctx, query, p, accountID)
	a, err := s.scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *AccountStore) scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var accessToken, refreshToken string
	var extra []byte
	err := row.Scan(
		&a.ID, &a.UserID, &a.OrgID, &a.Platform, &a.AccountID, &a.Username, &a.DisplayName,
		&a.AvatarURL, &a.Tier, &a.Active, &accessToken, &refreshToken, &a.Auth.ExpiresAt,
		&a.Auth.Scope, &extra, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.Auth.AccessToken, err = s.decryptField(accessToken); err != nil {
		return nil, err
	}
	if a.Auth.RefreshToken, err = s.decryptField(refreshToken); err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &a.Auth.Extra); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// UpdateAuth persists rotated credentials after a refresh.
func (s *AccountStore) UpdateAuth(ctx context.Context, p platform.Type, accountID string, auth platform.AuthState) error {
	accessToken, err := s.encryptField(auth.AccessToken)
	if err != nil {
		return err
	}
	refreshToken, err := s.encryptField(auth.RefreshToken)
	if err != nil {
		return err
	}
	extra, err := json.Marshal(auth.Extra)
	if err != nil {
		return err
	}

	query := `
		UPDATE accounts
		SET access_token = $1, refresh_token = $2, expires_at = $3, scope = $4,
		    extra = $5, updated_at = NOW()
		WHERE platform = $6 AND account_id = $7
	`
	result, err := s.db.ExecContext(ctx, query, accessToken, refreshToken, auth.ExpiresAt, auth.Scope, extra, p, accountID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate marks an account inactive; its messages stay in the inbox.
func (s *AccountStore) Deactivate(ctx context.Context, p platform.Type, accountID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET active = false, updated_at = NOW() WHERE platform = $1 AND account_id = $2`,
		p, accountID,
	)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
