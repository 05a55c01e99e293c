package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arodchenko/inkwell/internal/common"
	"github.com/arodchenko/inkwell/internal/dbx"
)

// SQLiteStore keeps the credential slot in the credentials table of the
// local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE key = ?`, common.CredentialKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get credential: %w", err)
	}
	return value, nil
}

// Set replaces the slot atomically: the old value is removed and the new
// one inserted inside a single transaction, so a crash never leaves two
// rows or a half-written slot.
func (s *SQLiteStore) Set(ctx context.Context, token string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM credentials WHERE key = ?`, common.CredentialKey); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO credentials (key, value) VALUES (?, ?)`, common.CredentialKey, token)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set credential: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE key = ?`, common.CredentialKey)
	if err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
