// Package sqlite implements the CredentialStore port on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/qrsignin/internal/adapter/driven/secretbox"
	"github.com/ericfisherdev/qrsignin/internal/domain/model"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

// sessionKey is the single row holding the session credential.
const sessionKey = "session"

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// The credential is sealed with AES-256-GCM before write and opened after read.
type CredentialRepo struct {
	db  *DB
	box *secretbox.Box
}

// NewCredentialRepo creates a new CredentialRepo. box must not be nil; a box
// built without a key makes Get and Set return driven.ErrEncryptionKeyNotSet.
func NewCredentialRepo(db *DB, box *secretbox.Box) *CredentialRepo {
	return &CredentialRepo{db: db, box: box}
}

// Get retrieves the stored credential. Returns ("", nil) if none is stored.
func (r *CredentialRepo) Get(ctx context.Context) (model.Credential, error) {
	const query = `SELECT value FROM credentials WHERE name = ?`
	var sealed string
	err := r.db.Reader.QueryRowContext(ctx, query, sessionKey).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get credential: %w", err)
	}

	plaintext, err := r.box.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return model.Credential(plaintext), nil
}

// Set stores or replaces the credential.
func (r *CredentialRepo) Set(ctx context.Context, cred model.Credential) error {
	if cred.IsZero() {
		return model.ErrEmptyCredential
	}

	sealed, err := r.box.Seal(string(cred))
	if err != nil {
		return err
	}

	const query = `INSERT OR REPLACE INTO credentials (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	if _, err := r.db.Writer.ExecContext(ctx, query, sessionKey, sealed); err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	return nil
}

// Clear removes the stored credential.
func (r *CredentialRepo) Clear(ctx context.Context) error {
	const query = `DELETE FROM credentials WHERE name = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, sessionKey); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
