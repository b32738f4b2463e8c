package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"session-control-plane/internal/credential/domain"
	"session-control-plane/internal/db"
)

// PostgresRepository stores credentials in the credentials table.
type PostgresRepository struct {
	db db.Execer
}

// NewPostgresRepository returns a credential repository that uses the given db for persistence.
func NewPostgresRepository(conn db.Execer) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

const credentialColumns = `id, signing_secret, username, kind, issued_at, expires_at, device_tag, parent_id`

// Create persists the credential. The credential must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Credential) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.SigningSecret, c.Username, string(c.Kind), c.IssuedAt, c.ExpiresAt, c.DeviceTag,
		sql.NullString{String: c.ParentID, Valid: c.ParentID != ""},
	)
	return err
}

// GetByID returns the credential for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	c, err := scanCredential(r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ListBySubjectAndKind returns the subject's credentials of kind, oldest first.
func (r *PostgresRepository) ListBySubjectAndKind(ctx context.Context, username string, kind domain.Kind) ([]*domain.Credential, error) {
	return r.list(ctx, `SELECT `+credentialColumns+` FROM credentials
		WHERE lower(username) = lower($1) AND kind = $2 ORDER BY issued_at`, username, string(kind))
}

// ListChildren returns the ACCESS credentials spawned by parentID, oldest first.
func (r *PostgresRepository) ListChildren(ctx context.Context, parentID string) ([]*domain.Credential, error) {
	return r.list(ctx, `SELECT `+credentialColumns+` FROM credentials
		WHERE parent_id = $1 ORDER BY issued_at`, parentID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Credential, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes the credential; children go with it through the parent_id foreign key.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	return err
}

// DeleteChildren removes every ACCESS credential spawned by parentID.
func (r *PostgresRepository) DeleteChildren(ctx context.Context, parentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE parent_id = $1`, parentID)
	return err
}

// DeleteBySubject removes every credential of username, matched case-insensitively.
func (r *PostgresRepository) DeleteBySubject(ctx context.Context, username string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE lower(username) = lower($1)`, username)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredBefore removes credentials whose expiry is earlier than before.
func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (*domain.Credential, error) {
	var c domain.Credential
	var kind string
	var parent sql.NullString
	if err := s.Scan(&c.ID, &c.SigningSecret, &c.Username, &kind, &c.IssuedAt, &c.ExpiresAt, &c.DeviceTag, &parent); err != nil {
		return nil, err
	}
	c.Kind = domain.Kind(kind)
	if parent.Valid {
		c.ParentID = parent.String
	}
	return &c, nil
}
