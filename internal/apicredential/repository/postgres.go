package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"session-control-plane/internal/apicredential/domain"
	"session-control-plane/internal/db"
	identitydomain "session-control-plane/internal/identity/domain"
)

// PostgresRepository stores API credentials in api_credentials and api_credential_rights.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an API credential repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

const apiCredentialColumns = `id, owner, description, status, valid_until, created_at`

// Create inserts the credential and its rights in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.ApiCredential) error {
	return db.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO api_credentials (`+apiCredentialColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.Owner, c.Description, string(c.Status), domain.Day(c.ValidUntil), c.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateDescription
			}
			return err
		}
		for _, rt := range c.Rights {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO api_credential_rights (api_credential_id, authority) VALUES ($1, $2)`,
				c.ID, rt.Authority,
			); err != nil {
				return fmt.Errorf("grant %s: %w", rt.Authority, err)
			}
		}
		return nil
	})
}

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// GetByID returns the credential for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.ApiCredential, error) {
	return r.one(ctx, `SELECT `+apiCredentialColumns+` FROM api_credentials WHERE id = $1`, id)
}

// GetByOwnerAndDescription returns the owner's credential with exactly that description, or nil.
func (r *PostgresRepository) GetByOwnerAndDescription(ctx context.Context, owner, description string) (*domain.ApiCredential, error) {
	return r.one(ctx, `SELECT `+apiCredentialColumns+` FROM api_credentials
		WHERE lower(owner) = lower($1) AND description = $2`, owner, description)
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*domain.ApiCredential, error) {
	c, err := scanAPICredential(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.attachRights(ctx, []*domain.ApiCredential{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns credentials matching f, newest first.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*domain.ApiCredential, error) {
	var (
		where []string
		args  []any
	)
	if f.Owner != "" {
		args = append(args, f.Owner)
		where = append(where, fmt.Sprintf("lower(owner) = lower($%d)", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Description != "" {
		args = append(args, "%"+f.Description+"%")
		where = append(where, fmt.Sprintf("description ILIKE $%d", len(args)))
	}
	query := `SELECT ` + apiCredentialColumns + ` FROM api_credentials`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return r.list(ctx, query, args...)
}

// ListByOwner returns every credential of owner.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.ApiCredential, error) {
	return r.List(ctx, Filter{Owner: owner})
}

// ListActiveValidUntilBefore returns ACTIVE credentials whose valid_until is before day.
func (r *PostgresRepository) ListActiveValidUntilBefore(ctx context.Context, day time.Time) ([]*domain.ApiCredential, error) {
	return r.list(ctx, `SELECT `+apiCredentialColumns+` FROM api_credentials
		WHERE status = $1 AND valid_until < $2 ORDER BY valid_until, id`, string(domain.StatusActive), domain.Day(day))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.ApiCredential, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ApiCredential
	for rows.Next() {
		c, err := scanAPICredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachRights(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) attachRights(ctx context.Context, creds []*domain.ApiCredential) error {
	for _, c := range creds {
		rows, err := r.db.QueryContext(ctx, `SELECT r.authority, r.description
			FROM api_credential_rights acr JOIN rights r ON r.authority = acr.authority
			WHERE acr.api_credential_id = $1 ORDER BY r.authority`, c.ID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var rt identitydomain.Right
			if err := rows.Scan(&rt.Authority, &rt.Description); err != nil {
				rows.Close()
				return err
			}
			c.Rights = append(c.Rights, rt)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateStatus sets status and valid_until of the credential.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, validUntil time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_credentials SET status = $2, valid_until = $3 WHERE id = $1`,
		id, string(status), domain.Day(validUntil))
	return err
}

// Delete removes the credential; its rights go with it through the foreign key.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM api_credentials WHERE id = $1`, id)
	return err
}

// DeleteInactiveValidUntilBefore removes revoked and expired credentials whose valid_until is before day.
func (r *PostgresRepository) DeleteInactiveValidUntilBefore(ctx context.Context, day time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_credentials WHERE status <> $1 AND valid_until < $2`,
		string(domain.StatusActive), domain.Day(day))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAPICredential(s scanner) (*domain.ApiCredential, error) {
	var c domain.ApiCredential
	var status string
	if err := s.Scan(&c.ID, &c.Owner, &c.Description, &status, &c.ValidUntil, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Status = domain.Status(status)
	c.ValidUntil = domain.Day(c.ValidUntil)
	return &c, nil
}
