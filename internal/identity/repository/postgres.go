package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"session-control-plane/internal/db"
	"session-control-plane/internal/identity/domain"
)

// PostgresRepository implements every identity read interface over one database handle.
type PostgresRepository struct {
	db db.Execer
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(conn db.Execer) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

const userColumns = `id, email, first_name, last_name, enabled, account_non_locked, locale, source, nonce, created_at, updated_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return r.scanUser(ctx, row)
}

// GetByUsername returns the user whose email matches username case-insensitively, or nil if not found.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(username))
	return r.scanUser(ctx, row)
}

func (r *PostgresRepository) scanUser(ctx context.Context, row *sql.Row) (*domain.User, error) {
	var u domain.User
	var source string
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Enabled, &u.AccountNonLocked,
		&u.Locale, &source, &u.Nonce, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Source = domain.Source(source)
	roles, err := r.rolesForUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (r *PostgresRepository) rolesForUser(ctx context.Context, userID string) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ro.name, ro.description, ro.is_protected, ro.is_default
		FROM user_roles ur JOIN roles ro ON ro.name = ur.role_name
		WHERE ur.user_id = $1
		ORDER BY ro.name`, userID)
	if err != nil {
		return nil, err
	}
	roles, err := scanRoles(rows)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Role, len(roles))
	for i, ro := range roles {
		if err := r.attachRights(ctx, ro); err != nil {
			return nil, err
		}
		out[i] = *ro
	}
	return out, nil
}

// GetByName returns the role with the given name and its rights, or nil if not found.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	var ro domain.Role
	err := r.db.QueryRowContext(ctx,
		`SELECT name, description, is_protected, is_default FROM roles WHERE name = $1`, name,
	).Scan(&ro.Name, &ro.Description, &ro.Protected, &ro.DefaultRole)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.attachRights(ctx, &ro); err != nil {
		return nil, err
	}
	return &ro, nil
}

// ListAll returns every role with its rights, ordered by name.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, description, is_protected, is_default FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	roles, err := scanRoles(rows)
	if err != nil {
		return nil, err
	}
	for _, ro := range roles {
		if err := r.attachRights(ctx, ro); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

func scanRoles(rows *sql.Rows) ([]*domain.Role, error) {
	defer rows.Close()
	var out []*domain.Role
	for rows.Next() {
		var ro domain.Role
		if err := rows.Scan(&ro.Name, &ro.Description, &ro.Protected, &ro.DefaultRole); err != nil {
			return nil, err
		}
		out = append(out, &ro)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) attachRights(ctx context.Context, ro *domain.Role) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ri.authority, ri.description
		FROM role_rights rr JOIN rights ri ON ri.authority = rr.right_authority
		WHERE rr.role_name = $1
		ORDER BY ri.authority`, ro.Name)
	if err != nil {
		return err
	}
	rights, err := scanRights(rows)
	if err != nil {
		return err
	}
	ro.Rights = make([]domain.Right, len(rights))
	for i, rt := range rights {
		ro.Rights[i] = *rt
	}
	return nil
}

// GetByAuthority returns the right for authority, or nil if not found.
func (r *PostgresRepository) GetByAuthority(ctx context.Context, authority string) (*domain.Right, error) {
	var rt domain.Right
	err := r.db.QueryRowContext(ctx,
		`SELECT authority, description FROM rights WHERE authority = $1`, authority,
	).Scan(&rt.Authority, &rt.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rt, nil
}

// Rights exposes the right lookups under their own interface since ListAll collides with roles.
func (r *PostgresRepository) Rights() RightRepository {
	return rightView{r}
}

type rightView struct{ r *PostgresRepository }

func (v rightView) GetByAuthority(ctx context.Context, authority string) (*domain.Right, error) {
	return v.r.GetByAuthority(ctx, authority)
}

func (v rightView) ListAll(ctx context.Context) ([]*domain.Right, error) {
	rows, err := v.r.db.QueryContext(ctx, `SELECT authority, description FROM rights ORDER BY authority`)
	if err != nil {
		return nil, err
	}
	return scanRights(rows)
}

func scanRights(rows *sql.Rows) ([]*domain.Right, error) {
	defer rows.Close()
	var out []*domain.Right
	for rows.Next() {
		var rt domain.Right
		if err := rows.Scan(&rt.Authority, &rt.Description); err != nil {
			return nil, err
		}
		out = append(out, &rt)
	}
	return out, rows.Err()
}

// UsernamesByRole returns the usernames of every user currently holding role.
func (r *PostgresRepository) UsernamesByRole(ctx context.Context, role string) ([]string, error) {
	return r.usernames(ctx, `
		SELECT u.email FROM users u JOIN user_roles ur ON ur.user_id = u.id
		WHERE ur.role_name = $1
		ORDER BY u.email`, role)
}

// UsernamesByRight returns the usernames of every user holding authority through any of their roles.
func (r *PostgresRepository) UsernamesByRight(ctx context.Context, authority string) ([]string, error) {
	return r.usernames(ctx, `
		SELECT DISTINCT u.email FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN role_rights rr ON rr.role_name = ur.role_name
		WHERE rr.right_authority = $1
		ORDER BY u.email`, authority)
}

func (r *PostgresRepository) usernames(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
