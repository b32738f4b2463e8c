package repository

import (
	"context"

	"session-control-plane/internal/db"
	"session-control-plane/internal/identity/domain"
)

// UpsertRight creates the right or refreshes its description.
func UpsertRight(ctx context.Context, conn db.Execer, rt domain.Right) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO rights (authority, description) VALUES ($1, $2)
		ON CONFLICT (authority) DO UPDATE SET description = EXCLUDED.description`,
		rt.Authority, rt.Description)
	return err
}

// UpsertRole creates the role if missing and adds any of its rights not yet granted.
// Existing grants are never removed, so re-running a seed is safe.
func UpsertRole(ctx context.Context, conn db.Execer, ro domain.Role) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO roles (name, description, is_protected, is_default) VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING`,
		ro.Name, ro.Description, ro.Protected, ro.DefaultRole)
	if err != nil {
		return err
	}
	for _, rt := range ro.Rights {
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO role_rights (role_name, right_authority) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, ro.Name, rt.Authority); err != nil {
			return err
		}
	}
	return nil
}
