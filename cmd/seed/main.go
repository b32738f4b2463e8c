// seed inserts the basic rights and the ADMIN and USER roles. Idempotent: existing rows are kept,
// right descriptions are refreshed, and missing role grants are added.
package main

import (
	"context"
	"database/sql"
	"log"
	"strings"

	"session-control-plane/internal/config"
	"session-control-plane/internal/db"
	"session-control-plane/internal/identity/domain"
	"session-control-plane/internal/identity/repository"
)

const (
	adminRoleName = "ADMIN"
	userRoleName  = "USER"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	rights := basicRights(cfg.AdminRightsList())
	roles := []domain.Role{
		{Name: adminRoleName, Description: "Application administrator", Rights: rights, Protected: true},
		{Name: userRoleName, Description: "Default role for new users", DefaultRole: true},
	}

	ctx := context.Background()
	err = db.InTx(ctx, conn, func(tx *sql.Tx) error {
		for _, rt := range rights {
			if err := repository.UpsertRight(ctx, tx, rt); err != nil {
				return err
			}
		}
		for _, ro := range roles {
			if err := repository.UpsertRole(ctx, tx, ro); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Printf("Seed completed: %d rights, roles %s and %s.", len(rights), adminRoleName, userRoleName)
}

// basicRights returns the built-in rights plus any extra configured admin authority.
func basicRights(adminAuthorities []string) []domain.Right {
	seen := make(map[string]bool)
	var out []domain.Right
	add := func(authority string) {
		if seen[authority] {
			return
		}
		seen[authority] = true
		out = append(out, domain.Right{Authority: authority, Description: describe(authority)})
	}
	for _, a := range config.DefaultAdminRights {
		add(a)
	}
	for _, a := range adminAuthorities {
		add(a)
	}
	return out
}

// describe turns USER_READ into "User read".
func describe(authority string) string {
	s := strings.ToLower(strings.ReplaceAll(authority, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
