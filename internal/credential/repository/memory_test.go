package repository

import (
	"context"
	"testing"
	"time"

	"session-control-plane/internal/credential/domain"
)

func TestMemoryRepository_DeleteCascadesToChildren(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()
	_ = r.Create(ctx, &domain.Credential{ID: "p", Username: "a@x", Kind: domain.KindRefresh, IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	_ = r.Create(ctx, &domain.Credential{ID: "c1", Username: "a@x", Kind: domain.KindAccess, ParentID: "p", IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	_ = r.Create(ctx, &domain.Credential{ID: "other", Username: "b@x", Kind: domain.KindRefresh, IssuedAt: now, ExpiresAt: now.Add(time.Hour)})

	if err := r.Delete(ctx, "p"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if c, _ := r.GetByID(ctx, "c1"); c != nil {
		t.Error("child should be removed with its parent")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	if err := r.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestMemoryRepository_DeleteBySubjectIgnoresCase(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()
	for i, kind := range []domain.Kind{domain.KindRefresh, domain.KindAccess, domain.KindAPI} {
		_ = r.Create(ctx, &domain.Credential{ID: string(rune('a' + i)), Username: "Alice@X", Kind: kind, IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	}
	n, err := r.DeleteBySubject(ctx, "alice@x")
	if err != nil {
		t.Fatalf("DeleteBySubject: %v", err)
	}
	if n != 3 || r.Len() != 0 {
		t.Errorf("deleted %d, remaining %d; want 3, 0", n, r.Len())
	}
}

func TestMemoryRepository_DeleteExpiredBefore(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()
	_ = r.Create(ctx, &domain.Credential{ID: "old", Kind: domain.KindRefresh, ExpiresAt: now.Add(-time.Hour)})
	_ = r.Create(ctx, &domain.Credential{ID: "child", Kind: domain.KindAccess, ParentID: "old", ExpiresAt: now.Add(time.Hour)})
	_ = r.Create(ctx, &domain.Credential{ID: "fresh", Kind: domain.KindRefresh, ExpiresAt: now.Add(time.Hour)})

	n, err := r.DeleteExpiredBefore(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if c, _ := r.GetByID(ctx, "fresh"); c == nil {
		t.Error("fresh credential should remain")
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	c := &domain.Credential{ID: "x", SigningSecret: []byte{1, 2, 3}}
	_ = r.Create(ctx, c)
	c.SigningSecret[0] = 9
	got, _ := r.GetByID(ctx, "x")
	if got.SigningSecret[0] != 1 {
		t.Error("store should not alias the caller's secret")
	}
}
