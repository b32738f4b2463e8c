package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"session-control-plane/internal/apicredential/domain"
	identitydomain "session-control-plane/internal/identity/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seed(t *testing.T, r *MemoryRepository) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	creds := []*domain.ApiCredential{
		{ID: "a", Owner: "alice", Description: "CI pipeline", Status: domain.StatusActive, ValidUntil: day(2026, 2, 1), CreatedAt: base},
		{ID: "b", Owner: "Alice", Description: "backup job", Status: domain.StatusRevoked, ValidUntil: day(2026, 1, 5), CreatedAt: base.Add(time.Hour)},
		{ID: "c", Owner: "bob", Description: "ci runner", Status: domain.StatusActive, ValidUntil: day(2026, 1, 3), CreatedAt: base.Add(2 * time.Hour)},
		{ID: "d", Owner: "bob", Description: "old", Status: domain.StatusExpired, ValidUntil: day(2026, 1, 10), CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, c := range creds {
		if err := r.Create(context.Background(), c); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
}

func TestMemoryRepository_List(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r)
	testCases := []struct {
		name string
		f    Filter
		want []string
	}{
		{"all newest first", Filter{}, []string{"d", "c", "b", "a"}},
		{"owner ignores case", Filter{Owner: "ALICE"}, []string{"b", "a"}},
		{"status", Filter{Status: domain.StatusActive}, []string{"c", "a"}},
		{"description substring", Filter{Description: "CI"}, []string{"c", "a"}},
		{"limit offset", Filter{Limit: 2, Offset: 1}, []string{"c", "b"}},
		{"offset past end", Filter{Offset: 10}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.List(context.Background(), tc.f)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			var ids []string
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			if len(ids) != len(tc.want) {
				t.Fatalf("ids = %v, want %v", ids, tc.want)
			}
			for i := range ids {
				if ids[i] != tc.want[i] {
					t.Fatalf("ids = %v, want %v", ids, tc.want)
				}
			}
		})
	}
}

func TestMemoryRepository_Sweeps(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r)
	ctx := context.Background()

	overdue, err := r.ListActiveValidUntilBefore(ctx, day(2026, 1, 4))
	if err != nil {
		t.Fatal(err)
	}
	if len(overdue) != 1 || overdue[0].ID != "c" {
		t.Errorf("overdue = %v, want [c]", overdue)
	}

	n, err := r.DeleteInactiveValidUntilBefore(ctx, day(2026, 1, 11))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if c, _ := r.GetByID(ctx, "c"); c == nil {
		t.Error("active credential must survive the purge")
	}
}

func TestMemoryRepository_TokenNotStoredAndCopies(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	in := &domain.ApiCredential{
		ID: "x", Owner: "alice", Description: "d", Status: domain.StatusActive,
		ValidUntil: time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC),
		Rights:     []identitydomain.Right{{Authority: "USER_READ"}},
		Token:      "secret.jwt.value",
	}
	if err := r.Create(ctx, in); err != nil {
		t.Fatal(err)
	}
	in.Rights[0].Authority = "MUTATED"

	got, _ := r.GetByOwnerAndDescription(ctx, "ALICE", "d")
	if got == nil {
		t.Fatal("GetByOwnerAndDescription returned nil")
	}
	if got.Token != "" {
		t.Error("token must not be stored")
	}
	if got.Rights[0].Authority != "USER_READ" {
		t.Error("stored rights alias the caller's slice")
	}
	if !got.ValidUntil.Equal(day(2026, 1, 1)) {
		t.Errorf("ValidUntil = %v, want date only", got.ValidUntil)
	}

	if err := r.UpdateStatus(ctx, "x", domain.StatusRevoked, day(2026, 1, 2)); err != nil {
		t.Fatal(err)
	}
	got, _ = r.GetByID(ctx, "x")
	if got.Status != domain.StatusRevoked || !got.ValidUntil.Equal(day(2026, 1, 2)) {
		t.Errorf("after UpdateStatus = %+v", got)
	}
	if err := r.Delete(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.GetByID(ctx, "x"); got != nil {
		t.Error("Delete did not remove the credential")
	}
}

func TestMemoryRepository_CreateDuplicateDescription(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r)
	err := r.Create(context.Background(), &domain.ApiCredential{
		ID: "e", Owner: "alice", Description: "CI pipeline", Status: domain.StatusActive, ValidUntil: day(2026, 3, 1),
	})
	if !errors.Is(err, ErrDuplicateDescription) {
		t.Fatalf("Create = %v, want ErrDuplicateDescription", err)
	}
	if got, _ := r.GetByID(context.Background(), "e"); got != nil {
		t.Error("duplicate should not be stored")
	}
	if err := r.Create(context.Background(), &domain.ApiCredential{
		ID: "f", Owner: "bob", Description: "CI pipeline", Status: domain.StatusActive, ValidUntil: day(2026, 3, 1),
	}); err != nil {
		t.Errorf("same description for another owner: %v", err)
	}
}
