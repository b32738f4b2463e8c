package admincache

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"session-control-plane/internal/identity/domain"
)

type memIdentity struct {
	mu         sync.Mutex
	rights     map[string]*domain.Right
	roles      []*domain.Role
	users      map[string]*domain.User
	roleLoads  int
	// afterRoles runs after the n-th role listing has been taken, outside the lock.
	afterRoles func(ctx context.Context, n int) error
	rightsErr  error
	membersErr error
}

// memRights is the right-side view of memIdentity; both repositories name their list method ListAll.
type memRights struct{ m *memIdentity }

func (r memRights) GetByAuthority(_ context.Context, authority string) (*domain.Right, error) {
	if r.m.rightsErr != nil {
		return nil, r.m.rightsErr
	}
	return r.m.rights[authority], nil
}

func (r memRights) ListAll(_ context.Context) ([]*domain.Right, error) {
	var out []*domain.Right
	for _, rt := range r.m.rights {
		out = append(out, rt)
	}
	return out, nil
}

func (m *memIdentity) ListAll(ctx context.Context) ([]*domain.Role, error) {
	m.mu.Lock()
	m.roleLoads++
	n, roles, hook := m.roleLoads, m.roles, m.afterRoles
	m.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, n); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

func (m *memIdentity) setRoles(roles ...*domain.Role) {
	m.mu.Lock()
	m.roles = roles
	m.mu.Unlock()
}

func (m *memIdentity) GetByName(_ context.Context, name string) (*domain.Role, error) {
	for _, r := range m.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memIdentity) GetByID(_ context.Context, id string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memIdentity) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return m.users[strings.ToLower(username)], nil
}

func (m *memIdentity) UsernamesByRole(_ context.Context, role string) ([]string, error) {
	if m.membersErr != nil {
		return nil, m.membersErr
	}
	var out []string
	for _, u := range m.users {
		for _, r := range u.Roles {
			if r.Name == role {
				out = append(out, u.Email)
			}
		}
	}
	return out, nil
}

func (m *memIdentity) UsernamesByRight(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (m *memIdentity) loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roleLoads
}

func role(name string, authorities ...string) *domain.Role {
	ro := &domain.Role{Name: name}
	for _, a := range authorities {
		ro.Rights = append(ro.Rights, domain.Right{Authority: a})
	}
	return ro
}

func newIdentity() *memIdentity {
	return &memIdentity{
		rights: map[string]*domain.Right{
			"USER_DELETE": {Authority: "USER_DELETE"},
			"ROLE_UPDATE": {Authority: "ROLE_UPDATE"},
			"USER_READ":   {Authority: "USER_READ"},
		},
		roles: []*domain.Role{
			role("ADMIN", "USER_DELETE", "ROLE_UPDATE", "USER_READ"),
			role("USER_ADMIN", "USER_DELETE", "USER_READ"),
			role("ROLE_ADMIN", "ROLE_UPDATE"),
			role("USER", "USER_READ"),
			role("GUEST"),
		},
		users: map[string]*domain.User{},
	}
}

var adminAuthorities = []string{"USER_DELETE", "ROLE_UPDATE", "MISSING_RIGHT"}

func TestCache_AdminRightsAndRoles(t *testing.T) {
	m := newIdentity()
	c := New(adminAuthorities, memRights{m}, m)
	ctx := context.Background()

	if !c.IsEmpty() {
		t.Error("new cache should be empty")
	}
	rights, err := c.AdminRights(ctx)
	if err != nil {
		t.Fatalf("AdminRights: %v", err)
	}
	if len(rights) != 2 {
		t.Errorf("AdminRights = %v, want the two existing rights", rights)
	}
	roles, err := c.AdminRoles(ctx)
	if err != nil {
		t.Fatalf("AdminRoles: %v", err)
	}
	if !reflect.DeepEqual(roles, []string{"ADMIN"}) {
		t.Errorf("AdminRoles = %v, want [ADMIN]", roles)
	}
	if c.IsEmpty() {
		t.Error("cache should be populated")
	}
}

func TestCache_IsAdmin(t *testing.T) {
	m := newIdentity()
	c := New(adminAuthorities, memRights{m}, m)
	testCases := []struct {
		name  string
		roles []string
		want  bool
	}{
		{"admin role", []string{"ADMIN"}, true},
		{"union of partial roles", []string{"USER_ADMIN", "ROLE_ADMIN"}, true},
		{"partial role", []string{"USER_ADMIN"}, false},
		{"plain user", []string{"USER", "GUEST"}, false},
		{"unknown role", []string{"NOPE"}, false},
		{"no roles", nil, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.IsAdmin(context.Background(), tc.roles)
			if err != nil {
				t.Fatalf("IsAdmin: %v", err)
			}
			if got != tc.want {
				t.Errorf("IsAdmin(%v) = %v, want %v", tc.roles, got, tc.want)
			}
		})
	}
}

func TestCache_RetainsAdminWithout(t *testing.T) {
	m := newIdentity()
	c := New(adminAuthorities, memRights{m}, m)
	ctx := context.Background()
	if ok, _ := c.RetainsAdminWithout(ctx, []string{"ADMIN", "USER"}, "USER"); !ok {
		t.Error("stripping USER should keep admin")
	}
	if ok, _ := c.RetainsAdminWithout(ctx, []string{"ADMIN"}, "ADMIN"); ok {
		t.Error("stripping ADMIN should lose admin")
	}
	if ok, _ := c.RetainsAdminWithout(ctx, []string{"ADMIN", "USER_ADMIN", "ROLE_ADMIN"}, "ADMIN"); !ok {
		t.Error("partial roles together should keep admin")
	}
}

func TestCache_NoResolvableAdminRights(t *testing.T) {
	m := newIdentity()
	c := New([]string{"MISSING_RIGHT"}, memRights{m}, m)
	ok, err := c.IsAdmin(context.Background(), []string{"ADMIN"})
	if err != nil || ok {
		t.Errorf("IsAdmin = %v, %v; want false, nil", ok, err)
	}
	if !c.IsEmpty() {
		t.Error("cache with no admin rights should report empty")
	}
	if m.loads() != 0 {
		t.Error("roles should not be loaded without admin rights")
	}
}

func TestCache_LoadsOnceAndReset(t *testing.T) {
	m := newIdentity()
	c := New(adminAuthorities, memRights{m}, m)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.IsAdmin(ctx, []string{"ADMIN"}); err != nil {
				t.Errorf("IsAdmin: %v", err)
			}
		}()
	}
	wg.Wait()
	first := m.loads()
	if first < 1 {
		t.Fatalf("roles loaded %d times", first)
	}
	if _, err := c.AdminRoles(ctx); err != nil {
		t.Fatal(err)
	}
	if m.loads() != first {
		t.Error("cached reads should not reload roles")
	}

	c.Reset()
	if !c.IsEmpty() {
		t.Error("Reset should empty the cache")
	}
	m.roles = append(m.roles, role("SUPER", "USER_DELETE", "ROLE_UPDATE"))
	roles, err := c.AdminRoles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(roles, []string{"ADMIN", "SUPER"}) {
		t.Errorf("AdminRoles after reset = %v", roles)
	}
	if m.loads() != first+1 {
		t.Errorf("loads = %d, want %d", m.loads(), first+1)
	}
}

func TestCache_LoadError(t *testing.T) {
	m := newIdentity()
	m.rightsErr = errors.New("db down")
	c := New(adminAuthorities, memRights{m}, m)
	if _, err := c.IsAdmin(context.Background(), []string{"ADMIN"}); err == nil {
		t.Fatal("IsAdmin should fail when rights cannot be read")
	}
	if !c.IsEmpty() {
		t.Error("failed load should not populate the cache")
	}
}

func TestCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	m := newIdentity()
	c := New(adminAuthorities, memRights{m}, m)
	entered := make(chan struct{})
	release := make(chan struct{})
	m.afterRoles = func(ctx context.Context, n int) error {
		if n == 1 {
			close(entered)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.IsAdmin(ctxA, []string{"ADMIN"})
		errA <- err
	}()
	<-entered

	type result struct {
		ok  bool
		err error
	}
	resB := make(chan result, 1)
	go func() {
		ok, err := c.IsAdmin(context.Background(), []string{"ADMIN"})
		resB <- result{ok, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	select {
	case r := <-resB:
		if r.err != nil || !r.ok {
			t.Errorf("live caller IsAdmin = %v, %v; want true, nil", r.ok, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live caller did not return")
	}
	if c.IsEmpty() {
		t.Error("load finished after the first caller left and should still be cached")
	}
}

func TestCache_ResetDuringLoadRebuilds(t *testing.T) {
	m := newIdentity()
	c := New(adminAuthorities, memRights{m}, m)
	m.afterRoles = func(_ context.Context, n int) error {
		if n == 1 {
			// ROLE_ADMIN gains every admin right while the first listing is in flight.
			m.setRoles(role("ROLE_ADMIN", "USER_DELETE", "ROLE_UPDATE"), role("USER", "USER_READ"))
			c.Reset()
		}
		return nil
	}

	ok, err := c.IsAdmin(context.Background(), []string{"ROLE_ADMIN"})
	if err != nil {
		t.Fatalf("IsAdmin: %v", err)
	}
	if !ok {
		t.Error("IsAdmin answered from the state loaded before Reset")
	}
	if n := m.loads(); n != 2 {
		t.Errorf("role loads = %d, want 2", n)
	}
	roles, _ := c.AdminRoles(context.Background())
	if !reflect.DeepEqual(roles, []string{"ROLE_ADMIN"}) {
		t.Errorf("AdminRoles = %v, want [ROLE_ADMIN]", roles)
	}
}
