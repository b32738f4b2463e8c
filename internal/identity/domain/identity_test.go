package domain

import (
	"reflect"
	"testing"
)

func sampleUser() *User {
	return &User{
		ID:    "42",
		Email: "alice@example.com",
		Roles: []Role{
			{Name: "ADMIN", Rights: []Right{{Authority: "USER_READ"}, {Authority: "ROLE_READ"}}},
			{Name: "USER", Rights: []Right{{Authority: "USER_READ"}}},
		},
		Nonce: "n1",
	}
}

func TestUser_Authorities(t *testing.T) {
	u := sampleUser()
	got := u.Authorities()
	want := []string{"ROLE_READ", "USER_READ"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Authorities = %v, want %v", got, want)
	}
	if !u.HasAuthority("ROLE_READ") {
		t.Error("HasAuthority(ROLE_READ) should be true")
	}
	if u.HasAuthority("ROLE_DELETE") {
		t.Error("HasAuthority(ROLE_DELETE) should be false")
	}
	if got := u.RoleNames(); !reflect.DeepEqual(got, []string{"ADMIN", "USER"}) {
		t.Errorf("RoleNames = %v", got)
	}
}

func TestUser_NumericID(t *testing.T) {
	testCases := []struct {
		id     string
		want   int64
		wantOK bool
	}{
		{"42", 42, true},
		{"-7", -7, true},
		{"", 0, false},
		{"3f2a", 0, false},
	}
	for _, tc := range testCases {
		u := &User{ID: tc.id}
		got, ok := u.NumericID()
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("NumericID(%q) = %d, %v; want %d, %v", tc.id, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestUser_CloneIsDeep(t *testing.T) {
	u := sampleUser()
	c := u.Clone()
	if c == u {
		t.Fatal("Clone returned the same pointer")
	}
	if !reflect.DeepEqual(c, u) {
		t.Fatalf("Clone = %+v, want equal to original", c)
	}
	c.Roles[0].Rights[0].Authority = "CHANGED"
	c.Roles[1].Name = "CHANGED"
	if u.Roles[0].Rights[0].Authority != "USER_READ" || u.Roles[1].Name != "USER" {
		t.Error("mutating clone changed the original")
	}
	var nilUser *User
	if nilUser.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestFederatedSource(t *testing.T) {
	if got := FederatedSource("  GitHub "); got != "github" {
		t.Errorf("FederatedSource = %q, want github", got)
	}
}
