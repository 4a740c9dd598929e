package rbac

import (
	"testing"

	"screenplay/api/internal/auth"
	"screenplay/api/internal/screenplay"
)

const adminEmail = "admin@example.com"

func testGate() Gate {
	return Gate{AdminEmail: adminEmail, FallbackPassword: DefaultFallbackPassword}
}

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		access Access
		action Action
		allow  bool
	}{
		{name: "owner share", access: AccessOwner, action: ActionShare, allow: true},
		{name: "owner delete", access: AccessOwner, action: ActionDelete, allow: true},
		{name: "edit write", access: AccessEdit, action: ActionWrite, allow: true},
		{name: "edit share", access: AccessEdit, action: ActionShare, allow: false},
		{name: "view read", access: AccessView, action: ActionRead, allow: true},
		{name: "view write", access: AccessView, action: ActionWrite, allow: false},
		{name: "admin read", access: AccessAdminRead, action: ActionRead, allow: true},
		{name: "admin write", access: AccessAdminRead, action: ActionWrite, allow: false},
		{name: "public read", access: AccessPublicRead, action: ActionRead, allow: true},
		{name: "gated read", access: AccessPasswordGated, action: ActionRead, allow: false},
		{name: "denied read", access: AccessDenied, action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.access, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.access, tc.action, got, tc.allow)
			}
		})
	}
}

func TestEffective(t *testing.T) {
	shared := map[string]screenplay.ShareGrant{
		"editor@example.com": {AccessLevel: screenplay.AccessLevelEdit},
		"viewer@example.com": {AccessLevel: screenplay.AccessLevelView},
		adminEmail:           {AccessLevel: screenplay.AccessLevelEdit},
	}
	owner := auth.Identity{UID: "owner", Email: "owner@example.com"}

	cases := []struct {
		name       string
		caller     auth.Identity
		visibility screenplay.Visibility
		want       Access
	}{
		{name: "owner private", caller: owner, visibility: screenplay.VisibilityPrivate, want: AccessOwner},
		{name: "owner protected", caller: owner, visibility: screenplay.VisibilityProtected, want: AccessOwner},
		{name: "edit grant", caller: auth.Identity{UID: "e", Email: "editor@example.com"}, visibility: screenplay.VisibilityPrivate, want: AccessEdit},
		{name: "view grant", caller: auth.Identity{UID: "v", Email: "Viewer@Example.com"}, visibility: screenplay.VisibilityPublic, want: AccessView},
		{name: "grant beats admin", caller: auth.Identity{UID: "a", Email: adminEmail}, visibility: screenplay.VisibilityPrivate, want: AccessEdit},
		{name: "stranger public", caller: auth.Identity{UID: "s", Email: "s@example.com"}, visibility: screenplay.VisibilityPublic, want: AccessPublicRead},
		{name: "stranger protected", caller: auth.Identity{UID: "s", Email: "s@example.com"}, visibility: screenplay.VisibilityProtected, want: AccessPasswordGated},
		{name: "stranger private", caller: auth.Identity{UID: "s", Email: "s@example.com"}, visibility: screenplay.VisibilityPrivate, want: AccessDenied},
		{name: "anonymous public", caller: auth.Identity{}, visibility: screenplay.VisibilityPublic, want: AccessPublicRead},
		{name: "anonymous private", caller: auth.Identity{}, visibility: screenplay.VisibilityPrivate, want: AccessDenied},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			script := screenplay.Script{UserID: "owner", Visibility: tc.visibility, SharedWith: shared}
			if got := testGate().Effective(tc.caller, script); got != tc.want {
				t.Fatalf("Effective() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEffectiveAdminWithoutGrant(t *testing.T) {
	script := screenplay.Script{UserID: "owner", Visibility: screenplay.VisibilityPrivate}
	got := testGate().Effective(auth.Identity{UID: "admin", Email: "ADMIN@example.com"}, script)
	if got != AccessAdminRead {
		t.Fatalf("Effective() = %q, want %q", got, AccessAdminRead)
	}
}

func TestEffectiveOwnerIgnoresSharingAndVisibility(t *testing.T) {
	for _, visibility := range []screenplay.Visibility{screenplay.VisibilityPublic, screenplay.VisibilityProtected, screenplay.VisibilityPrivate} {
		script := screenplay.Script{
			UserID:     "u1",
			Visibility: visibility,
			SharedWith: map[string]screenplay.ShareGrant{"me@example.com": {AccessLevel: screenplay.AccessLevelView}},
		}
		if got := testGate().Effective(auth.Identity{UID: "u1", Email: "me@example.com"}, script); got != AccessOwner {
			t.Fatalf("visibility %s: Effective() = %q, want owner", visibility, got)
		}
	}
}

func TestPasswordChallenge(t *testing.T) {
	gate := testGate()
	script := screenplay.Script{
		UserID:     "owner",
		Visibility: screenplay.VisibilityProtected,
		SharedWith: map[string]screenplay.ShareGrant{
			"user3@example.com": {AccessLevel: screenplay.AccessLevelView, Password: "abc123"},
		},
	}
	caller := auth.Identity{UID: "u3", Email: "user3@example.com"}

	access := gate.Effective(caller, script)
	if !gate.RequiresPassword(access, script) {
		t.Fatal("expected protected grantee to face a password challenge")
	}
	if gate.CheckPassword(script, caller.Email, "wrong") {
		t.Fatal("wrong password accepted")
	}
	if !gate.CheckPassword(script, caller.Email, "abc123") {
		t.Fatal("grant password rejected")
	}
	if !gate.CheckPassword(script, caller.Email, DefaultFallbackPassword) {
		t.Fatal("fallback password rejected")
	}
	if !gate.CheckPassword(script, "stranger@example.com", DefaultFallbackPassword) {
		t.Fatal("fallback password must open protected scripts for anyone")
	}
	if gate.CheckPassword(script, "stranger@example.com", "abc123") {
		t.Fatal("another grantee's password must not open the script")
	}
	if gate.CheckPassword(script, caller.Email, "") {
		t.Fatal("empty password accepted")
	}
}

func TestRequiresPassword(t *testing.T) {
	gate := testGate()
	protected := screenplay.Script{Visibility: screenplay.VisibilityProtected}
	public := screenplay.Script{Visibility: screenplay.VisibilityPublic}

	if gate.RequiresPassword(AccessOwner, protected) {
		t.Fatal("owner must not be challenged")
	}
	if gate.RequiresPassword(AccessAdminRead, protected) {
		t.Fatal("admin must not be challenged")
	}
	if !gate.RequiresPassword(AccessPasswordGated, protected) {
		t.Fatal("gated caller must be challenged")
	}
	if gate.RequiresPassword(AccessView, public) {
		t.Fatal("public scripts have no challenge")
	}
	if Unlocked(AccessPasswordGated) != AccessPublicRead || Unlocked(AccessEdit) != AccessEdit {
		t.Fatal("unexpected unlocked access")
	}
}
