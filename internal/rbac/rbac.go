// Package rbac is the access gate: it decides what a caller may do with a
// script from ownership, sharing grants, visibility and the admin identity.
package rbac

import (
	"screenplay/api/internal/auth"
	"screenplay/api/internal/screenplay"
)

type Access string
type Action string

const (
	AccessOwner         Access = "owner"
	AccessEdit          Access = "edit"
	AccessView          Access = "view"
	AccessAdminRead     Access = "admin-read-only"
	AccessPublicRead    Access = "public-read"
	AccessPasswordGated Access = "password-gated"
	AccessDenied        Access = "denied"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionShare  Action = "share"
	ActionDelete Action = "delete"
)

// DefaultFallbackPassword is accepted for every protected script.
// Known weakness, kept for compatibility with existing shared links.
const DefaultFallbackPassword = "screenplay"

type Gate struct {
	AdminEmail       string
	FallbackPassword string
}

// Effective computes the caller's access. Checks run in a fixed order:
// ownership, sharing grant, admin, then visibility.
func (g Gate) Effective(caller auth.Identity, script screenplay.Script) Access {
	if caller.UID != "" && caller.UID == script.UserID {
		return AccessOwner
	}
	if grant, ok := script.Grant(caller.Email); ok {
		switch grant.AccessLevel {
		case screenplay.AccessLevelEdit:
			return AccessEdit
		case screenplay.AccessLevelView:
			return AccessView
		}
	}
	if g.IsAdmin(caller) {
		return AccessAdminRead
	}
	switch script.Visibility {
	case screenplay.VisibilityPublic:
		return AccessPublicRead
	case screenplay.VisibilityProtected:
		return AccessPasswordGated
	default:
		return AccessDenied
	}
}

func (g Gate) IsAdmin(caller auth.Identity) bool {
	return g.AdminEmail != "" && caller.Email != "" &&
		screenplay.NormalizeEmail(caller.Email) == screenplay.NormalizeEmail(g.AdminEmail)
}

// RequiresPassword reports whether reading a protected script needs a
// password challenge for this access level.
func (g Gate) RequiresPassword(access Access, script screenplay.Script) bool {
	if script.Visibility != screenplay.VisibilityProtected {
		return false
	}
	switch access {
	case AccessView, AccessEdit, AccessPasswordGated:
		return true
	default:
		return false
	}
}

// CheckPassword accepts the grant password stored for email or the fallback password.
func (g Gate) CheckPassword(script screenplay.Script, email, supplied string) bool {
	if supplied == "" {
		return false
	}
	if grant, ok := script.Grant(email); ok && grant.Password != "" && grant.Password == supplied {
		return true
	}
	return g.FallbackPassword != "" && supplied == g.FallbackPassword
}

// Unlocked is the access a caller holds after passing the password challenge.
func Unlocked(access Access) Access {
	if access == AccessPasswordGated {
		return AccessPublicRead
	}
	return access
}

func Can(access Access, action Action) bool {
	switch access {
	case AccessOwner:
		return true
	case AccessEdit:
		return action == ActionRead || action == ActionWrite
	case AccessView, AccessAdminRead, AccessPublicRead:
		return action == ActionRead
	default:
		return false
	}
}
