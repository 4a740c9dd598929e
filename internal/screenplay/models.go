// Package screenplay holds the script data model shared by the repository,
// the edit session and version history.
package screenplay

import (
	"strings"
	"time"
)

const (
	CollectionScripts  = "scripts"
	CollectionVersions = "script_versions"
)

type ElementType string

const (
	ElementSceneHeading  ElementType = "scene-heading"
	ElementAction        ElementType = "action"
	ElementCharacter     ElementType = "character"
	ElementDialogue      ElementType = "dialogue"
	ElementParenthetical ElementType = "parenthetical"
	ElementTransition    ElementType = "transition"
)

func (t ElementType) Valid() bool {
	switch t {
	case ElementSceneHeading, ElementAction, ElementCharacter, ElementDialogue, ElementParenthetical, ElementTransition:
		return true
	default:
		return false
	}
}

type Element struct {
	Type    ElementType `json:"type" firestore:"type"`
	Content string      `json:"content" firestore:"content"`
}

type Scene struct {
	ID          string    `json:"id" firestore:"id"`
	Elements    []Element `json:"elements" firestore:"elements"`
	IsCollapsed bool      `json:"isCollapsed" firestore:"isCollapsed"`
}

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityProtected Visibility = "protected"
	VisibilityPrivate   Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityProtected || v == VisibilityPrivate
}

type AccessLevel string

const (
	AccessLevelView AccessLevel = "view"
	AccessLevelEdit AccessLevel = "edit"
)

func (l AccessLevel) Valid() bool {
	return l == AccessLevelView || l == AccessLevelEdit
}

// ShareGrant is stored under Script.SharedWith keyed by grantee email.
// Password is kept in plaintext and only for protected scripts.
type ShareGrant struct {
	AccessLevel AccessLevel `json:"accessLevel" firestore:"accessLevel"`
	SharedAt    time.Time   `json:"sharedAt" firestore:"sharedAt"`
	Password    string      `json:"password,omitempty" firestore:"password,omitempty"`
}

type Script struct {
	ID           string                `json:"id" firestore:"-"`
	Title        string                `json:"title" firestore:"title"`
	Author       string                `json:"author" firestore:"author"`
	Scenes       []Scene               `json:"scenes" firestore:"scenes"`
	UserID       string                `json:"userId" firestore:"userId"`
	Visibility   Visibility            `json:"visibility" firestore:"visibility"`
	CreatedAt    time.Time             `json:"createdAt" firestore:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt" firestore:"updatedAt"`
	LastEditedBy string                `json:"lastEditedBy" firestore:"lastEditedBy"`
	SharedWith   map[string]ShareGrant `json:"sharedWith" firestore:"sharedWith"`
}

// Grant returns the share grant recorded for email, if any.
func (s Script) Grant(email string) (ShareGrant, bool) {
	if email == "" || s.SharedWith == nil {
		return ShareGrant{}, false
	}
	grant, ok := s.SharedWith[NormalizeEmail(email)]
	return grant, ok
}

type ScriptVersion struct {
	VersionID string    `json:"versionId" firestore:"versionId"`
	ScriptID  string    `json:"scriptId" firestore:"scriptId"`
	Title     string    `json:"title" firestore:"title"`
	Author    string    `json:"author" firestore:"author"`
	Scenes    []Scene   `json:"scenes" firestore:"scenes"`
	Editor    string    `json:"editor" firestore:"editor"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// NormalizeEmail is the canonical form of an email used as a sharing key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SceneNumber is the 1-based display number of the scene at index.
func SceneNumber(index int) int {
	return index + 1
}
