// Package history lists script versions, compares them and restores a
// version into the live script.
package history

import "screenplay/api/internal/screenplay"

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// ElementChange describes one element position of a modified scene. Old is
// nil for additions and New is nil for removals.
type ElementChange struct {
	Index int                 `json:"index"`
	Kind  ChangeKind          `json:"kind"`
	Old   *screenplay.Element `json:"old,omitempty"`
	New   *screenplay.Element `json:"new,omitempty"`
}

type SceneChange struct {
	SceneID  string           `json:"sceneId"`
	Kind     ChangeKind       `json:"kind"`
	Scene    screenplay.Scene `json:"scene"`
	Elements []ElementChange  `json:"elements,omitempty"`
}

// Snapshot is the comparable part of a script or version.
type Snapshot struct {
	Title  string
	Author string
	Scenes []screenplay.Scene
}

func FromVersion(v screenplay.ScriptVersion) Snapshot {
	return Snapshot{Title: v.Title, Author: v.Author, Scenes: v.Scenes}
}

func FromScript(s screenplay.Script) Snapshot {
	return Snapshot{Title: s.Title, Author: s.Author, Scenes: s.Scenes}
}

type Diff struct {
	TitleChanged  bool          `json:"titleChanged"`
	AuthorChanged bool          `json:"authorChanged"`
	Added         []SceneChange `json:"added"`
	Removed       []SceneChange `json:"removed"`
	Modified      []SceneChange `json:"modified"`
}

func (d Diff) Empty() bool {
	return !d.TitleChanged && !d.AuthorChanged &&
		len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Compare reports what changed between two snapshots. Scenes are matched by id.
// Elements of a modified scene are aligned by index, not by content.
func Compare(from, to Snapshot) Diff {
	d := Diff{
		TitleChanged:  from.Title != to.Title,
		AuthorChanged: from.Author != to.Author,
		Added:         []SceneChange{},
		Removed:       []SceneChange{},
		Modified:      []SceneChange{},
	}

	oldByID := make(map[string]screenplay.Scene, len(from.Scenes))
	for _, scene := range from.Scenes {
		oldByID[scene.ID] = scene
	}
	newIDs := make(map[string]struct{}, len(to.Scenes))

	for _, scene := range to.Scenes {
		newIDs[scene.ID] = struct{}{}
		before, ok := oldByID[scene.ID]
		if !ok {
			d.Added = append(d.Added, SceneChange{SceneID: scene.ID, Kind: ChangeAdded, Scene: scene})
			continue
		}
		if screenplay.ElementsEqual(before.Elements, scene.Elements) {
			continue
		}
		d.Modified = append(d.Modified, SceneChange{
			SceneID:  scene.ID,
			Kind:     ChangeModified,
			Scene:    scene,
			Elements: compareElements(before.Elements, scene.Elements),
		})
	}

	for _, scene := range from.Scenes {
		if _, ok := newIDs[scene.ID]; !ok {
			d.Removed = append(d.Removed, SceneChange{SceneID: scene.ID, Kind: ChangeRemoved, Scene: scene})
		}
	}
	return d
}

func compareElements(prev, next []screenplay.Element) []ElementChange {
	var changes []ElementChange
	for i := range next {
		after := next[i]
		if i >= len(prev) {
			changes = append(changes, ElementChange{Index: i, Kind: ChangeAdded, New: &after})
			continue
		}
		before := prev[i]
		if before != after {
			changes = append(changes, ElementChange{Index: i, Kind: ChangeModified, Old: &before, New: &after})
		}
	}
	for i := len(next); i < len(prev); i++ {
		before := prev[i]
		changes = append(changes, ElementChange{Index: i, Kind: ChangeRemoved, Old: &before})
	}
	return changes
}
