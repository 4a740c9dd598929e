package screenplay

const (
	DefaultTitle        = "Untitled Script"
	DefaultSceneHeading = "INT. LIVING ROOM - DAY"
	DefaultActionText   = "Describe what happens in the scene."
	PlaceholderHeading  = "INT. LOCATION - DAY"
	DefaultVisibility   = VisibilityPrivate
	fallbackVisibility  = VisibilityPublic
)

// DefaultScene is the single scene a fresh edit session starts with.
func DefaultScene(id string) Scene {
	return Scene{
		ID: id,
		Elements: []Element{
			{Type: ElementSceneHeading, Content: DefaultSceneHeading},
			{Type: ElementAction, Content: DefaultActionText},
		},
	}
}

// NewScene is the scene appended by an explicit add.
func NewScene(id string) Scene {
	return Scene{
		ID: id,
		Elements: []Element{
			{Type: ElementSceneHeading, Content: PlaceholderHeading},
			{Type: ElementAction, Content: ""},
		},
	}
}

func CloneElements(elements []Element) []Element {
	out := make([]Element, len(elements))
	copy(out, elements)
	return out
}

func CloneScenes(scenes []Scene) []Scene {
	out := make([]Scene, len(scenes))
	for i, scene := range scenes {
		out[i] = Scene{
			ID:          scene.ID,
			Elements:    CloneElements(scene.Elements),
			IsCollapsed: scene.IsCollapsed,
		}
	}
	return out
}

// CloneScript returns a copy of s sharing no slices or maps with it.
func CloneScript(s Script) Script {
	out := s
	out.Scenes = CloneScenes(s.Scenes)
	out.SharedWith = make(map[string]ShareGrant, len(s.SharedWith))
	for email, grant := range s.SharedWith {
		out.SharedWith[email] = grant
	}
	return out
}

// ApplyDefaults fills fields that older or hand-edited documents may lack.
func ApplyDefaults(s *Script) {
	if s.Title == "" {
		s.Title = DefaultTitle
	}
	if s.Scenes == nil {
		s.Scenes = []Scene{}
	}
	for i := range s.Scenes {
		if s.Scenes[i].Elements == nil {
			s.Scenes[i].Elements = []Element{}
		}
	}
	if !s.Visibility.Valid() {
		s.Visibility = fallbackVisibility
	}
	if s.SharedWith == nil {
		s.SharedWith = map[string]ShareGrant{}
	}
}

// ScenesEqual compares scene ids and element content in order.
func ScenesEqual(a, b []Scene) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !ElementsEqual(a[i].Elements, b[i].Elements) {
			return false
		}
	}
	return true
}

func ElementsEqual(a, b []Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
