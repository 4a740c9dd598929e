// Package editor holds the in-progress script a user is editing. Changes
// stay in memory until Save commits them through the repository.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"screenplay/api/internal/auth"
	"screenplay/api/internal/logger"
	"screenplay/api/internal/rbac"
	"screenplay/api/internal/screenplay"
	"screenplay/api/internal/scripts"
	"screenplay/api/internal/util"
)

// ErrLoadInProgress is returned when Load is called while another load is
// still running. The second call is dropped, not queued.
var ErrLoadInProgress = errors.New("load already in progress")

// Repository is the subset of the script repository a session needs.
type Repository interface {
	GetByID(ctx context.Context, scriptID string) (*screenplay.Script, error)
	Create(ctx context.Context, title, author string, scenes []screenplay.Scene, visibility screenplay.Visibility) (string, error)
	Update(ctx context.Context, scriptID string, in scripts.UpdateInput) error
}

// State is a copy of the session fields.
type State struct {
	Title      string             `json:"title"`
	Author     string             `json:"author"`
	Scenes     []screenplay.Scene `json:"scenes"`
	ScriptID   string             `json:"scriptId,omitempty"`
	IsModified bool               `json:"isModified"`
	IsViewOnly bool               `json:"isViewOnly"`
}

// Document is the shape handed to the print/export collaborator.
type Document struct {
	Title  string
	Author string
	Scenes []screenplay.Scene
}

type Session struct {
	repo     Repository
	identity auth.Provider
	gate     rbac.Gate
	newID    func() string
	logger   *zap.Logger

	mu       sync.Mutex
	title    string
	author   string
	scenes   []screenplay.Scene
	scriptID string
	modified bool
	viewOnly bool

	// revision counts edits; generation counts resets and loads.
	revision   uint64
	generation uint64

	loading atomic.Bool
}

type Option func(*Session)

func WithSceneIDs(newID func() string) Option {
	return func(s *Session) { s.newID = newID }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.logger = logger.OrNop(log).Named("editor") }
}

func New(repo Repository, identity auth.Provider, gate rbac.Gate, opts ...Option) *Session {
	s := &Session{
		repo:     repo,
		identity: identity,
		gate:     gate,
		newID:    func() string { return util.NewID("scene") },
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// Reset discards everything and starts over with one default scene.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = screenplay.DefaultTitle
	s.author = ""
	s.scenes = []screenplay.Scene{screenplay.DefaultScene(s.newID())}
	s.scriptID = ""
	s.modified = false
	s.viewOnly = false
	s.generation++
}

// Load replaces the session with a stored script. View grantees get a
// read-only session.
func (s *Session) Load(ctx context.Context, scriptID string) error {
	if !s.loading.CompareAndSwap(false, true) {
		s.logger.Debug("dropping overlapping load", zap.String("script_id", scriptID))
		return ErrLoadInProgress
	}
	defer s.loading.Store(false)

	caller, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return screenplay.ErrAuthRequired
	}
	script, err := s.repo.GetByID(ctx, scriptID)
	if err != nil {
		return fmt.Errorf("load script %s: %w", scriptID, err)
	}
	access := s.gate.Effective(caller, *script)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = script.Title
	s.author = script.Author
	s.scenes = screenplay.CloneScenes(script.Scenes)
	s.scriptID = script.ID
	s.modified = false
	s.viewOnly = access == rbac.AccessView
	s.generation++
	return nil
}

func (s *Session) touch() {
	s.modified = true
	s.revision++
}

func (s *Session) writable(action string) error {
	if s.viewOnly {
		return fmt.Errorf("%s: %w: script is view-only", action, screenplay.ErrPermission)
	}
	return nil
}

func (s *Session) SetTitle(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable("set title"); err != nil {
		return err
	}
	if title != s.title {
		s.title = title
		s.touch()
	}
	return nil
}

func (s *Session) SetAuthor(author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable("set author"); err != nil {
		return err
	}
	if author != s.author {
		s.author = author
		s.touch()
	}
	return nil
}

// AddScene appends a new scene and returns its id.
func (s *Session) AddScene() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable("add scene"); err != nil {
		return "", err
	}
	id := s.uniqueSceneID()
	s.scenes = append(s.scenes, screenplay.NewScene(id))
	s.touch()
	return id, nil
}

func (s *Session) uniqueSceneID() string {
	for {
		id := s.newID()
		if s.indexOf(id) < 0 {
			return id
		}
	}
}

func (s *Session) indexOf(sceneID string) int {
	for i, scene := range s.scenes {
		if scene.ID == sceneID {
			return i
		}
	}
	return -1
}

// UpdateScene replaces the elements of a scene.
func (s *Session) UpdateScene(sceneID string, elements []screenplay.Element) error {
	for _, el := range elements {
		if !el.Type.Valid() {
			return fmt.Errorf("update scene: %w: element type %q", screenplay.ErrInvalidInput, el.Type)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable("update scene"); err != nil {
		return err
	}
	i := s.indexOf(sceneID)
	if i < 0 {
		return fmt.Errorf("update scene %s: %w", sceneID, screenplay.ErrNotFound)
	}
	s.scenes[i].Elements = screenplay.CloneElements(elements)
	s.touch()
	return nil
}

func (s *Session) DeleteScene(sceneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable("delete scene"); err != nil {
		return err
	}
	i := s.indexOf(sceneID)
	if i < 0 {
		return fmt.Errorf("delete scene %s: %w", sceneID, screenplay.ErrNotFound)
	}
	s.scenes = append(s.scenes[:i], s.scenes[i+1:]...)
	s.touch()
	return nil
}

// ReorderScenes moves the scene at from to position to, shifting the
// scenes in between.
func (s *Session) ReorderScenes(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable("reorder scenes"); err != nil {
		return err
	}
	n := len(s.scenes)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("reorder scenes %d -> %d of %d: %w", from, to, n, screenplay.ErrInvalidInput)
	}
	if from == to {
		return nil
	}
	moved := s.scenes[from]
	rest := append(s.scenes[:from:from], s.scenes[from+1:]...)
	reordered := make([]screenplay.Scene, 0, n)
	reordered = append(reordered, rest[:to]...)
	reordered = append(reordered, moved)
	reordered = append(reordered, rest[to:]...)
	s.scenes = reordered
	s.touch()
	return nil
}

// Save creates the script on first save and updates it afterwards. A nil
// visibility keeps the stored value (or the default for new scripts).
func (s *Session) Save(ctx context.Context, visibility *screenplay.Visibility) (string, error) {
	caller, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return "", screenplay.ErrAuthRequired
	}

	s.mu.Lock()
	if err := s.writable("save"); err != nil {
		s.mu.Unlock()
		return "", err
	}
	title, author, scriptID := s.title, s.author, s.scriptID
	scenes := screenplay.CloneScenes(s.scenes)
	revision, generation := s.revision, s.generation
	s.mu.Unlock()

	if scriptID != "" {
		if err := s.authorizeSave(ctx, caller, scriptID, visibility); err != nil {
			return "", err
		}
		err := s.repo.Update(ctx, scriptID, scripts.UpdateInput{
			Title:       title,
			Author:      author,
			Scenes:      scenes,
			Visibility:  visibility,
			EditorEmail: caller.Email,
		})
		if err != nil {
			return "", fmt.Errorf("%w: %w", screenplay.ErrSave, err)
		}
	} else {
		var v screenplay.Visibility
		if visibility != nil {
			v = *visibility
		}
		id, err := s.repo.Create(ctx, title, author, scenes, v)
		if err != nil {
			return "", fmt.Errorf("%w: %w", screenplay.ErrSave, err)
		}
		scriptID = id
	}

	s.mu.Lock()
	if s.generation == generation {
		s.scriptID = scriptID
		if s.revision == revision {
			s.modified = false
		}
	}
	s.mu.Unlock()
	s.logger.Info("script saved", zap.String("script_id", scriptID), zap.String("editor", caller.Email))
	return scriptID, nil
}

// authorizeSave checks the caller's current access to the stored script.
// Grants may have changed since Load. Changing visibility needs owner access.
func (s *Session) authorizeSave(ctx context.Context, caller auth.Identity, scriptID string, visibility *screenplay.Visibility) error {
	script, err := s.repo.GetByID(ctx, scriptID)
	if err != nil {
		return fmt.Errorf("save script %s: %w", scriptID, err)
	}
	access := s.gate.Effective(caller, *script)
	if !rbac.Can(access, rbac.ActionWrite) {
		return fmt.Errorf("save script %s as %s: %w", scriptID, access, screenplay.ErrPermission)
	}
	if visibility != nil && *visibility != script.Visibility && !rbac.Can(access, rbac.ActionShare) {
		return fmt.Errorf("change visibility of script %s as %s: %w", scriptID, access, screenplay.ErrPermission)
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Title:      s.title,
		Author:     s.author,
		Scenes:     screenplay.CloneScenes(s.scenes),
		ScriptID:   s.scriptID,
		IsModified: s.modified,
		IsViewOnly: s.viewOnly,
	}
}

// Document returns the script in document order for printing.
func (s *Session) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Document{Title: s.title, Author: s.author, Scenes: screenplay.CloneScenes(s.scenes)}
}
