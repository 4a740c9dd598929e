// Package scripts is the script repository: CRUD, sharing and version
// history over the "scripts" and "script_versions" collections.
//
// Authorization is deliberately uneven. Share, Unshare and GetSharing check
// ownership here; Update, SetVisibility and Delete do not, and callers must
// consult the access gate first.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"screenplay/api/internal/auth"
	"screenplay/api/internal/logger"
	"screenplay/api/internal/screenplay"
	"screenplay/api/internal/store"
	"screenplay/api/internal/util"
)

// VersionSink receives every version written to the store.
type VersionSink interface {
	RecordVersion(ctx context.Context, version screenplay.ScriptVersion) error
}

// Indexer mirrors script writes into a secondary index.
type Indexer interface {
	IndexScript(ctx context.Context, script screenplay.Script) error
	RemoveScript(ctx context.Context, scriptID string) error
}

type SortOrder string

const (
	SortDescending SortOrder = "desc"
	SortAscending  SortOrder = "asc"
)

func ParseSortOrder(value string) SortOrder {
	if value == string(SortAscending) {
		return SortAscending
	}
	return SortDescending
}

type Repository struct {
	store      store.Store
	identity   auth.Provider
	adminEmail string
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
	sinks      []VersionSink
	indexer    Indexer
}

type Option func(*Repository)

func WithAdminEmail(email string) Option {
	return func(r *Repository) { r.adminEmail = screenplay.NormalizeEmail(email) }
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Repository) { r.logger = logger.OrNop(log).Named("scripts") }
}

func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

func WithVersionSink(sink VersionSink) Option {
	return func(r *Repository) { r.sinks = append(r.sinks, sink) }
}

func WithIndexer(indexer Indexer) Option {
	return func(r *Repository) { r.indexer = indexer }
}

func New(st store.Store, identity auth.Provider, opts ...Option) *Repository {
	r := &Repository{
		store:    st,
		identity: identity,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return util.NewID("") },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpdateInput carries the fields written by Update. Visibility is left
// unchanged when nil; EditorEmail defaults to the caller.
type UpdateInput struct {
	Title       string
	Author      string
	Scenes      []screenplay.Scene
	Visibility  *screenplay.Visibility
	EditorEmail string
}

// Share is one entry of a script's sharing map.
type Share struct {
	Email       string                 `json:"email"`
	AccessLevel screenplay.AccessLevel `json:"accessLevel"`
	SharedAt    time.Time              `json:"sharedAt"`
	Password    string                 `json:"password,omitempty"`
}

func (r *Repository) caller(ctx context.Context) (auth.Identity, error) {
	identity, ok := r.identity.CurrentUser(ctx)
	if !ok {
		return auth.Identity{}, screenplay.ErrAuthRequired
	}
	return identity, nil
}

func storeError(action string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", action, screenplay.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", action, screenplay.ErrStore, err)
}

// Create writes a new script owned by the caller and records its first version.
func (r *Repository) Create(ctx context.Context, title, author string, scenes []screenplay.Scene, visibility screenplay.Visibility) (string, error) {
	caller, err := r.caller(ctx)
	if err != nil {
		return "", err
	}
	if visibility == "" {
		visibility = screenplay.DefaultVisibility
	}
	if !visibility.Valid() {
		return "", fmt.Errorf("create script: %w: visibility %q", screenplay.ErrInvalidInput, visibility)
	}

	now := r.now()
	script := screenplay.Script{
		ID:           r.newID(),
		Title:        title,
		Author:       author,
		Scenes:       screenplay.CloneScenes(scenes),
		UserID:       caller.UID,
		Visibility:   visibility,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastEditedBy: caller.Email,
		SharedWith:   map[string]screenplay.ShareGrant{},
	}
	if err := r.store.Set(ctx, screenplay.CollectionScripts, script.ID, script); err != nil {
		return "", storeError("create script", err)
	}
	r.logger.Info("script created", zap.String("script_id", script.ID), zap.String("owner", caller.UID))

	r.appendVersionQuietly(ctx, script.ID, title, author, scenes, caller.Email)
	r.index(ctx, script)
	return script.ID, nil
}

// Update overwrites the editable fields. It does not check that the caller
// may edit the script.
func (r *Repository) Update(ctx context.Context, scriptID string, in UpdateInput) error {
	caller, err := r.caller(ctx)
	if err != nil {
		return err
	}
	editor := screenplay.NormalizeEmail(in.EditorEmail)
	if editor == "" {
		editor = caller.Email
	}

	updates := []store.Update{
		store.Set([]string{"title"}, in.Title),
		store.Set([]string{"author"}, in.Author),
		store.Set([]string{"scenes"}, screenplay.CloneScenes(in.Scenes)),
		store.Set([]string{"updatedAt"}, r.now()),
		store.Set([]string{"lastEditedBy"}, editor),
	}
	if in.Visibility != nil {
		if !in.Visibility.Valid() {
			return fmt.Errorf("update script: %w: visibility %q", screenplay.ErrInvalidInput, *in.Visibility)
		}
		updates = append(updates, store.Set([]string{"visibility"}, *in.Visibility))
	}
	if err := r.store.Update(ctx, screenplay.CollectionScripts, scriptID, updates...); err != nil {
		return storeError("update script", err)
	}
	r.logger.Info("script updated", zap.String("script_id", scriptID), zap.String("editor", editor))

	r.appendVersionQuietly(ctx, scriptID, in.Title, in.Author, in.Scenes, editor)
	r.reindex(ctx, scriptID)
	return nil
}

// AppendVersion stores an immutable snapshot of the given fields.
func (r *Repository) AppendVersion(ctx context.Context, scriptID, title, author string, scenes []screenplay.Scene, editorEmail string) (screenplay.ScriptVersion, error) {
	version := screenplay.ScriptVersion{
		VersionID: r.newID(),
		ScriptID:  scriptID,
		Title:     title,
		Author:    author,
		Scenes:    screenplay.CloneScenes(scenes),
		Editor:    editorEmail,
		Timestamp: r.now(),
	}
	if err := r.store.Set(ctx, screenplay.CollectionVersions, version.VersionID, version); err != nil {
		return screenplay.ScriptVersion{}, storeError("append version", err)
	}
	for _, sink := range r.sinks {
		if err := sink.RecordVersion(ctx, version); err != nil {
			r.logger.Warn("version sink failed",
				zap.String("script_id", scriptID),
				zap.String("version_id", version.VersionID),
				zap.Error(err))
		}
	}
	return version, nil
}

// appendVersionQuietly never fails the surrounding save.
func (r *Repository) appendVersionQuietly(ctx context.Context, scriptID, title, author string, scenes []screenplay.Scene, editorEmail string) {
	if _, err := r.AppendVersion(ctx, scriptID, title, author, scenes, editorEmail); err != nil {
		r.logger.Error("append version failed; script saved without a version",
			zap.String("script_id", scriptID),
			zap.Error(err))
	}
}

// Fetch reads a script without any authorization. Callers must consult the
// access gate before exposing the result.
func (r *Repository) Fetch(ctx context.Context, scriptID string) (*screenplay.Script, error) {
	doc, err := r.store.Get(ctx, screenplay.CollectionScripts, scriptID)
	if err != nil {
		return nil, storeError("get script", err)
	}
	script, err := decodeScript(doc)
	if err != nil {
		return nil, fmt.Errorf("get script: %w: %w", screenplay.ErrStore, err)
	}
	return script, nil
}

// GetByID returns the script if the caller owns it or holds a sharing grant.
func (r *Repository) GetByID(ctx context.Context, scriptID string) (*screenplay.Script, error) {
	caller, err := r.caller(ctx)
	if err != nil {
		return nil, err
	}
	script, err := r.Fetch(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	if script.UserID != caller.UID {
		if _, shared := script.Grant(caller.Email); !shared {
			return nil, fmt.Errorf("get script %s: %w", scriptID, screenplay.ErrPermission)
		}
	}
	return script, nil
}

// GetOwned lists the caller's scripts, optionally with scripts shared with them.
func (r *Repository) GetOwned(ctx context.Context, includeShared bool) ([]screenplay.Script, error) {
	caller, err := r.caller(ctx)
	if err != nil {
		return nil, err
	}

	byID := map[string]screenplay.Script{}
	owned, err := r.queryScripts(ctx, store.Query{Filters: []store.Filter{
		store.Where([]string{"userId"}, store.OpEqual, caller.UID),
	}})
	if err != nil {
		return nil, storeError("list owned scripts", err)
	}
	for _, s := range owned {
		byID[s.ID] = s
	}

	if includeShared && caller.Email != "" {
		shared, err := r.queryScripts(ctx, store.Query{Filters: []store.Filter{
			store.Where([]string{"sharedWith", caller.Email, "accessLevel"}, store.OpIn,
				[]string{string(screenplay.AccessLevelView), string(screenplay.AccessLevelEdit)}),
		}})
		if err != nil {
			return nil, storeError("list shared scripts", err)
		}
		for _, s := range shared {
			if s.UserID == caller.UID {
				continue
			}
			byID[s.ID] = s
		}
	}
	return sortedScripts(byID), nil
}

// GetAll lists every script. Only the administrator may call it.
func (r *Repository) GetAll(ctx context.Context) ([]screenplay.Script, error) {
	caller, err := r.caller(ctx)
	if err != nil {
		return nil, err
	}
	if r.adminEmail == "" || caller.Email != r.adminEmail {
		return nil, fmt.Errorf("list all scripts: %w", screenplay.ErrPermission)
	}
	all, err := r.queryScripts(ctx, store.Query{})
	if err != nil {
		return nil, storeError("list all scripts", err)
	}
	byID := make(map[string]screenplay.Script, len(all))
	for _, s := range all {
		byID[s.ID] = s
	}
	return sortedScripts(byID), nil
}

// Delete removes the script document only; its versions stay behind.
func (r *Repository) Delete(ctx context.Context, scriptID string) error {
	if _, err := r.caller(ctx); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, screenplay.CollectionScripts, scriptID); err != nil {
		return storeError("delete script", err)
	}
	r.logger.Info("script deleted", zap.String("script_id", scriptID))
	if r.indexer != nil {
		if err := r.indexer.RemoveScript(ctx, scriptID); err != nil {
			r.logger.Warn("remove from index failed", zap.String("script_id", scriptID), zap.Error(err))
		}
	}
	return nil
}

func (r *Repository) SetVisibility(ctx context.Context, scriptID string, visibility screenplay.Visibility) error {
	if _, err := r.caller(ctx); err != nil {
		return err
	}
	if !visibility.Valid() {
		return fmt.Errorf("set visibility: %w: %q", screenplay.ErrInvalidInput, visibility)
	}
	err := r.store.Update(ctx, screenplay.CollectionScripts, scriptID,
		store.Set([]string{"visibility"}, visibility),
		store.Set([]string{"updatedAt"}, r.now()),
	)
	if err != nil {
		return storeError("set visibility", err)
	}
	r.reindex(ctx, scriptID)
	return nil
}

func (r *Repository) ownedScript(ctx context.Context, action, scriptID string) (*screenplay.Script, error) {
	caller, err := r.caller(ctx)
	if err != nil {
		return nil, err
	}
	script, err := r.Fetch(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	if script.UserID != caller.UID {
		return nil, fmt.Errorf("%s %s: %w", action, scriptID, screenplay.ErrPermission)
	}
	return script, nil
}

// Share grants email access to the script, replacing any earlier grant. The
// password is stored, in plaintext, only when the script is protected.
func (r *Repository) Share(ctx context.Context, scriptID, email string, level screenplay.AccessLevel, password string) error {
	email = screenplay.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("share script: %w: email is required", screenplay.ErrInvalidInput)
	}
	if !level.Valid() {
		return fmt.Errorf("share script: %w: access level %q", screenplay.ErrInvalidInput, level)
	}
	script, err := r.ownedScript(ctx, "share script", scriptID)
	if err != nil {
		return err
	}

	grant := screenplay.ShareGrant{AccessLevel: level, SharedAt: r.now()}
	if script.Visibility == screenplay.VisibilityProtected {
		grant.Password = password
	}
	if err := r.store.Update(ctx, screenplay.CollectionScripts, scriptID, store.Set([]string{"sharedWith", email}, grant)); err != nil {
		return storeError("share script", err)
	}
	r.logger.Info("script shared", zap.String("script_id", scriptID), zap.String("grantee", email), zap.String("access", string(level)))
	r.reindex(ctx, scriptID)
	return nil
}

// Unshare drops the grant for email. A missing grant is not an error.
func (r *Repository) Unshare(ctx context.Context, scriptID, email string) error {
	email = screenplay.NormalizeEmail(email)
	script, err := r.ownedScript(ctx, "unshare script", scriptID)
	if err != nil {
		return err
	}
	if _, ok := script.SharedWith[email]; !ok {
		return nil
	}
	if err := r.store.Update(ctx, screenplay.CollectionScripts, scriptID, store.Remove([]string{"sharedWith", email})); err != nil {
		return storeError("unshare script", err)
	}
	r.reindex(ctx, scriptID)
	return nil
}

// GetSharing lists the grants of a script, passwords included, sorted by email.
func (r *Repository) GetSharing(ctx context.Context, scriptID string) ([]Share, error) {
	script, err := r.ownedScript(ctx, "get sharing", scriptID)
	if err != nil {
		return nil, err
	}
	shares := make([]Share, 0, len(script.SharedWith))
	for email, grant := range script.SharedWith {
		shares = append(shares, Share{
			Email:       email,
			AccessLevel: grant.AccessLevel,
			SharedAt:    grant.SharedAt,
			Password:    grant.Password,
		})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Email < shares[j].Email })
	return shares, nil
}

// GetVersions lists the versions of a script by timestamp. When the store
// cannot order the filtered query it falls back to sorting in process, with
// the same ordering.
func (r *Repository) GetVersions(ctx context.Context, scriptID string, order SortOrder) ([]screenplay.ScriptVersion, error) {
	byScript := []store.Filter{store.Where([]string{"scriptId"}, store.OpEqual, scriptID)}
	docs, err := r.store.Query(ctx, screenplay.CollectionVersions, store.Query{
		Filters: byScript,
		OrderBy: &store.Order{Path: []string{"timestamp"}, Desc: order != SortAscending},
	})
	if errors.Is(err, store.ErrIndexRequired) {
		r.logger.Warn("versions index unavailable, sorting in process", zap.String("script_id", scriptID), zap.Error(err))
		docs, err = r.store.Query(ctx, screenplay.CollectionVersions, store.Query{Filters: byScript})
		if err != nil {
			return nil, storeError("list versions", err)
		}
		versions, err := decodeVersions(docs)
		if err != nil {
			return nil, fmt.Errorf("list versions: %w: %w", screenplay.ErrStore, err)
		}
		SortVersions(versions, order)
		return versions, nil
	}
	if err != nil {
		return nil, storeError("list versions", err)
	}
	versions, err := decodeVersions(docs)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w: %w", screenplay.ErrStore, err)
	}
	return versions, nil
}

func (r *Repository) GetVersion(ctx context.Context, versionID string) (*screenplay.ScriptVersion, error) {
	doc, err := r.store.Get(ctx, screenplay.CollectionVersions, versionID)
	if err != nil {
		return nil, storeError("get version", err)
	}
	var version screenplay.ScriptVersion
	if err := doc.DataTo(&version); err != nil {
		return nil, fmt.Errorf("get version: %w: %w", screenplay.ErrStore, err)
	}
	version.VersionID = doc.ID()
	return &version, nil
}

// SortVersions orders by timestamp, breaking ties by version id, in the
// given direction. It matches the ordering of the indexed store query.
func SortVersions(versions []screenplay.ScriptVersion, order SortOrder) {
	desc := order != SortAscending
	sort.SliceStable(versions, func(i, j int) bool {
		a, b := versions[i], versions[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if desc {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		if desc {
			return a.VersionID > b.VersionID
		}
		return a.VersionID < b.VersionID
	})
}

func (r *Repository) queryScripts(ctx context.Context, q store.Query) ([]screenplay.Script, error) {
	docs, err := r.store.Query(ctx, screenplay.CollectionScripts, q)
	if err != nil {
		return nil, err
	}
	scripts := make([]screenplay.Script, 0, len(docs))
	for _, doc := range docs {
		script, err := decodeScript(doc)
		if err != nil {
			r.logger.Warn("skipping unreadable script document", zap.String("script_id", doc.ID()), zap.Error(err))
			continue
		}
		scripts = append(scripts, *script)
	}
	return scripts, nil
}

func (r *Repository) index(ctx context.Context, script screenplay.Script) {
	if r.indexer == nil {
		return
	}
	if err := r.indexer.IndexScript(ctx, script); err != nil {
		r.logger.Warn("index script failed", zap.String("script_id", script.ID), zap.Error(err))
	}
}

func (r *Repository) reindex(ctx context.Context, scriptID string) {
	if r.indexer == nil {
		return
	}
	script, err := r.Fetch(ctx, scriptID)
	if err != nil {
		r.logger.Warn("reload for index failed", zap.String("script_id", scriptID), zap.Error(err))
		return
	}
	r.index(ctx, *script)
}

func decodeScript(doc store.Document) (*screenplay.Script, error) {
	var script screenplay.Script
	if err := doc.DataTo(&script); err != nil {
		return nil, err
	}
	script.ID = doc.ID()
	screenplay.ApplyDefaults(&script)
	return &script, nil
}

func decodeVersions(docs []store.Document) ([]screenplay.ScriptVersion, error) {
	versions := make([]screenplay.ScriptVersion, 0, len(docs))
	for _, doc := range docs {
		var version screenplay.ScriptVersion
		if err := doc.DataTo(&version); err != nil {
			return nil, err
		}
		version.VersionID = doc.ID()
		versions = append(versions, version)
	}
	return versions, nil
}

func sortedScripts(byID map[string]screenplay.Script) []screenplay.Script {
	out := make([]screenplay.Script, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
