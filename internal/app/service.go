package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"screenplay/api/internal/auth"
	"screenplay/api/internal/authpw"
	"screenplay/api/internal/editor"
	"screenplay/api/internal/email"
	"screenplay/api/internal/export"
	"screenplay/api/internal/gitrepo"
	"screenplay/api/internal/history"
	"screenplay/api/internal/logger"
	"screenplay/api/internal/rbac"
	"screenplay/api/internal/screenplay"
	"screenplay/api/internal/scripts"
	"screenplay/api/internal/search"
	"screenplay/api/internal/session"
	"screenplay/api/internal/store"
	"screenplay/api/internal/util"
)

type Config struct {
	AdminEmail       string
	FallbackPassword string
	JWTSecret        string
	AccessTTL        time.Duration
	UnlockTTL        time.Duration
}

// Dependencies are the backing services. Only Store is required.
type Dependencies struct {
	Store    store.Store
	Verifier auth.Verifier
	Unlocks  session.UnlockStore
	Index    search.Index
	Archive  *gitrepo.Archive
	Exporter *export.Service
	Mailer   *email.Service
	Accounts []authpw.Option
	Logger   *zap.Logger
}

type Service struct {
	cfg      Config
	store    store.Store
	gate     rbac.Gate
	identity auth.Provider
	verifier auth.Verifier
	scripts  *scripts.Repository
	editors  *editor.Registry
	history  *history.Service
	search   *search.Service
	accounts *authpw.Service
	unlocks  session.UnlockStore
	exporter *export.Service
	archive  *gitrepo.Archive
	mailer   *email.Service
	logger   *zap.Logger
}

func New(cfg Config, deps Dependencies) *Service {
	log := logger.OrNop(deps.Logger)
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 12 * time.Hour
	}
	gate := rbac.Gate{AdminEmail: cfg.AdminEmail, FallbackPassword: cfg.FallbackPassword}
	identity := auth.ContextProvider{}

	repoOpts := []scripts.Option{scripts.WithAdminEmail(cfg.AdminEmail), scripts.WithLogger(log)}
	if deps.Archive != nil {
		repoOpts = append(repoOpts, scripts.WithVersionSink(deps.Archive))
	}
	if deps.Index != nil {
		repoOpts = append(repoOpts, scripts.WithIndexer(search.NewService(deps.Index, nil, log)))
	}
	repo := scripts.New(deps.Store, identity, repoOpts...)

	verifier := auth.Chain{auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}}
	if deps.Verifier != nil {
		verifier = append(auth.Chain{deps.Verifier}, verifier...)
	}
	unlocks := deps.Unlocks
	if unlocks == nil {
		unlocks = session.NewMemoryStore(cfg.UnlockTTL)
	}
	exporter := deps.Exporter
	if exporter == nil {
		exporter = export.NewService(export.WithLogger(log))
	}
	editors := editor.NewRegistry(func() *editor.Session {
		return editor.New(repo, identity, gate, editor.WithLogger(log))
	})
	accountOpts := append([]authpw.Option{authpw.WithLogger(log)}, deps.Accounts...)

	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		gate:     gate,
		identity: identity,
		verifier: verifier,
		scripts:  repo,
		editors:  editors,
		history:  history.NewService(repo, identity, gate, history.WithLogger(log)),
		search:   search.NewService(deps.Index, search.NewScan(repo), log),
		accounts: authpw.NewService(deps.Store, accountOpts...),
		unlocks:  unlocks,
		exporter: exporter,
		archive:  deps.Archive,
		mailer:   deps.Mailer,
		logger:   log.Named("app"),
	}
}

// Readiness pings the document store and the unlock store.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	return map[string]error{
		"store":   s.store.Ping(ctx),
		"unlocks": s.unlocks.Ping(ctx),
	}
}

func (s *Service) SearchBackend() string {
	if s.search.IndexHealthy() {
		return "meilisearch"
	}
	return "scan"
}

func (s *Service) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	return s.verifier.Verify(ctx, token)
}

// AuthResult is returned by sign-up and sign-in.
type AuthResult struct {
	Token     string        `json:"accessToken"`
	ExpiresAt time.Time     `json:"expiresAt"`
	User      auth.Identity `json:"user"`
}

func (s *Service) issue(identity auth.Identity) (AuthResult, error) {
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), identity, util.NewID("tok"), s.cfg.AccessTTL)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, ExpiresAt: time.Now().Add(s.cfg.AccessTTL).UTC(), User: identity}, nil
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (AuthResult, error) {
	identity, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(identity)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (AuthResult, error) {
	identity, err := s.accounts.SignIn(ctx, req)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(identity)
}

// ChangePassword updates the signed-in caller's local password.
func (s *Service) ChangePassword(ctx context.Context, current, next string) error {
	caller, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return screenplay.ErrAuthRequired
	}
	return s.accounts.ChangePassword(ctx, caller.Email, current, next)
}

// SignOut discards the caller's unsaved edit session.
func (s *Service) SignOut(ctx context.Context) error {
	caller, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return screenplay.ErrAuthRequired
	}
	s.editors.Drop(caller.UID)
	return nil
}

// Editor returns the caller's edit session.
func (s *Service) Editor(ctx context.Context) (*editor.Session, error) {
	caller, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return nil, screenplay.ErrAuthRequired
	}
	return s.editors.Session(caller.UID), nil
}

func (s *Service) SaveEditor(ctx context.Context, visibility *screenplay.Visibility) (string, error) {
	ed, err := s.Editor(ctx)
	if err != nil {
		return "", err
	}
	scriptID, err := ed.Save(ctx, visibility)
	if err != nil {
		scriptSavesTotal.WithLabelValues("error").Inc()
		return "", err
	}
	scriptSavesTotal.WithLabelValues("ok").Inc()
	return scriptID, nil
}

// Export renders the caller's edit session. With publish set the artifact is
// uploaded and a download link returned as well.
func (s *Service) Export(ctx context.Context, format export.Format, publish bool) (*export.Result, string, error) {
	ed, err := s.Editor(ctx)
	if err != nil {
		return nil, "", err
	}
	doc := ed.Document()
	result, err := s.exporter.Export(ctx, export.Screenplay{Title: doc.Title, Author: doc.Author, Scenes: doc.Scenes}, format)
	if err != nil {
		return nil, "", err
	}
	exportsTotal.WithLabelValues(string(format)).Inc()
	if !publish {
		return result, "", nil
	}

	key := ed.State().ScriptID
	if key == "" {
		caller, _ := s.identity.CurrentUser(ctx)
		key = "drafts/" + caller.UID
	}
	link, err := s.exporter.Publish(ctx, key, result)
	if err != nil {
		return nil, "", err
	}
	return result, link, nil
}

func (s *Service) ListScripts(ctx context.Context, includeShared bool) ([]screenplay.Script, error) {
	list, err := s.scripts.GetOwned(ctx, includeShared)
	if err != nil {
		return nil, err
	}
	return redactAll(list), nil
}

func (s *Service) AllScripts(ctx context.Context) ([]screenplay.Script, error) {
	list, err := s.scripts.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return redactAll(list), nil
}

func (s *Service) GetScript(ctx context.Context, scriptID string) (*screenplay.Script, error) {
	script, err := s.scripts.GetByID(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	caller, _ := s.identity.CurrentUser(ctx)
	return redact(script, s.gate.Effective(caller, *script)), nil
}

// authorize is the ownership check the repository leaves to its callers.
func (s *Service) authorize(ctx context.Context, scriptID string, action rbac.Action) error {
	caller, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return screenplay.ErrAuthRequired
	}
	script, err := s.scripts.Fetch(ctx, scriptID)
	if err != nil {
		return err
	}
	if access := s.gate.Effective(caller, *script); !rbac.Can(access, action) {
		return fmt.Errorf("%s script %s as %s: %w", action, scriptID, access, screenplay.ErrPermission)
	}
	return nil
}

func (s *Service) DeleteScript(ctx context.Context, scriptID string) error {
	if err := s.authorize(ctx, scriptID, rbac.ActionDelete); err != nil {
		return err
	}
	return s.scripts.Delete(ctx, scriptID)
}

func (s *Service) SetVisibility(ctx context.Context, scriptID string, visibility screenplay.Visibility) error {
	if err := s.authorize(ctx, scriptID, rbac.ActionShare); err != nil {
		return err
	}
	return s.scripts.SetVisibility(ctx, scriptID, visibility)
}

type ShareInput struct {
	Email       string                 `json:"email"`
	AccessLevel screenplay.AccessLevel `json:"accessLevel"`
	Password    string                 `json:"password"`
}

// Share records the grant and mails the grantee when SMTP is configured.
func (s *Service) Share(ctx context.Context, scriptID string, in ShareInput) error {
	if err := s.scripts.Share(ctx, scriptID, in.Email, in.AccessLevel, in.Password); err != nil {
		return err
	}
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return nil
	}
	caller, _ := s.identity.CurrentUser(ctx)
	script, err := s.scripts.Fetch(ctx, scriptID)
	if err != nil {
		s.logger.Warn("share notice skipped", zap.String("script_id", scriptID), zap.Error(err))
		return nil
	}
	sharedBy := caller.DisplayName
	if sharedBy == "" {
		sharedBy = caller.Email
	}
	notice := email.ShareNotice{
		To:          screenplay.NormalizeEmail(in.Email),
		SharedBy:    sharedBy,
		ScriptID:    scriptID,
		ScriptTitle: script.Title,
		AccessLevel: string(in.AccessLevel),
		Protected:   script.Visibility == screenplay.VisibilityProtected,
	}
	go func() {
		if err := s.mailer.SendShareNotice(notice); err != nil {
			s.logger.Warn("share notice failed", zap.String("script_id", scriptID), zap.Error(err))
		}
	}()
	return nil
}

func (s *Service) Unshare(ctx context.Context, scriptID, email string) error {
	return s.scripts.Unshare(ctx, scriptID, email)
}

func (s *Service) Sharing(ctx context.Context, scriptID string) ([]scripts.Share, error) {
	return s.scripts.GetSharing(ctx, scriptID)
}

type ViewStatus string

const (
	ViewGranted          ViewStatus = "granted"
	ViewPasswordRequired ViewStatus = "password-required"
	ViewRejected         ViewStatus = "rejected"
)

// ViewRequest opens a script through the access gate. ViewerSession names
// the viewing session an unlock is remembered for; the caller's uid is used
// when it is empty.
type ViewRequest struct {
	ScriptID      string
	ViewerSession string
	Password      string
}

type ViewResult struct {
	Status  ViewStatus         `json:"status"`
	Access  rbac.Access        `json:"access"`
	CanEdit bool               `json:"canEdit"`
	Script  *screenplay.Script `json:"script,omitempty"`
}

// ViewScript is the gated read path. A failed password challenge is a
// result, not an error.
func (s *Service) ViewScript(ctx context.Context, req ViewRequest) (ViewResult, error) {
	caller, signedIn := s.identity.CurrentUser(ctx)
	script, err := s.scripts.Fetch(ctx, req.ScriptID)
	if err != nil {
		return ViewResult{}, err
	}
	access := s.gate.Effective(caller, *script)
	if access == rbac.AccessDenied {
		if !signedIn {
			return ViewResult{}, screenplay.ErrAuthRequired
		}
		return ViewResult{}, fmt.Errorf("view script %s: %w", req.ScriptID, screenplay.ErrPermission)
	}

	if s.gate.RequiresPassword(access, *script) {
		viewer := viewerKey(req.ViewerSession, caller)
		unlocked := false
		if viewer != "" {
			if unlocked, err = s.unlocks.IsUnlocked(ctx, viewer, script.ID); err != nil {
				return ViewResult{}, fmt.Errorf("check unlock: %w", err)
			}
		}
		if !unlocked {
			if req.Password == "" {
				return ViewResult{Status: ViewPasswordRequired, Access: access}, nil
			}
			if !s.gate.CheckPassword(*script, caller.Email, req.Password) {
				unlockAttemptsTotal.WithLabelValues("rejected").Inc()
				s.logger.Info("password rejected", zap.String("script_id", script.ID), zap.String("viewer", viewer))
				return ViewResult{Status: ViewRejected, Access: access}, nil
			}
			unlockAttemptsTotal.WithLabelValues("granted").Inc()
			if viewer != "" {
				unlock := session.Unlock{ScriptID: script.ID, Email: caller.Email, UnlockedAt: time.Now().UTC()}
				if err := s.unlocks.Unlock(ctx, viewer, unlock); err != nil {
					s.logger.Warn("record unlock failed", zap.String("script_id", script.ID), zap.Error(err))
				}
			}
		}
		access = rbac.Unlocked(access)
	}

	return ViewResult{
		Status:  ViewGranted,
		Access:  access,
		CanEdit: rbac.Can(access, rbac.ActionWrite),
		Script:  redact(script, access),
	}, nil
}

// CloseView ends the viewing session's unlock of a protected script.
func (s *Service) CloseView(ctx context.Context, req ViewRequest) error {
	caller, _ := s.identity.CurrentUser(ctx)
	viewer := viewerKey(req.ViewerSession, caller)
	if viewer == "" {
		return screenplay.ErrAuthRequired
	}
	if err := s.unlocks.Revoke(ctx, viewer, req.ScriptID); err != nil {
		return fmt.Errorf("close view: %w", err)
	}
	return nil
}

func viewerKey(viewerSession string, caller auth.Identity) string {
	if viewer := strings.TrimSpace(viewerSession); viewer != "" {
		return viewer
	}
	return caller.UID
}

func (s *Service) Versions(ctx context.Context, scriptID string, order scripts.SortOrder) ([]screenplay.ScriptVersion, error) {
	return s.history.Versions(ctx, scriptID, order)
}

func (s *Service) Version(ctx context.Context, versionID string) (*screenplay.ScriptVersion, error) {
	return s.history.Version(ctx, versionID)
}

// Compare diffs two versions, or a version against the live script when to
// is empty or "current".
func (s *Service) Compare(ctx context.Context, from, to string) (history.Diff, error) {
	if to == "" || to == "current" {
		return s.history.DiffWithCurrent(ctx, from)
	}
	return s.history.Diff(ctx, from, to)
}

// Restore writes the version back and opens it in the caller's edit session.
func (s *Service) Restore(ctx context.Context, versionID string) (editor.State, error) {
	ed, err := s.Editor(ctx)
	if err != nil {
		return editor.State{}, err
	}
	if err := s.history.Restore(ctx, versionID, ed); err != nil {
		return editor.State{}, err
	}
	return ed.State(), nil
}

// Archive lists the git history of a script. Scripts without an archive
// have an empty history.
func (s *Service) Archive(ctx context.Context, scriptID string, limit int) ([]gitrepo.Commit, error) {
	if err := s.authorize(ctx, scriptID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if s.archive == nil {
		return []gitrepo.Commit{}, nil
	}
	commits, err := s.archive.History(scriptID, limit)
	if errors.Is(err, gitrepo.ErrNoArchive) {
		return []gitrepo.Commit{}, nil
	}
	return commits, err
}

func (s *Service) Search(ctx context.Context, text string, limit, offset int) (search.Response, error) {
	caller, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return search.Response{}, screenplay.ErrAuthRequired
	}
	return s.search.Search(ctx, search.Query{
		Text:    text,
		OwnerID: caller.UID,
		Email:   caller.Email,
		Limit:   limit,
		Offset:  offset,
	}), nil
}

// Reindex pushes every script to the search index.
func (s *Service) Reindex(ctx context.Context) error {
	all, err := s.scripts.GetAll(ctx)
	if err != nil {
		return err
	}
	s.search.ReindexAll(all)
	return nil
}

// redact hides sharing grants, passwords included, from everyone but the owner.
func redact(script *screenplay.Script, access rbac.Access) *screenplay.Script {
	if access == rbac.AccessOwner {
		return script
	}
	out := *script
	out.SharedWith = nil
	return &out
}

func redactAll(list []screenplay.Script) []screenplay.Script {
	for i := range list {
		for email, grant := range list[i].SharedWith {
			grant.Password = ""
			list[i].SharedWith[email] = grant
		}
	}
	return list
}
