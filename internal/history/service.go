package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"screenplay/api/internal/auth"
	"screenplay/api/internal/logger"
	"screenplay/api/internal/rbac"
	"screenplay/api/internal/screenplay"
	"screenplay/api/internal/scripts"
)

type Repository interface {
	Fetch(ctx context.Context, scriptID string) (*screenplay.Script, error)
	Update(ctx context.Context, scriptID string, in scripts.UpdateInput) error
	GetVersions(ctx context.Context, scriptID string, order scripts.SortOrder) ([]screenplay.ScriptVersion, error)
	GetVersion(ctx context.Context, versionID string) (*screenplay.ScriptVersion, error)
}

// Loader opens a script in the caller's edit session after a restore.
type Loader interface {
	Load(ctx context.Context, scriptID string) error
}

type Service struct {
	repo     Repository
	identity auth.Provider
	gate     rbac.Gate
	logger   *zap.Logger
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.logger = logger.OrNop(log).Named("history") }
}

func NewService(repo Repository, identity auth.Provider, gate rbac.Gate, opts ...Option) *Service {
	s := &Service{repo: repo, identity: identity, gate: gate, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) authorize(ctx context.Context, scriptID string, action rbac.Action) (auth.Identity, *screenplay.Script, error) {
	caller, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return auth.Identity{}, nil, screenplay.ErrAuthRequired
	}
	script, err := s.repo.Fetch(ctx, scriptID)
	if err != nil {
		return auth.Identity{}, nil, err
	}
	access := s.gate.Effective(caller, *script)
	if !rbac.Can(access, action) {
		return auth.Identity{}, nil, fmt.Errorf("%s script %s as %s: %w", action, scriptID, access, screenplay.ErrPermission)
	}
	return caller, script, nil
}

// Versions lists the versions of a script the caller may read.
func (s *Service) Versions(ctx context.Context, scriptID string, order scripts.SortOrder) ([]screenplay.ScriptVersion, error) {
	if _, _, err := s.authorize(ctx, scriptID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.repo.GetVersions(ctx, scriptID, order)
}

// Version returns a single version after checking read access to its script.
// Versions of deleted scripts are only reachable through the archive.
func (s *Service) Version(ctx context.Context, versionID string) (*screenplay.ScriptVersion, error) {
	version, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.authorize(ctx, version.ScriptID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return version, nil
}

// Diff compares two versions. A version may be compared against itself.
func (s *Service) Diff(ctx context.Context, fromID, toID string) (Diff, error) {
	from, err := s.Version(ctx, fromID)
	if err != nil {
		return Diff{}, err
	}
	to := from
	if toID != fromID {
		if to, err = s.Version(ctx, toID); err != nil {
			return Diff{}, err
		}
	}
	return Compare(FromVersion(*from), FromVersion(*to)), nil
}

// DiffWithCurrent compares a version against the live script.
func (s *Service) DiffWithCurrent(ctx context.Context, versionID string) (Diff, error) {
	version, err := s.Version(ctx, versionID)
	if err != nil {
		return Diff{}, err
	}
	_, script, err := s.authorize(ctx, version.ScriptID, rbac.ActionRead)
	if err != nil {
		return Diff{}, err
	}
	return Compare(FromVersion(*version), FromScript(*script)), nil
}

// Restore writes the version's content back to its script, attributed to
// the caller, and then opens the script in loader. Restoring creates a new
// version like any other update.
func (s *Service) Restore(ctx context.Context, versionID string, loader Loader) error {
	version, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	caller, _, err := s.authorize(ctx, version.ScriptID, rbac.ActionWrite)
	if err != nil {
		return err
	}
	err = s.repo.Update(ctx, version.ScriptID, scripts.UpdateInput{
		Title:       version.Title,
		Author:      version.Author,
		Scenes:      screenplay.CloneScenes(version.Scenes),
		EditorEmail: caller.Email,
	})
	if err != nil {
		return fmt.Errorf("restore version %s: %w", versionID, err)
	}
	s.logger.Info("version restored",
		zap.String("script_id", version.ScriptID),
		zap.String("version_id", versionID),
		zap.String("editor", caller.Email))

	if loader == nil {
		return nil
	}
	if err := loader.Load(ctx, version.ScriptID); err != nil {
		return fmt.Errorf("reload restored script %s: %w", version.ScriptID, err)
	}
	return nil
}
