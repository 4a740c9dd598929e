// Package gitrepo archives every script version as a commit in a per-script
// git repository, so history survives script deletion and reads as plain
// text diffs.
package gitrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"screenplay/api/internal/export"
	"screenplay/api/internal/logger"
	"screenplay/api/internal/screenplay"
)

const (
	scriptFile     = "script.json"
	screenplayFile = "screenplay.txt"
	versionTrailer = "Version-Id: "
	mainBranch     = "main"
)

var ErrNoArchive = errors.New("no archive for script")

// Commit is one archived version.
type Commit struct {
	Hash      string    `json:"hash"`
	VersionID string    `json:"versionId"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Archive struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	logger  *zap.Logger
}

func New(baseDir string, log *zap.Logger) *Archive {
	return &Archive{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		logger:  logger.OrNop(log).Named("archive"),
	}
}

// RecordVersion commits the version on the script's main branch, creating
// the repository on first use.
func (a *Archive) RecordVersion(_ context.Context, version screenplay.ScriptVersion) error {
	if version.ScriptID == "" || strings.ContainsAny(version.ScriptID, `/\`) || strings.HasPrefix(version.ScriptID, ".") {
		return fmt.Errorf("archive version: invalid script id %q", version.ScriptID)
	}
	lock := a.scriptLock(version.ScriptID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.openOrInit(version.ScriptID)
	if err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	root := worktree.Filesystem.Root()

	payload, err := json.MarshalIndent(version, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, scriptFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", scriptFile, err)
	}
	text := export.RenderText(export.Screenplay{Title: version.Title, Author: version.Author, Scenes: version.Scenes})
	if err := os.WriteFile(filepath.Join(root, screenplayFile), []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", screenplayFile, err)
	}
	for _, name := range []string{scriptFile, screenplayFile} {
		if _, err := worktree.Add(name); err != nil {
			return fmt.Errorf("git add %s: %w", name, err)
		}
	}

	editor := version.Editor
	if editor == "" {
		editor = "unknown"
	}
	when := version.Timestamp
	if when.IsZero() {
		when = time.Now()
	}
	message := fmt.Sprintf("Save %q\n\n%s%s", version.Title, versionTrailer, version.VersionID)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  editor,
			Email: editor,
			When:  when,
		},
	})
	if err != nil {
		return fmt.Errorf("commit version: %w", err)
	}
	a.logger.Debug("version archived",
		zap.String("script_id", version.ScriptID),
		zap.String("version_id", version.VersionID),
		zap.String("commit", hash.String()[:7]))
	return nil
}

// History lists archived commits newest first. A limit of zero or less
// returns everything.
func (a *Archive) History(scriptID string, limit int) ([]Commit, error) {
	lock := a.scriptLock(scriptID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.open(scriptID)
	if err != nil {
		return nil, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := []Commit{}
	err = iter.ForEach(func(c *object.Commit) error {
		items = append(items, toCommit(c))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Version reads the snapshot stored in a commit. hash may be abbreviated.
func (a *Archive) Version(scriptID, hash string) (screenplay.ScriptVersion, error) {
	lock := a.scriptLock(scriptID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.open(scriptID)
	if err != nil {
		return screenplay.ScriptVersion{}, err
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return screenplay.ScriptVersion{}, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	c, err := repo.CommitObject(*resolved)
	if err != nil {
		return screenplay.ScriptVersion{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := c.File(scriptFile)
	if err != nil {
		return screenplay.ScriptVersion{}, fmt.Errorf("load %s from commit: %w", scriptFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return screenplay.ScriptVersion{}, fmt.Errorf("read %s: %w", scriptFile, err)
	}
	var version screenplay.ScriptVersion
	if err := json.Unmarshal([]byte(contents), &version); err != nil {
		return screenplay.ScriptVersion{}, fmt.Errorf("decode archived version: %w", err)
	}
	return version, nil
}

func (a *Archive) repoPath(scriptID string) string {
	return filepath.Join(a.baseDir, scriptID)
}

func (a *Archive) open(scriptID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(a.repoPath(scriptID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w %s", ErrNoArchive, scriptID)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (a *Archive) openOrInit(scriptID string) (*git.Repository, error) {
	path := a.repoPath(scriptID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", mainBranch, err)
	}
	return repo, nil
}

func (a *Archive) scriptLock(scriptID string) *sync.Mutex {
	a.lockMu.Lock()
	defer a.lockMu.Unlock()
	lock, ok := a.locks[scriptID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	a.locks[scriptID] = lock
	return lock
}

func toCommit(c *object.Commit) Commit {
	versionID := ""
	for _, line := range strings.Split(c.Message, "\n") {
		if strings.HasPrefix(line, versionTrailer) {
			versionID = strings.TrimSpace(strings.TrimPrefix(line, versionTrailer))
		}
	}
	subject, _, _ := strings.Cut(c.Message, "\n")
	return Commit{
		Hash:      c.Hash.String()[:7],
		VersionID: versionID,
		Message:   subject,
		Author:    c.Author.Email,
		CreatedAt: c.Author.When.UTC(),
	}
}
