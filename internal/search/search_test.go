package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenplay/api/internal/auth"
	"screenplay/api/internal/screenplay"
	"screenplay/api/internal/scripts"
	"screenplay/api/internal/store"
)

type fakeIndex struct {
	healthy  bool
	results  []Result
	err      error
	indexed  chan Record
	deleted  chan string
	bulk     []Record
	searched int
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(context.Context, Query) ([]Result, int, error) {
	f.searched++
	return f.results, len(f.results), f.err
}

func (f *fakeIndex) IndexScript(record Record) error {
	f.indexed <- record
	return nil
}

func (f *fakeIndex) DeleteScript(id string) error {
	f.deleted <- id
	return nil
}

func (f *fakeIndex) IndexScripts(records []Record) error {
	f.bulk = records
	return nil
}

func scene(id string, lines ...string) screenplay.Scene {
	s := screenplay.Scene{ID: id}
	for _, line := range lines {
		s.Elements = append(s.Elements, screenplay.Element{Type: screenplay.ElementAction, Content: line})
	}
	return s
}

func TestRecordFor(t *testing.T) {
	updated := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	record := RecordFor(screenplay.Script{
		ID:         "s1",
		Title:      "Heist",
		UserID:     "u1",
		Visibility: screenplay.VisibilityProtected,
		UpdatedAt:  updated,
		Scenes:     []screenplay.Scene{scene("a", "The vault opens.", ""), scene("b", "Alarms.")},
		SharedWith: map[string]screenplay.ShareGrant{"x@example.com": {AccessLevel: screenplay.AccessLevelView}},
	})
	assert.Equal(t, "The vault opens.\nAlarms.", record.Content)
	assert.Equal(t, []string{"x@example.com"}, record.SharedWith)
	assert.Equal(t, "protected", record.Visibility)
	assert.Equal(t, updated.Unix(), record.UpdatedAt)
}

func TestAccessFilter(t *testing.T) {
	assert.Equal(t, `ownerId = "u1" OR sharedWith = "a@example.com"`, accessFilter(Query{OwnerID: "u1", Email: "a@example.com"}))
	assert.Equal(t, `ownerId = "u1"`, accessFilter(Query{OwnerID: "u1"}))
	assert.Empty(t, accessFilter(Query{}))
}

func TestScanSearch(t *testing.T) {
	owner := auth.Identity{UID: "u1", Email: "owner@example.com"}
	friend := auth.Identity{UID: "u2", Email: "friend@example.com"}
	repo := scripts.New(store.NewMemoryStore(), auth.ContextProvider{})
	ownerCtx := auth.WithIdentity(context.Background(), owner)

	heist, err := repo.Create(ownerCtx, "The Heist", "Sam", []screenplay.Scene{scene("a", "The VAULT door swings open.")}, "")
	require.NoError(t, err)
	_, err = repo.Create(ownerCtx, "Quiet Night", "Sam", []screenplay.Scene{scene("a", "Nothing happens.")}, "")
	require.NoError(t, err)
	require.NoError(t, repo.Share(ownerCtx, heist, friend.Email, screenplay.AccessLevelView, ""))

	scan := NewScan(repo)
	results, total, err := scan.Search(ownerCtx, Query{Text: "vault"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, heist, results[0].ID)
	assert.Equal(t, "The VAULT door swings open.", results[0].Snippet)

	results, total, err = scan.Search(ownerCtx, Query{Text: "sam"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, results, 2)

	paged, total, err := scan.Search(ownerCtx, Query{Text: "sam", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, paged, 1)

	shared, _, err := scan.Search(auth.WithIdentity(context.Background(), friend), Query{Text: "heist"})
	require.NoError(t, err)
	require.Len(t, shared, 1)

	_, _, err = scan.Search(context.Background(), Query{Text: "heist"})
	assert.ErrorIs(t, err, screenplay.ErrAuthRequired)
}

type staticSearcher []Result

func (s staticSearcher) Healthy() bool { return true }

func (s staticSearcher) Search(context.Context, Query) ([]Result, int, error) {
	return s, len(s), nil
}

func TestServicePrefersHealthyIndex(t *testing.T) {
	index := &fakeIndex{healthy: true, results: []Result{{ID: "from-index"}}}
	svc := NewService(index, staticSearcher{{ID: "from-scan"}}, nil)

	resp := svc.Search(context.Background(), Query{Text: "x"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "from-index", resp.Results[0].ID)
	assert.Equal(t, "x", resp.Query)
}

func TestServiceFallsBack(t *testing.T) {
	fallback := staticSearcher{{ID: "from-scan"}}

	unhealthy := &fakeIndex{healthy: false}
	resp := NewService(unhealthy, fallback, nil).Search(context.Background(), Query{})
	assert.Equal(t, "from-scan", resp.Results[0].ID)
	assert.Zero(t, unhealthy.searched)

	failing := &fakeIndex{healthy: true, err: errors.New("boom")}
	resp = NewService(failing, fallback, nil).Search(context.Background(), Query{})
	assert.Equal(t, "from-scan", resp.Results[0].ID)

	resp = NewService(nil, nil, nil).Search(context.Background(), Query{Text: "x"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestServiceIndexesInBackground(t *testing.T) {
	index := &fakeIndex{healthy: true, indexed: make(chan Record, 1), deleted: make(chan string, 1)}
	svc := NewService(index, nil, nil)

	require.NoError(t, svc.IndexScript(context.Background(), screenplay.Script{ID: "s1", Title: "Heist"}))
	select {
	case record := <-index.indexed:
		assert.Equal(t, "Heist", record.Title)
	case <-time.After(time.Second):
		t.Fatal("script was not indexed")
	}

	require.NoError(t, svc.RemoveScript(context.Background(), "s1"))
	select {
	case id := <-index.deleted:
		assert.Equal(t, "s1", id)
	case <-time.After(time.Second):
		t.Fatal("script was not removed")
	}

	svc.ReindexAll([]screenplay.Script{{ID: "a"}, {ID: "b"}})
	assert.Len(t, index.bulk, 2)
}

var (
	_ Index           = (*Meili)(nil)
	_ Searcher        = (*Scan)(nil)
	_ scripts.Indexer = (*Service)(nil)
)
