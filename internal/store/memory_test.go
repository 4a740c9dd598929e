package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testGrant struct {
	AccessLevel string `json:"accessLevel"`
	Password    string `json:"password,omitempty"`
}

type testScript struct {
	Title      string               `json:"title"`
	UserID     string               `json:"userId"`
	Tags       []string             `json:"tags"`
	SharedWith map[string]testGrant `json:"sharedWith"`
}

type testVersion struct {
	ScriptID  string    `json:"scriptId"`
	Editor    string    `json:"editor"`
	Timestamp time.Time `json:"timestamp"`
}

func documentIDs(docs []Document) []string {
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID()
	}
	return ids
}

func equalStrings(a, b []string) bool {
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

func TestMemoryStoreGetReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "scripts", "s1", testScript{Title: "Draft", Tags: []string{"a"}}))

	doc, err := s.Get(ctx, "scripts", "s1")
	require.NoError(t, err)
	var first testScript
	require.NoError(t, doc.DataTo(&first))
	first.Tags[0] = "mutated"

	var second testScript
	require.NoError(t, doc.DataTo(&second))
	assert.Equal(t, []string{"a"}, second.Tags)
	assert.Equal(t, "s1", doc.ID())
}

func TestMemoryStoreGetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "scripts", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdateNestedPaths(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "scripts", "s1", testScript{Title: "Draft", UserID: "u1"}))

	require.NoError(t, s.Update(ctx, "scripts", "s1",
		Set([]string{"title"}, "Final"),
		Set([]string{"sharedWith", "user.two@example.com"}, testGrant{AccessLevel: "view"}),
	))

	doc, err := s.Get(ctx, "scripts", "s1")
	require.NoError(t, err)
	var got testScript
	require.NoError(t, doc.DataTo(&got))
	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, testGrant{AccessLevel: "view"}, got.SharedWith["user.two@example.com"])

	require.NoError(t, s.Update(ctx, "scripts", "s1", Remove([]string{"sharedWith", "user.two@example.com"})))
	doc, err = s.Get(ctx, "scripts", "s1")
	require.NoError(t, err)
	got = testScript{}
	require.NoError(t, doc.DataTo(&got))
	assert.Empty(t, got.SharedWith)

	err = s.Update(ctx, "scripts", "missing", Set([]string{"title"}, "x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "scripts", "a", testScript{UserID: "u1"}))
	require.NoError(t, s.Set(ctx, "scripts", "b", testScript{UserID: "u2", SharedWith: map[string]testGrant{"x@example.com": {AccessLevel: "edit"}}}))
	require.NoError(t, s.Set(ctx, "scripts", "c", testScript{UserID: "u3", SharedWith: map[string]testGrant{"x@example.com": {AccessLevel: "view"}}}))

	owned, err := s.Query(ctx, "scripts", Query{Filters: []Filter{Where([]string{"userId"}, OpEqual, "u1")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, documentIDs(owned))

	shared, err := s.Query(ctx, "scripts", Query{Filters: []Filter{
		Where([]string{"sharedWith", "x@example.com", "accessLevel"}, OpIn, []string{"view", "edit"}),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, documentIDs(shared))

	all, err := s.Query(ctx, "scripts", Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.Query(ctx, "scripts", Query{Filters: []Filter{{Path: []string{"userId"}, Op: "!=", Value: "u1"}}})
	assert.Error(t, err)
}

func TestMemoryStoreOrderedQuery(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	seed := func(s *MemoryStore) {
		require.NoError(t, s.Set(ctx, "script_versions", "v1", testVersion{ScriptID: "s1", Timestamp: base}))
		require.NoError(t, s.Set(ctx, "script_versions", "v2", testVersion{ScriptID: "s1", Timestamp: base.Add(1500 * time.Millisecond)}))
		require.NoError(t, s.Set(ctx, "script_versions", "v3", testVersion{ScriptID: "s1", Timestamp: base.Add(1100 * time.Millisecond)}))
		require.NoError(t, s.Set(ctx, "script_versions", "x1", testVersion{ScriptID: "s2", Timestamp: base}))
	}

	s := NewMemoryStore()
	seed(s)
	byScript := []Filter{Where([]string{"scriptId"}, OpEqual, "s1")}

	desc, err := s.Query(ctx, "script_versions", Query{Filters: byScript, OrderBy: &Order{Path: []string{"timestamp"}, Desc: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"v2", "v3", "v1"}, documentIDs(desc))

	asc, err := s.Query(ctx, "script_versions", Query{Filters: byScript, OrderBy: &Order{Path: []string{"timestamp"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v3", "v2"}, documentIDs(asc))

	strict := NewMemoryStore(WithoutCompositeIndexes())
	seed(strict)
	_, err = strict.Query(ctx, "script_versions", Query{Filters: byScript, OrderBy: &Order{Path: []string{"timestamp"}, Desc: true}})
	assert.ErrorIs(t, err, ErrIndexRequired)

	unsorted, err := strict.Query(ctx, "script_versions", Query{Filters: byScript})
	require.NoError(t, err)
	assert.Len(t, unsorted, 3)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "scripts", "s1", testScript{}))
	require.NoError(t, s.Delete(ctx, "scripts", "s1"))
	require.NoError(t, s.Delete(ctx, "scripts", "s1"))
	assert.Equal(t, 0, s.Len("scripts"))
}

func TestBuildDocumentQuery(t *testing.T) {
	statement, args := buildDocumentQuery("script_versions", Query{
		Filters: []Filter{Where([]string{"scriptId"}, OpEqual, "s1")},
		OrderBy: &Order{Path: []string{"timestamp"}, Desc: true},
	})
	assert.Contains(t, statement, "data #>> $2::text[] = $3")
	assert.Contains(t, statement, "ORDER BY (data #>> $4::text[])::timestamptz DESC, id DESC")
	assert.Equal(t, []any{"script_versions", []string{"scriptId"}, "s1", []string{"timestamp"}}, args)
}
