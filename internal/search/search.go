// Package search finds scripts by title, author and scene text.
package search

import (
	"context"
	"strings"
	"time"

	"screenplay/api/internal/screenplay"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Snippet    string    `json:"snippet"`
	Visibility string    `json:"visibility,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Query describes a search request. Results are limited to scripts owned
// by OwnerID or shared with Email.
type Query struct {
	Text    string
	OwnerID string
	Email   string
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Record is the data we index for a script.
type Record struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Content    string   `json:"content"`
	OwnerID    string   `json:"ownerId"`
	SharedWith []string `json:"sharedWith"`
	Visibility string   `json:"visibility"`
	UpdatedAt  int64    `json:"updatedAt"`
}

// RecordFor flattens a script into its index record.
func RecordFor(script screenplay.Script) Record {
	shared := make([]string, 0, len(script.SharedWith))
	for email := range script.SharedWith {
		shared = append(shared, email)
	}
	return Record{
		ID:         script.ID,
		Title:      script.Title,
		Author:     script.Author,
		Content:    sceneText(script.Scenes),
		OwnerID:    script.UserID,
		SharedWith: shared,
		Visibility: string(script.Visibility),
		UpdatedAt:  script.UpdatedAt.Unix(),
	}
}

func sceneText(scenes []screenplay.Scene) string {
	var b strings.Builder
	for _, scene := range scenes {
		for _, el := range scene.Elements {
			if el.Content == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(el.Content)
		}
	}
	return b.String()
}

func pageLimit(q Query) int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}
