package search

import (
	"context"
	"fmt"
	"strings"

	"screenplay/api/internal/screenplay"
)

// Lister returns the scripts visible to the caller on ctx.
type Lister interface {
	GetOwned(ctx context.Context, includeShared bool) ([]screenplay.Script, error)
}

// Scan searches by reading the caller's scripts from the document store and
// matching terms in process. It serves when Meilisearch is down or absent.
type Scan struct {
	lister Lister
}

func NewScan(lister Lister) *Scan {
	return &Scan{lister: lister}
}

func (s *Scan) Healthy() bool { return s.lister != nil }

// Search matches when every term of the query appears in the title, the
// author or the scene text, ignoring case.
func (s *Scan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	scripts, err := s.lister.GetOwned(ctx, true)
	if err != nil {
		return nil, 0, fmt.Errorf("scan scripts: %w", err)
	}
	terms := strings.Fields(strings.ToLower(q.Text))

	var matched []Result
	for _, script := range scripts {
		content := sceneText(script.Scenes)
		haystack := strings.ToLower(script.Title + "\n" + script.Author + "\n" + content)
		if !containsAll(haystack, terms) {
			continue
		}
		matched = append(matched, Result{
			ID:         script.ID,
			Title:      script.Title,
			Author:     script.Author,
			Snippet:    snippet(content, terms),
			Visibility: string(script.Visibility),
			UpdatedAt:  script.UpdatedAt,
		})
	}

	total := len(matched)
	start := min(max(q.Offset, 0), total)
	end := min(start+pageLimit(q), total)
	return matched[start:end], total, nil
}

func containsAll(haystack string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// snippet returns the first line of content that mentions a term.
func snippet(content string, terms []string) string {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return line
			}
		}
	}
	if len(lines) > 0 {
		return lines[0]
	}
	return ""
}
