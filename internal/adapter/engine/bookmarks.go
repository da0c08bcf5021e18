package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
)

const bookmarksPageSize = 10

// Bookmark is one entry of a bookmarks file.
type Bookmark struct {
	Title       string   `yaml:"title"`
	URL         string   `yaml:"url"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// Bookmarks searches a local YAML list of bookmarks. Every query term must
// occur in the title, URL, description or tags.
type Bookmarks struct {
	entries []Bookmark
	// haystacks holds the lower-cased searchable text of each entry.
	haystacks []string
}

func newBookmarks(cfg config.EngineConfig) (*Bookmarks, error) {
	path := cfg.Options["path"]
	if path == "" {
		return nil, errors.New("option path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bookmarks: %w", err)
	}
	var entries []Bookmark
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse bookmarks %s: %w", path, err)
	}
	return NewBookmarks(entries), nil
}

// NewBookmarks indexes entries for searching.
func NewBookmarks(entries []Bookmark) *Bookmarks {
	b := &Bookmarks{entries: entries, haystacks: make([]string, len(entries))}
	for i, e := range entries {
		b.haystacks[i] = strings.ToLower(strings.Join(
			append([]string{e.Title, e.URL, e.Description}, e.Tags...), " "))
	}
	return b
}

func (b *Bookmarks) Search(ctx context.Context, query string, params *domain.RequestParams) ([]domain.Result, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	start := (max(params.PageNo, 1) - 1) * bookmarksPageSize
	var (
		out     []domain.Result
		matched int
	)
	for i, hay := range b.haystacks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !containsAll(hay, terms) {
			continue
		}
		matched++
		if matched <= start {
			continue
		}
		e := b.entries[i]
		out = append(out, domain.Result{
			URL:     e.URL,
			Title:   e.Title,
			Content: e.Description,
		})
		if len(out) == bookmarksPageSize {
			break
		}
	}
	return out, nil
}

func containsAll(hay string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(hay, t) {
			return false
		}
	}
	return true
}
