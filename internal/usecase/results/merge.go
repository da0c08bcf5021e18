package results

import (
	"maps"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"metasearch/internal/domain"
)

var (
	contentIgnoredChars = regexp.MustCompile(`[,;:!?./\\ ()\-_]`)
	whitespaceRun       = regexp.MustCompile(`[ \t\n]+`)
)

// contentLen is the length of content without punctuation and spaces.
func contentLen(content string) int {
	return utf8.RuneCountInString(contentIgnoredChars.ReplaceAllString(content, ""))
}

// normalizeURL parses raw, defaulting the scheme to http.
func normalizeURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		u, err = url.Parse("http://" + strings.TrimPrefix(strings.TrimSpace(raw), "//"))
		if err != nil {
			return nil, err
		}
	}
	return u, nil
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

func trimSlash(path string) string {
	return strings.TrimSuffix(path, "/")
}

// dedupKey identifies results that point at the same document.
type dedupKey struct {
	host     string
	path     string
	query    string
	template string
	imgSrc   string
}

func keyOf(r *domain.Result) dedupKey {
	u := r.ParsedURL
	k := dedupKey{
		host:     stripWWW(u.Host),
		path:     trimSlash(u.Path),
		query:    u.RawQuery,
		template: r.Template,
	}
	if r.Template == "images.html" {
		k.imgSrc = r.ImgSrc
	}
	return k
}

// sameURL compares URLs ignoring scheme, "www." and a trailing slash.
func sameURL(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return stripWWW(a.Host) == stripWWW(b.Host) &&
		a.RawQuery == b.RawQuery &&
		a.Fragment == b.Fragment &&
		trimSlash(a.Path) == trimSlash(b.Path)
}

// mergeDuplicate folds dup into kept.
func mergeDuplicate(kept *domain.Result, dup *domain.Result) {
	if contentLen(dup.Content) > contentLen(kept.Content) {
		kept.Content = dup.Content
	}
	if kept.Title == "" {
		kept.Title = dup.Title
	}
	if kept.ImgSrc == "" {
		kept.ImgSrc = dup.ImgSrc
	}
	if kept.Thumbnail == "" {
		kept.Thumbnail = dup.Thumbnail
	}
	if kept.PublishedDate == nil {
		kept.PublishedDate = dup.PublishedDate
	}
	if kept.Category == "" {
		kept.Category = dup.Category
	}
	if len(dup.Extra) > 0 {
		extra := maps.Clone(kept.Extra)
		if extra == nil {
			extra = make(map[string]any, len(dup.Extra))
		}
		for k, v := range dup.Extra {
			if _, ok := extra[k]; !ok {
				extra[k] = v
			}
		}
		kept.Extra = extra
	}

	kept.Score += dup.Score
	if !slices.Contains(kept.Engines, dup.Engine) {
		kept.Engines = append(kept.Engines, dup.Engine)
	}

	if kept.ParsedURL.Scheme != "https" && dup.ParsedURL.Scheme == "https" {
		kept.URL = dup.URL
		kept.ParsedURL = dup.ParsedURL
	}
}
