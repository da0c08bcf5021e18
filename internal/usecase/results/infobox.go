package results

import (
	"net/url"
	"slices"

	"metasearch/internal/domain"
)

// mergeInfobox folds in into one of boxes when their ids name the same URL,
// otherwise appends a copy.
func mergeInfobox(boxes []*domain.Infobox, in *domain.Infobox, weight func(string) float64) []*domain.Infobox {
	box := cloneInfobox(in)
	if box.ID != "" {
		id, err := url.Parse(box.ID)
		if err == nil {
			for _, existing := range boxes {
				other, err := url.Parse(existing.ID)
				if err != nil || existing.ID == "" {
					continue
				}
				if sameURL(other, id) {
					mergeTwoInfoboxes(existing, box, weight)
					return boxes
				}
			}
		}
	}
	return append(boxes, box)
}

func mergeTwoInfoboxes(dst, src *domain.Infobox, weight func(string) float64) {
	heavier := weight(src.Engine) > weight(dst.Engine)
	if heavier {
		dst.Engine = src.Engine
	}
	for _, e := range src.Engines {
		if !slices.Contains(dst.Engines, e) {
			dst.Engines = append(dst.Engines, e)
		}
	}

	for _, u := range src.URLs {
		pu, _ := url.Parse(u.URL)
		unique := true
		for _, existing := range dst.URLs {
			eu, _ := url.Parse(existing.URL)
			if sameURL(eu, pu) {
				unique = false
				break
			}
		}
		if unique {
			dst.URLs = append(dst.URLs, u)
		}
	}

	if src.ImgSrc != "" && (dst.ImgSrc == "" || heavier) {
		dst.ImgSrc = src.ImgSrc
	}

	seen := make(map[string]bool, 2*len(dst.Attributes))
	for _, a := range dst.Attributes {
		seen[a.Label] = true
		if a.Entity != "" {
			seen[a.Entity] = true
		}
	}
	for _, a := range src.Attributes {
		if seen[a.Label] || (a.Entity != "" && seen[a.Entity]) {
			continue
		}
		dst.Attributes = append(dst.Attributes, a)
	}

	if contentLen(src.Content) > contentLen(dst.Content) {
		dst.Content = src.Content
	}
}

func cloneInfobox(in *domain.Infobox) *domain.Infobox {
	out := *in
	out.URLs = slices.Clone(in.URLs)
	out.Attributes = slices.Clone(in.Attributes)
	out.Engines = slices.Clone(in.Engines)
	if len(out.Engines) == 0 && out.Engine != "" {
		out.Engines = []string{out.Engine}
	}
	return &out
}
