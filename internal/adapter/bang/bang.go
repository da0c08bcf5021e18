// Package bang resolves external bangs ("!!g query") to redirect URLs.
//
// The database is a trie of nested JSON objects keyed by bang fragments. A
// node's "*" entry, or a string leaf, is a definition of the form
// "<url template>\x01<rank>" where \x02 in the template stands for the query.
package bang

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"metasearch/internal/domain"
)

//go:embed data/bangs.json
var defaultDB []byte

const (
	rankSep          = "\x01"
	queryPlaceholder = "\x02"
)

// DB is a loaded bang trie. It is read-only after loading.
type DB struct {
	trie map[string]any
}

// Default returns the embedded database.
func Default() (*DB, error) {
	return Parse(defaultDB)
}

// LoadFile reads a database from a JSON file.
func LoadFile(path string) (*DB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewSubSystemError("bang", "bang.LoadFile", domain.ErrConfigLoad, err.Error())
	}
	return Parse(data)
}

// Parse decodes {"trie": {...}}.
func Parse(data []byte) (*DB, error) {
	var doc struct {
		Trie map[string]any `json:"trie"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse bangs: %w", err)
	}
	if doc.Trie == nil {
		return nil, fmt.Errorf("parse bangs: missing trie")
	}
	return &DB{trie: doc.Trie}, nil
}

// walk consumes bang along the trie. It returns the node reached, the
// consumed prefix and the unmatched rest.
func (db *DB) walk(bang string) (node any, before, after string) {
	node = db.trie
	for _, r := range bang {
		after += string(r)
		m, ok := node.(map[string]any)
		if !ok {
			continue
		}
		if next, ok := m[after]; ok {
			node = next
			before += after
			after = ""
		}
	}
	return node, before, after
}

// lookup returns the definition of bang, if any, and the bangs reachable
// one step further down the trie.
func (db *DB) lookup(bang string) (definition string, next []string) {
	node, before, after := db.walk(bang)
	m, isMap := node.(map[string]any)

	switch {
	case after != "":
		if isMap {
			for k := range m {
				if strings.HasPrefix(k, after) {
					next = append(next, before+k)
				}
			}
		}
	case isMap:
		definition, _ = m["*"].(string)
		for k := range m {
			if k != "*" {
				next = append(next, before+k)
			}
		}
	default:
		definition, _ = node.(string)
	}
	slices.Sort(next)
	return definition, next
}

func parseDefinition(def string) (template string, rank int) {
	template, rawRank, _ := strings.Cut(def, rankSep)
	rank, _ = strconv.Atoi(rawRank)
	return template, rank
}

// Resolve returns the redirect URL of bang for query.
func (db *DB) Resolve(bang, query string) (string, bool) {
	def, _ := db.lookup(bang)
	if def == "" {
		return "", false
	}
	template, _ := parseDefinition(def)
	u := strings.ReplaceAll(template, queryPlaceholder, url.QueryEscape(query))
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return u, true
}

// Autocomplete lists the complete bangs starting with prefix, highest rank
// first, then alphabetically.
func (db *DB) Autocomplete(prefix string) []string {
	type candidate struct {
		bang string
		rank int
	}

	_, queue := db.lookup(prefix)
	done := make(map[string]bool)
	var found []candidate
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		if done[b] {
			continue
		}
		done[b] = true

		def, next := db.lookup(b)
		if def != "" {
			_, rank := parseDefinition(def)
			found = append(found, candidate{bang: b, rank: rank})
		}
		for _, n := range next {
			if !done[n] {
				queue = append(queue, n)
			}
		}
	}

	slices.SortFunc(found, func(a, b candidate) int {
		if a.rank != b.rank {
			return b.rank - a.rank
		}
		return strings.Compare(a.bang, b.bang)
	})
	out := make([]string, len(found))
	for i, c := range found {
		out[i] = c.bang
	}
	return out
}
