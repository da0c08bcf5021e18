package bang

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultDBForTest(t *testing.T) *DB {
	t.Helper()
	db, err := Default()
	require.NoError(t, err)
	return db
}

func TestResolve(t *testing.T) {
	db := defaultDBForTest(t)
	tests := []struct {
		bang, query string
		want        string
		ok          bool
	}{
		{"g", "golang generics", "https://www.google.com/search?q=golang+generics", true},
		{"gh", "cobra", "https://github.com/search?q=cobra", true},
		{"ddg", "a&b", "https://duckduckgo.com/?q=a%26b", true},
		{"w", "Go", "https://en.wikipedia.org/wiki/Special:Search?search=Go", true},
		{"wd", "Q37227", "https://www.wikidata.org/w/index.php?search=Q37227", true},
		{"wde", "Berlin", "https://de.wikipedia.org/wiki/Special:Search?search=Berlin", true},
		{"mdn", "fetch", "https://developer.mozilla.org/search?q=fetch", true},
		{"d", "x", "", false},
		{"zz", "x", "", false},
		{"ghx", "x", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.bang, func(t *testing.T) {
			got, ok := db.Resolve(tt.bang, tt.query)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAutocomplete(t *testing.T) {
	db := defaultDBForTest(t)

	assert.Equal(t, []string{"gh", "gi", "go", "gm"}, db.Autocomplete("g"))
	assert.Equal(t, []string{"ddg", "docker"}, db.Autocomplete("d"))
	assert.Equal(t, []string{"docker"}, db.Autocomplete("do"))
	assert.Equal(t, []string{"so", "sx"}, db.Autocomplete("s"))
	assert.Equal(t, []string{"wd", "wde"}, db.Autocomplete("w"))
	assert.Empty(t, db.Autocomplete("q"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bangs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"trie": {"ex": {"*": "https://example.org/?q=\u0002\u00011", "t": "https://example.org/t/\u0002\u0001"}}}`), 0o600))

	db, err := LoadFile(path)
	require.NoError(t, err)

	u, ok := db.Resolve("ex", "x y")
	require.True(t, ok)
	assert.Equal(t, "https://example.org/?q=x+y", u)

	u, ok = db.Resolve("ext", "z")
	require.True(t, ok)
	assert.Equal(t, "https://example.org/t/z", u)

	_, ok = db.Resolve("g", "z")
	assert.False(t, ok, "a loaded file replaces the embedded database")
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"version": 1}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}
