package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metasearch/internal/infra/config"
	"metasearch/internal/usecase/checker"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeConfig writes a config with one bookmarks engine and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	bookmarks := filepath.Join(dir, "bookmarks.yaml")
	require.NoError(t, os.WriteFile(bookmarks, []byte(`
- title: Go time package
  url: https://pkg.go.dev/time
  description: Measuring and displaying time.
  tags: [go, stdlib]
- title: Go generics tutorial
  url: https://go.dev/doc/tutorial/generics
  tags: [go]
`), 0o600))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`
logger:
  level: error
  output: stderr
metrics:
  enabled: false
plugins:
  enabled: [tracker_url_remover]
engines:
  - name: bookmarks
    engine: bookmarks
    shortcut: bm
    paging: false
    options:
      path: %q
`, bookmarks)), 0o600))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "metasearch dev ("), out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])
	assert.NotEmpty(t, info["go"])
}

func TestEncryptCmd(t *testing.T) {
	t.Setenv("METASEARCH_CONFIG_KEY", "")
	_, err := execute(t, "encrypt", "secret")
	require.ErrorContains(t, err, "METASEARCH_CONFIG_KEY")

	t.Setenv("METASEARCH_CONFIG_KEY", "passphrase")
	out, err := execute(t, "encrypt", "api-key-123")
	require.NoError(t, err)

	value, ok := strings.CutPrefix(strings.TrimSpace(out), "enc:")
	require.True(t, ok, out)
	plain, err := config.DecryptValue(value, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "api-key-123", plain)
}

func TestSearchCmd(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "search", "go", "generics")
	require.NoError(t, err)

	var res cliResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "go generics", res.Query)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "https://go.dev/doc/tutorial/generics", res.Results[0].URL)
	assert.Equal(t, []string{"bookmarks"}, res.Results[0].Engines)
}

func TestSearchCmdModifiers(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "search", "!bm", "time")
	require.NoError(t, err)
	var res cliResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "time", res.Query)
	require.Len(t, res.Results, 1)

	out, err = execute(t, "--config", path, "search", "!!gh", "cobra")
	require.NoError(t, err)
	res = cliResult{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "https://github.com/search?q=cobra", res.RedirectURL)
	assert.Empty(t, res.Results)

	out, err = execute(t, "--config", path, "search", "max", "3", "9", "4")
	require.NoError(t, err)
	res = cliResult{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Answers, 1)
	assert.Equal(t, "9", res.Answers[0].Answer)
}

func TestSearchCmdErrors(t *testing.T) {
	path := writeConfig(t)

	_, err := execute(t, "--config", path, "search", ":fr")
	assert.Error(t, err)

	_, err = execute(t, "--config", path, "search", "--categories", "images", "cats")
	assert.ErrorContains(t, err, "no enabled engine")

	_, err = execute(t, "--config", path, "search", "--time-range", "decade", "go")
	assert.Error(t, err)

	_, err = execute(t, "--config", path, "search")
	assert.Error(t, err)
}

func TestCheckCmd(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "--config", path, "check")
	require.NoError(t, err)

	var report checker.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, checker.StatusOK, report.Status)
	require.Len(t, report.Engines, 1)
	assert.Equal(t, "bookmarks", report.Engines[0].Engine)
	assert.True(t, report.Engines[0].Success)

	_, err = execute(t, "--config", path, "check", "--engine", "nope")
	assert.Error(t, err)
}

func TestConfigErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: nowhere\n"), 0o600))

	_, err := execute(t, "--config", path, "search", "go")
	assert.ErrorContains(t, err, "config")
}
