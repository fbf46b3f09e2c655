package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent_hashes.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MappingsShape(t *testing.T) {
	path := writeDoc(t, `{
		"mappings": {"a3f8b2c1d4e5f607": "opus", "7d4e9f5a2b1c3d4e": "zai-sonnet"},
		"metadata": {"version": "1.0.0"}
	}`)

	reg := New(path)
	target, ok := reg.Get("a3f8b2c1d4e5f607")
	require.True(t, ok)
	assert.Equal(t, "opus", target)
	assert.Equal(t, 2, reg.Len())
}

func TestLoad_AgentsArrayShape(t *testing.T) {
	path := writeDoc(t, `{"agents": [
		{"hash": "1111222233334444", "model": "haiku"},
		{"hash": "5555666677778888"},
		{"model": "opus"}
	]}`)

	reg := New(path)
	target, ok := reg.Get("1111222233334444")
	require.True(t, ok)
	assert.Equal(t, "haiku", target)

	// Missing model defaults; missing hash is skipped.
	target, ok = reg.Get("5555666677778888")
	require.True(t, ok)
	assert.Equal(t, DefaultTarget, target)
	assert.Equal(t, 2, reg.Len())
}

func TestLoad_BareMapShape(t *testing.T) {
	path := writeDoc(t, `{"aaaabbbbccccdddd": "sonnet"}`)

	reg := New(path)
	target, ok := reg.Get("aaaabbbbccccdddd")
	require.True(t, ok)
	assert.Equal(t, "sonnet", target)
}

func TestLoad_MissingFileYieldsEmpty(t *testing.T) {
	reg := New(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, 0, reg.Len())
	_, ok := reg.Get("anything")
	assert.False(t, ok)
}

func TestLoad_MalformedYieldsEmpty(t *testing.T) {
	path := writeDoc(t, `{"mappings": not json`)
	reg := New(path)
	assert.Equal(t, 0, reg.Len())
}

func TestLoad_IdempotentUntilReload(t *testing.T) {
	path := writeDoc(t, `{"aaaabbbbccccdddd": "opus"}`)
	reg := New(path)
	require.Equal(t, 1, reg.Len())

	// Rewrite the backing document; Load keeps serving the snapshot.
	require.NoError(t, os.WriteFile(path, []byte(`{"aaaabbbbccccdddd": "haiku", "eeeeffff00001111": "sonnet"}`), 0o600))
	target, _ := reg.Get("aaaabbbbccccdddd")
	assert.Equal(t, "opus", target)
	assert.Equal(t, 1, reg.Len())

	// Reload picks up the new content.
	reg.Reload()
	target, _ = reg.Get("aaaabbbbccccdddd")
	assert.Equal(t, "haiku", target)
	assert.Equal(t, 2, reg.Len())
}
