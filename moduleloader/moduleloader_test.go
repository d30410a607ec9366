package moduleloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePins struct {
	pinned map[string]string
}

func (f *fakePins) ResolvePin(name string) (string, bool, error) {
	src, ok := f.pinned[name]
	return src, ok, nil
}

func TestResolveEmbeddedAssetsBypassWhitelist(t *testing.T) {
	l, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	r, err := l.Resolve("execution_env.js")
	require.NoError(t, err)
	assert.Contains(t, r.Source, "Blockchain")

	r, err = l.Resolve("instruction_counter.js")
	require.NoError(t, err)
	assert.Contains(t, r.Source, "processScript")
}

func TestResolveRejectsNonWhitelistedName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.js"), []byte("module.exports = {};"), 0o644))

	l, err := New(dir, nil, nil)
	require.NoError(t, err)

	_, err = l.Resolve("lib.js")
	assert.ErrorIs(t, err, ErrNotWhitelisted)
}

func TestResolveServesWhitelistedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.js"), []byte("module.exports = { ok: true };"), 0o644))

	l, err := New(dir, []string{"lib.js"}, nil)
	require.NoError(t, err)

	r, err := l.Resolve("lib.js")
	require.NoError(t, err)
	assert.Contains(t, r.Source, "ok: true")
}

func TestResolveRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, []string{"../../etc/passwd"}, nil)
	require.NoError(t, err)

	_, err = l.Resolve("../../etc/passwd")
	assert.Error(t, err)
}

func TestResolveRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	l, err := New(dir, []string{"sub"}, nil)
	require.NoError(t, err)

	_, err = l.Resolve("sub")
	assert.Error(t, err)
}

func TestResolvePrefersVersionPin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.js"), []byte("module.exports = { v: 1 };"), 0o644))

	pins := &fakePins{pinned: map[string]string{"lib.js": "module.exports = { v: 2 };"}}
	l, err := New(dir, []string{"lib.js"}, pins)
	require.NoError(t, err)

	r, err := l.Resolve("lib.js")
	require.NoError(t, err)
	assert.Contains(t, r.Source, "v: 2")
}
