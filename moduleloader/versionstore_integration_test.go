package moduleloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainkit/scriptvm/moduleloader/versionstore"
)

// TestLoaderResolvesThroughRealVersionPinStore exercises Open/Pin/Unpin/
// ResolvePin against an actual sqlite-backed Store, through a real Loader,
// rather than the fakePins stand-in the rest of this package's tests use.
func TestLoaderResolvesThroughRealVersionPinStore(t *testing.T) {
	store, err := versionstore.Open("")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Pin("lib.js", "module.exports = { v: 1 };"))

	l, err := New(t.TempDir(), nil, store)
	require.NoError(t, err)

	r, err := l.Resolve("lib.js")
	require.NoError(t, err)
	assert.Contains(t, r.Source, "v: 1")

	require.NoError(t, store.Pin("lib.js", "module.exports = { v: 2 };"))
	r, err = l.Resolve("lib.js")
	require.NoError(t, err)
	assert.Contains(t, r.Source, "v: 2")

	require.NoError(t, store.Unpin("lib.js"))
	_, err = l.Resolve("lib.js")
	assert.ErrorIs(t, err, ErrNotWhitelisted)
}
