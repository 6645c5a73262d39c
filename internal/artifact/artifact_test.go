package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetCleanupRemovesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	set := NewSet(dir)
	p1, err := set.TempPath("shot-*.png")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p1, []byte("png"), 0o600))

	missing := filepath.Join(dir, "never-created")
	set.Track(missing)
	require.Len(t, set.Paths(), 2)

	require.NoError(t, set.Cleanup())
	_, err = os.Stat(p1)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Empty(t, set.Paths())
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	require.False(t, ok)

	set := NewSet("")
	got, ok := FromContext(WithSet(context.Background(), set))
	require.True(t, ok)
	require.Same(t, set, got)
}
