package walk_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gelecek/folder-uploader/internal/walk"
	"github.com/stretchr/testify/require"
)

func tree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for path, content := range map[string]string{
		"1.jpg":          "jpeg",
		"2.PNG":          "png!",
		"notes.txt":      "x",
		"sub/3.jpeg":     "jpeg",
		"sub/deep/4.bmp": "bmp",
	} {
		path = filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestFiles(t *testing.T) {
	t.Parallel()
	dir := tree(t)
	var paths []string
	for entry, err := range walk.Files(t.Context(), dir) {
		require.NoError(t, err)
		require.NotNil(t, entry.Info)
		paths = append(paths, entry.Path)
	}
	require.ElementsMatch(t, []string{
		filepath.Join(dir, "1.jpg"),
		filepath.Join(dir, "2.PNG"),
		filepath.Join(dir, "notes.txt"),
		filepath.Join(dir, "sub", "3.jpeg"),
		filepath.Join(dir, "sub", "deep", "4.bmp"),
	}, paths)

	t.Run("stop", func(t *testing.T) {
		var n int
		for range walk.Files(t.Context(), dir) {
			n++
			break
		}
		require.Equal(t, 1, n)
	})
}

func TestSurveyFolder(t *testing.T) {
	t.Parallel()
	dir := tree(t)
	s, err := walk.SurveyFolder(t.Context(), dir)
	require.NoError(t, err)
	require.Equal(t, walk.Survey{Folder: dir, Files: 5, Images: 4, Bytes: 15}, s)

	t.Run("missing", func(t *testing.T) {
		s, err := walk.SurveyFolder(t.Context(), filepath.Join(dir, "missing"))
		require.NoError(t, err)
		require.Equal(t, 1, s.Errors)
		require.Zero(t, s.Files)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		s, err := walk.SurveyFolder(ctx, dir)
		require.ErrorIs(t, err, context.Canceled)
		require.Zero(t, s.Files)
	})
}

func TestIsImage(t *testing.T) {
	t.Parallel()
	require.True(t, walk.IsImage("/a/b.JPG"))
	require.True(t, walk.IsImage("c.tiff"))
	require.False(t, walk.IsImage("c.txt"))
	require.False(t, walk.IsImage("jpg"))
}
