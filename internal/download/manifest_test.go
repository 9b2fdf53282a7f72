package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "images.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadImageList(t *testing.T) {
	path := writeManifest(t, `
- link: https://example.com/a.png
  op: images/a.png
- link: https://example.com/b.png
  op: images/b.png
`)
	tasks, err := ReadImageList(path)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "https://example.com/a.png", tasks[0].URL)
	assert.Equal(t, "images/a.png", tasks[0].Path)
	assert.Equal(t, "https://example.com/b.png", tasks[1].URL)
}

func TestReadImageList_MissingFields(t *testing.T) {
	t.Run("missing link", func(t *testing.T) {
		path := writeManifest(t, "- op: images/a.png\n")
		_, err := ReadImageList(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing URL for entry 1")
	})

	t.Run("missing output path", func(t *testing.T) {
		path := writeManifest(t, "- link: https://example.com/a.png\n")
		_, err := ReadImageList(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing output path for entry 1")
	})
}

func TestReadImageList_BadInput(t *testing.T) {
	_, err := ReadImageList(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	path := writeManifest(t, "not: [valid, list")
	_, err = ReadImageList(path)
	assert.Error(t, err)
}
