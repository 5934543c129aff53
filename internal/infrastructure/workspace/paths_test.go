package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryID(t *testing.T) {
	assert.Equal(t, "My_Documents", DirectoryID("/home/u/My Documents"))
	assert.Equal(t, "notes", DirectoryID("/home/u/notes/"))
	assert.Equal(t, "root", DirectoryID("/"))
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, IsSensitive("/etc"))
	assert.True(t, IsSensitive("/etc/ssh"))
	assert.False(t, IsSensitive("/etcetera"))

	home, err := os.UserHomeDir()
	if err == nil {
		assert.True(t, IsSensitive(filepath.Join(home, ".ssh")))
		assert.True(t, IsSensitive(filepath.Join(home, ".aws", "credentials")))
		assert.False(t, IsSensitive(filepath.Join(home, "Documents")))
	}
}

func writeTree(t *testing.T, files map[string]int) string {
	t.Helper()
	root := t.TempDir()
	for name, size := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	}
	return root
}

func TestCollectStats(t *testing.T) {
	root := writeTree(t, map[string]int{
		"a.txt":             100,
		"b.TXT":             50,
		"docs/c.pdf":        400,
		"docs/deep/d":       10,
		".hidden/e.txt":     999,
		".localrag/vectors": 999,
	})

	st, err := CollectStats(root)
	require.NoError(t, err)
	assert.Equal(t, 4, st.FileCount)
	assert.EqualValues(t, 560, st.TotalSize)
	assert.Equal(t, map[string]int{"txt": 2, "pdf": 1}, st.Types)
	assert.Equal(t, map[string]int64{"txt": 150, "pdf": 400}, st.SizeByType)
	assert.EqualValues(t, 140, st.AvgFileSize)
	assert.Equal(t, []FileSize{{"c.pdf", 400}, {"a.txt", 100}, {"b.TXT", 50}}, st.LargestFiles)
	assert.Equal(t, DirStats{Count: 2, MaxDepth: 2}, st.Dirs)
}

func TestCollectStats_Missing(t *testing.T) {
	_, err := CollectStats(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestResolveSources(t *testing.T) {
	root := writeTree(t, map[string]int{"a.txt": 1, "docs/report.pdf": 1})

	got := resolveSources(root, []string{"a.txt", "report.pdf", "report.pdf", "ghost.doc", "/abs/x.txt"})
	assert.Equal(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "docs", "report.pdf"),
		"ghost.doc",
		"/abs/x.txt",
	}, got)

	assert.Equal(t, []string{}, resolveSources(root, nil))
}
