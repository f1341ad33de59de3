package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpen(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("approvals_org-1.csv", []byte("Course,Code\nAlgorithms,CS201\n"))
	require.NoError(t, err)
	assert.Equal(t, "approvals_org-1.csv", name)

	file, err := store.Open(name)
	require.NoError(t, err)
	defer file.Close()
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Algorithms")

	entries, err := os.ReadDir(store.baseDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not linger")
}

func TestLocalStorageRejectsEscapingNames(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../secrets.csv", "a/../../b.csv", "/etc/passwd", ""} {
		_, err := store.Open(name)
		assert.ErrorIs(t, err, ErrOutsideBase, name)
		_, err = store.Save(name, []byte("x"))
		assert.ErrorIs(t, err, ErrOutsideBase, name)
	}
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("old.pdf", []byte("old"))
	require.NoError(t, err)
	_, err = store.Save("fresh.pdf", []byte("fresh"))
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.baseDir, "old.pdf"), past, past))

	deleted, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.pdf"}, deleted)

	_, err = store.Open("fresh.pdf")
	assert.NoError(t, err)
}
